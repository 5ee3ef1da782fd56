package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qiuyin/bili-audio-archiver/internal/config"
	"github.com/qiuyin/bili-audio-archiver/internal/download"
	"github.com/qiuyin/bili-audio-archiver/internal/transcribe"
)

var (
	configFlag      string
	outputFlag      string
	sessDataFlag    string
	concurrencyFlag int
	verboseFlag     bool

	playlistFlag   bool
	transcribeFlag bool
	dryRunFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "bili-audio-dl",
	Short: "Archive a creator's audio tracks with transcripts",
	Long: `bili-audio-dl enumerates every published video of a creator, downloads
the best available audio stream of each one into a local archive, and can
transcribe the archived audio to text.

Runs are resumable and idempotent: interrupted downloads continue where
they left off, and already archived items are skipped.

For interactive mode, use: bili-audio-tui`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logrus.SetLevel(logrus.InfoLevel)
		if verboseFlag {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <uid>",
	Short: "Archive every published item of a creator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		if playlistFlag {
			settings.CreatePlaylist = true
		}

		ctx, stop := signalContext()
		defer stop()

		uid := args[0]
		manager := download.NewManager(settings, printProgress)

		if dryRunFlag {
			return dryRun(ctx, manager, uid)
		}

		bar := progressbar.DefaultBytes(-1, "archiving")
		done := make(chan struct{})
		go pollProgress(manager, bar, done)

		summary, err := manager.Run(ctx, uid)
		close(done)
		bar.Finish()
		fmt.Println()

		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("Archive cancelled.")
				os.Exit(130)
			}
			return err
		}

		printSummary(summary)

		if transcribeFlag {
			if err := runTranscription(ctx, settings); err != nil {
				return err
			}
		}
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <bvid>",
	Short: "Archive a single item by its video id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		manager := download.NewManager(settings, printProgress)
		report, err := manager.ArchiveOne(ctx, args[0])
		if err != nil {
			return err
		}
		if report.Outcome == download.ItemFailed {
			return report.Err
		}

		fmt.Printf("%s: %s\n", report.Item.ID, report.Outcome)
		return nil
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe archived audio that has no transcript yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		return runTranscription(ctx, settings)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "Archive directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&sessDataFlag, "sessdata", "", "Session cookie for the elevated auth tier")
	rootCmd.PersistentFlags().IntVar(&concurrencyFlag, "concurrency", 0, "Concurrent downloads (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output")

	archiveCmd.Flags().BoolVarP(&playlistFlag, "playlist", "p", false, "Create a playlist after the run")
	archiveCmd.Flags().BoolVarP(&transcribeFlag, "transcribe", "t", false, "Transcribe new items after the run")
	archiveCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "List the catalog without downloading")

	rootCmd.AddCommand(archiveCmd, fetchCmd, transcribeCmd)
}

// loadSettings loads the config file and applies flag overrides.
func loadSettings() (*config.Settings, error) {
	settings := config.DefaultSettings()
	if configFlag != "" {
		var err error
		settings, err = config.Load(configFlag)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if outputFlag != "" {
		settings.ArchivePath = outputFlag
	}
	if sessDataFlag != "" {
		settings.SessData = sessDataFlag
	}
	if concurrencyFlag > 0 {
		settings.Concurrency = concurrencyFlag
	}
	return settings, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printProgress renders manager events as plain console lines.
func printProgress(event download.ProgressEvent) {
	if event.Level == download.LevelVerbose && !verboseFlag {
		return
	}

	prefix := "   "
	switch event.Level {
	case download.LevelError:
		prefix = " x "
	case download.LevelWarning:
		prefix = " ! "
	case download.LevelSuccess:
		prefix = " + "
	case download.LevelInfo:
		prefix = " > "
	}
	fmt.Println(prefix + event.Message)
}

// pollProgress feeds the byte counter into the progress bar until done.
func pollProgress(manager *download.Manager, bar *progressbar.ProgressBar, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			received, _, _ := manager.GetProgress()
			bar.Set64(received)
		}
	}
}

func printSummary(summary *download.Summary) {
	fmt.Printf("Complete: %d downloaded, %d already present", summary.Downloaded, summary.AlreadyPresent)
	if summary.Unavailable > 0 {
		fmt.Printf(", %d unavailable", summary.Unavailable)
	}
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	fmt.Println()
	if summary.EnumerationTruncated {
		fmt.Println("Warning: the catalog listing was truncated; re-run to pick up the rest.")
	}
}

// dryRun lists what an archive run would process, without downloading.
func dryRun(ctx context.Context, manager *download.Manager, uid string) error {
	items, err := manager.ListCatalog(ctx, uid)
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Printf("%s  %s\n", item.ID, item.Title)
	}
	fmt.Printf("\n%d items\n", len(items))
	return nil
}

// runTranscription performs a batch transcription pass over the archive.
func runTranscription(ctx context.Context, settings *config.Settings) error {
	transcriber, err := transcribe.New(settings.OpenAIAPIKey, settings.TranscriptionModel)
	if err != nil {
		return err
	}

	fmt.Println("Transcribing archive...")
	runner := transcribe.NewRunner(transcriber, settings.TranscriptsDirName, func(message string) {
		fmt.Println("   " + message)
	})

	summary, err := runner.Run(ctx, settings.ArchivePath)
	if err != nil {
		return err
	}

	fmt.Printf("Transcription: %d new, %d skipped", summary.Transcribed, summary.Skipped)
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	fmt.Println()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
