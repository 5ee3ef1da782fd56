package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// audioExtensions are the file types picked up by a batch pass.
var audioExtensions = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// FileReport records how one audio file fared in a batch pass.
type FileReport struct {
	AudioPath      string
	TranscriptPath string
	Skipped        bool

	// Err is set when this file failed; the pass still continued.
	Err error
}

// BatchSummary is the result of one batch transcription pass.
type BatchSummary struct {
	Transcribed int
	Skipped     int
	Failed      int

	Reports []FileReport
}

// Runner performs a batch transcription pass over an archive directory.
//
// One file failing is logged and counted, never fatal: the remaining
// files still get their transcripts.
type Runner struct {
	transcriber        *Transcriber
	transcriptsDirName string

	onProgress func(message string)
	log        *logrus.Entry
}

// NewRunner creates a batch runner. onProgress may be nil.
func NewRunner(transcriber *Transcriber, transcriptsDirName string, onProgress func(message string)) *Runner {
	return &Runner{
		transcriber:        transcriber,
		transcriptsDirName: transcriptsDirName,
		onProgress:         onProgress,
		log:                logrus.WithField("component", "transcribe"),
	}
}

// Run transcribes every audio file directly inside archiveDir that does
// not yet have a transcript. Files are processed in name order so repeated
// passes behave predictably.
func (r *Runner) Run(ctx context.Context, archiveDir string) (*BatchSummary, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var audioFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			audioFiles = append(audioFiles, filepath.Join(archiveDir, entry.Name()))
		}
	}
	sort.Strings(audioFiles)

	r.log.WithField("files", len(audioFiles)).Info("starting transcription pass")

	summary := &BatchSummary{}
	for _, audioPath := range audioFiles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		report := FileReport{
			AudioPath:      audioPath,
			TranscriptPath: TranscriptPath(audioPath, r.transcriptsDirName),
		}

		skipped, err := r.transcriber.TranscribeToFile(ctx, audioPath, report.TranscriptPath)
		switch {
		case err != nil:
			report.Err = err
			summary.Failed++
			r.log.WithError(err).WithField("file", filepath.Base(audioPath)).Error("transcription failed")
			r.progress(fmt.Sprintf("Failed: %s: %v", filepath.Base(audioPath), err))

		case skipped:
			report.Skipped = true
			summary.Skipped++

		default:
			summary.Transcribed++
			r.progress(fmt.Sprintf("Transcribed: %s", filepath.Base(audioPath)))
		}

		summary.Reports = append(summary.Reports, report)
	}

	r.log.WithFields(logrus.Fields{
		"transcribed": summary.Transcribed,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
	}).Info("transcription pass finished")

	return summary, nil
}

func (r *Runner) progress(message string) {
	if r.onProgress != nil {
		r.onProgress(message)
	}
}
