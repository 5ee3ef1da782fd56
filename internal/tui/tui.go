// Package tui provides a Bubble Tea terminal user interface for the
// audio archiver.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qiuyin/bili-audio-archiver/internal/config"
	"github.com/qiuyin/bili-audio-archiver/internal/download"
	"github.com/qiuyin/bili-audio-archiver/internal/transcribe"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateArchiving
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logs      []LogEntry
	err       error

	// Archive run context
	ctx    context.Context
	cancel context.CancelFunc

	manager *download.Manager
	events  chan download.ProgressEvent

	summary     *download.Summary
	transcribed int

	// Live counters polled from the manager
	doneItems     int32
	totalItems    int32
	receivedBytes int64

	// Options
	transcribeAfter bool
	playlist        bool
	verbose         bool

	width  int
	height int
}

// NewModel creates a new TUI model using the given settings.
func NewModel(settings *config.Settings) Model {
	ti := textinput.New()
	ti.Placeholder = "creator uid, e.g. 123456"
	ti.Focus()
	ti.CharLimit = 32
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logs:      make([]LogEntry, 0),
		ctx:       ctx,
		cancel:    cancel,
		playlist:  settings.CreatePlaylist,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// ProgressMsg carries one progress event from the archive run.
	ProgressMsg struct {
		Event download.ProgressEvent
	}

	// ArchiveDoneMsg is sent when the archive run (and the optional
	// transcription pass) finishes.
	ArchiveDoneMsg struct {
		Summary     *download.Summary
		Transcribed int
		Err         error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateArchiving {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "enter":
			if m.state == StateInput && m.textInput.Value() != "" {
				m.state = StateArchiving
				return m, tea.Batch(m.startArchive(), m.listenEvents(), m.tickProgress(), m.spinner.Tick)
			}

		case "t":
			if m.state == StateInput {
				m.transcribeAfter = !m.transcribeAfter
			}

		case "p":
			if m.state == StateInput {
				m.playlist = !m.playlist
			}

		case "v":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for a new run
				m.state = StateInput
				m.logs = nil
				m.err = nil
				m.summary = nil
				m.transcribed = 0
				m.doneItems = 0
				m.totalItems = 0
				m.receivedBytes = 0
				m.manager = nil
				m.events = nil
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		if msg.Event.Level == download.LevelVerbose && !m.verbose {
			return m, m.listenEvents()
		}
		m.logs = append(m.logs, LogEntry{
			Message: msg.Event.Message,
			Level:   msg.Event.Level,
		})
		// Keep only last 10 logs
		if len(m.logs) > 10 {
			m.logs = m.logs[len(m.logs)-10:]
		}
		cmds = append(cmds, m.listenEvents())

	case ArchiveDoneMsg:
		m.summary = msg.Summary
		m.transcribed = msg.Transcribed
		switch {
		case m.ctx.Err() != nil:
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		case msg.Err != nil:
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
		}

	case TickMsg:
		if m.manager != nil && m.state == StateArchiving {
			received, done, total := m.manager.GetProgress()
			m.receivedBytes = received
			m.doneItems = done
			m.totalItems = total

			var percent float64
			if total > 0 {
				percent = float64(done) / float64(total)
			}
			progressCmd := m.progress.SetPercent(percent)
			cmds = append(cmds, progressCmd, m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// listenEvents waits for the next progress event from the archive run.
func (m Model) listenEvents() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return ProgressMsg{Event: event}
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bili Audio Archiver"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Archive a creator's audio and transcripts"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateArchiving:
		b.WriteString(m.viewArchiving())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter creator UID:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	transcribeCheck := "[ ]"
	if m.transcribeAfter {
		transcribeCheck = "[x]"
	}
	playlistCheck := "[ ]"
	if m.playlist {
		playlistCheck = "[x]"
	}
	verboseCheck := "[ ]"
	if m.verbose {
		verboseCheck = "[x]"
	}

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Transcribe after archiving (t)\n", transcribeCheck))
	b.WriteString(fmt.Sprintf("  %s Create playlist (p)\n", playlistCheck))
	b.WriteString(fmt.Sprintf("  %s Verbose output (v)\n", verboseCheck))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Archive path: %s", m.settings.ArchivePath)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewArchiving() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Archiving..."))
	b.WriteString("\n\n")

	var percent float64
	if m.totalItems > 0 {
		percent = float64(m.doneItems) / float64(m.totalItems)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Items: %d/%d | Received: %.2f MB",
		m.doneItems,
		m.totalItems,
		float64(m.receivedBytes)/1024/1024,
	)))
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	lines := []string{"Archive Complete!", ""}
	if m.summary != nil {
		lines = append(lines,
			fmt.Sprintf("Downloaded:      %d", m.summary.Downloaded),
			fmt.Sprintf("Already present: %d", m.summary.AlreadyPresent),
		)
		if m.summary.Unavailable > 0 {
			lines = append(lines, fmt.Sprintf("Unavailable:     %d", m.summary.Unavailable))
		}
		if m.summary.Failed > 0 {
			lines = append(lines, fmt.Sprintf("Failed:          %d", m.summary.Failed))
		}
		if m.summary.EnumerationTruncated {
			lines = append(lines, "", "Catalog listing was truncated; re-run to retry.")
		}
	}
	if m.transcribed > 0 {
		lines = append(lines, fmt.Sprintf("Transcribed:     %d", m.transcribed))
	}
	lines = append(lines, fmt.Sprintf("Size:            %.2f MB", float64(m.receivedBytes)/1024/1024))

	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "x"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "+"
		case download.LevelInfo:
			style = infoStyle
			prefix = ">"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • t: transcribe • p: playlist • v: verbose • esc: quit"
	case StateArchiving:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new run • q: quit"
	}
	return ""
}

// startArchive creates the manager and runs the archive in background.
func (m *Model) startArchive() tea.Cmd {
	uid := m.textInput.Value()

	settings := *m.settings
	settings.CreatePlaylist = m.playlist

	events := make(chan download.ProgressEvent, 64)
	m.events = events

	manager := download.NewManager(&settings, func(event download.ProgressEvent) {
		select {
		case events <- event:
		default:
		}
	})
	m.manager = manager

	ctx := m.ctx
	transcribeAfter := m.transcribeAfter

	return func() tea.Msg {
		defer close(events)

		summary, err := manager.Run(ctx, uid)
		if err != nil {
			return ArchiveDoneMsg{Summary: summary, Err: err}
		}

		var transcribed int
		if transcribeAfter {
			transcriber, terr := transcribe.New(settings.OpenAIAPIKey, settings.TranscriptionModel)
			if terr != nil {
				return ArchiveDoneMsg{Summary: summary, Err: terr}
			}
			runner := transcribe.NewRunner(transcriber, settings.TranscriptsDirName, func(message string) {
				select {
				case events <- download.ProgressEvent{Message: message, Level: download.LevelInfo}:
				default:
				}
			})
			batch, terr := runner.Run(ctx, settings.ArchivePath)
			if terr != nil {
				return ArchiveDoneMsg{Summary: summary, Err: terr}
			}
			transcribed = batch.Transcribed
		}

		return ArchiveDoneMsg{Summary: summary, Transcribed: transcribed}
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings) error {
	p := tea.NewProgram(NewModel(settings), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
