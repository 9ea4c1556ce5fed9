package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Action is a queue command issued from the interactive view.
type Action int

const (
	ActionStartAll Action = iota
	ActionStopAll
	ActionMoreWorkers
	ActionFewerWorkers
	ActionClearFinished
	ActionRestoreFailed
)

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    *QueueState
	control  func(Action)
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg carries a fresh snapshot to the view.
type TUIUpdateMsg struct {
	State *QueueState
}

// NewTUIModel creates the queue view. control receives the actions bound to
// keys; it is called from the view goroutine and must hand them to the loop.
func NewTUIModel(initial *QueueState, control func(Action)) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	if initial == nil {
		initial = &QueueState{}
	}
	if control == nil {
		control = func(Action) {}
	}

	return TUIModel{
		state:        initial,
		control:      control,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) send(a Action) tea.Cmd {
	control := m.control
	return func() tea.Msg {
		control(a)
		return nil
	}
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, m.send(ActionStopAll)
		case "r":
			return m, m.send(ActionStartAll)
		case "+", "=":
			return m, m.send(ActionMoreWorkers)
		case "-":
			return m, m.send(ActionFewerWorkers)
		case "c":
			return m, m.send(ActionClearFinished)
		case "f":
			return m, m.send(ActionRestoreFailed)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 6 + len(m.state.Endpoints)
		footerHeight := 3
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 3))

	case TUIUpdateMsg:
		m.state = msg.State
		if m.state.Done {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	st := m.state
	var sb strings.Builder

	header := fmt.Sprintf("%s gfq %s", m.spinner.View(), m.titleStyle.Render("Transfer Queue"))
	sb.WriteString(header + "\n")

	var percent float64
	if st.TotalBytes > 0 {
		percent = float64(st.CompletedBytes) / float64(st.TotalBytes)
	}

	opsInfo := fmt.Sprintf("ETA: %s | %s | Workers: %d | %s / %s | queued %d, done %d",
		formatETA(st.Speed, st.TotalBytes, st.CompletedBytes),
		formatSpeed(float64(st.Speed)),
		st.Workers,
		formatBytes(st.CompletedBytes), formatBytes(st.TotalBytes),
		st.Queued, st.Finished)

	sb.WriteString(m.infoStyle.Render(opsInfo) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	for _, e := range st.Endpoints {
		marker := " "
		if e.Running {
			marker = m.streamStyle.Render(">")
		}
		sb.WriteString(fmt.Sprintf("%s %-40s %4d items %5.1f%%\n", marker, truncate(e.Site, 40), e.Items, e.Progress*100))
	}
	sb.WriteString("\nActive Streams:\n")

	var streamContent strings.Builder
	if len(st.ActiveStreams) == 0 {
		streamContent.WriteString(m.infoStyle.Render("No active streams..."))
	} else {
		for _, s := range st.ActiveStreams {
			bar := m.progress.ViewAs(s.Progress)
			// [===       ] 30% | 45 MB/s | ftp://host/path/to/file
			streamContent.WriteString(fmt.Sprintf("%s | %-10s | %s\n",
				bar, m.streamStyle.Render(formatSpeed(s.BytesSec)), truncate(s.Source, 40)))
		}
	}

	m.viewport.SetContent(streamContent.String())
	sb.WriteString(m.viewport.View())

	if n := len(st.Failed); n > 0 {
		last := st.Failed[n-1]
		sb.WriteString("\n" + m.errorStyle.Render(fmt.Sprintf("%d failed, last: %s: %s", n, truncate(last.Source, 40), last.Error)))
	}

	help := m.helpStyle.Render("q: quit • s/r: stop/run all • +/-: workers • c: clear finished • f: requeue failed")
	if st.Done {
		help = m.successStyle.Render("Queue complete!") + " Press 'q' to exit."
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-(n-3):]
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/(1024*1024*1024))
	} else if bytesPerSec >= 1024*1024 {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	} else if bytesPerSec >= 1024 {
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatETA(bytesPerSec int64, totalBytes, completedBytes int64) string {
	if bytesPerSec <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	secs := float64(remainingBytes) / float64(bytesPerSec)
	if secs > 24*60*60 {
		return "> 1d"
	}

	d := time.Duration(secs * float64(time.Second))
	return d.Round(time.Second).String()
}
