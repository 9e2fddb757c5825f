package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxRecent is how many completed transfers the TUI lists.
const maxRecent = 8

// State is the shared batch progress state. Workers update it through the
// mutating methods; the TUI reads immutable snapshots.
type State struct {
	mu sync.Mutex

	direction      string
	totalFiles     int64
	completedFiles int64
	completedBytes int64
	workers        int
	recent         []string
	done           bool
}

// Snapshot is an immutable view of the batch progress.
type Snapshot struct {
	Direction      string
	TotalFiles     int64
	CompletedFiles int64
	CompletedBytes int64
	Workers        int
	Recent         []string
	Done           bool
}

// NewState creates the progress state for one batch.
func NewState(direction string, totalFiles int64, workers int) *State {
	return &State{
		direction:  direction,
		totalFiles: totalFiles,
		workers:    workers,
	}
}

// AddCompleted records one finished transfer.
func (s *State) AddCompleted(target string, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedFiles++
	s.completedBytes += bytes
	s.recent = append(s.recent, target)
	if len(s.recent) > maxRecent {
		s.recent = s.recent[len(s.recent)-maxRecent:]
	}
}

// SetDone marks the batch finished.
func (s *State) SetDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
}

// Snapshot returns a copy safe to read without holding the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Direction:      s.direction,
		TotalFiles:     s.totalFiles,
		CompletedFiles: s.completedFiles,
		CompletedBytes: s.completedBytes,
		Workers:        s.workers,
		Recent:         append([]string(nil), s.recent...),
		Done:           s.done,
	}
}

// Model implements the tea.Model interface for batch progress.
type Model struct {
	snap     Snapshot
	spinner  spinner.Model
	progress progress.Model

	width  int
	height int

	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	itemStyle    lipgloss.Style
	helpStyle    lipgloss.Style
	successStyle lipgloss.Style
}

// UpdateMsg carries a fresh snapshot to the TUI.
type UpdateMsg struct {
	Snapshot Snapshot
}

// NewModel creates the TUI model with an initial snapshot.
func NewModel(snap Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return Model{
		snap:         snap,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		itemStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

	case UpdateMsg:
		m.snap = msg.Snapshot
		if m.snap.Done {
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

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	header := fmt.Sprintf("%s dcp %s", m.spinner.View(),
		m.titleStyle.Render("Concurrent Data Copy"))
	sb.WriteString(header + "\n")

	var percent float64
	if m.snap.TotalFiles > 0 {
		percent = float64(m.snap.CompletedFiles) / float64(m.snap.TotalFiles)
	}

	info := fmt.Sprintf("%s | Workers: %d | %d/%d file(s) | %s",
		m.snap.Direction, m.snap.Workers, m.snap.CompletedFiles, m.snap.TotalFiles,
		formatBytes(m.snap.CompletedBytes))
	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	sb.WriteString("Completed:\n")
	if len(m.snap.Recent) == 0 {
		sb.WriteString(m.infoStyle.Render("Nothing yet...") + "\n")
	} else {
		for _, target := range m.snap.Recent {
			truncated := target
			if len(truncated) > 60 {
				truncated = "..." + truncated[len(truncated)-57:]
			}
			sb.WriteString(m.itemStyle.Render("  "+truncated) + "\n")
		}
	}

	help := m.helpStyle.Render("q/ctrl+c: quit")
	if m.snap.Done {
		help = m.successStyle.Render("Batch complete!") + " Press 'q' to exit."
	}
	sb.WriteString(help)

	return sb.String()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GB", float64(n)/(1024*1024*1024))
	case n >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}
