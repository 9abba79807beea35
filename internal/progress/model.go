package progress

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/artifacts"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/core"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/ui"
)

// ─── Messages ────────────────────────────────────────────────────────────────

type projectStartedMsg struct{ project artifacts.Project }

type projectEndedMsg struct{ report artifacts.ProjectReport }

type jobDoneMsg struct {
	size    int64
	deleted bool
	err     error
}

type doneMsg struct{}

// ─── Model ───────────────────────────────────────────────────────────────────

// Model is the bubbletea Model showing a clean run while it executes.
type Model struct {
	spinner spinner.Model
	dryRun  bool
	width   int

	active   map[int64]string
	Projects int
	Skipped  int
	Jobs     int
	Failures int
	Bytes    int64
	Done     bool
}

// New creates a Model.
func New(dryRun bool) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.ColorPrimary)
	return Model{
		spinner: s,
		dryRun:  dryRun,
		width:   80,
		active:  map[int64]string{},
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case projectStartedMsg:
		m.active = cloneActive(m.active)
		m.active[msg.project.ID] = msg.project.PathWithNamespace
		return m, nil

	case projectEndedMsg:
		m.active = cloneActive(m.active)
		delete(m.active, msg.report.ID)
		m.Projects++
		if msg.report.Status == artifacts.StatusSkipped {
			m.Skipped++
		}
		if msg.report.Err != nil {
			m.Failures++
		}
		return m, nil

	case jobDoneMsg:
		switch {
		case msg.err != nil:
			m.Failures++
		case msg.deleted || m.dryRun:
			m.Jobs++
			m.Bytes += msg.size
		}
		return m, nil

	case doneMsg:
		m.Done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.Done {
		return ""
	}

	verb := "freed"
	if m.dryRun {
		verb = "reclaimable"
	}
	parts := []string{
		fmt.Sprintf("%d project(s)", m.Projects),
		fmt.Sprintf("%d job(s)", m.Jobs),
		fmt.Sprintf("%s %s", core.FormatSize(m.Bytes), verb),
	}
	if m.Failures > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(ui.ColorRed).Render(fmt.Sprintf("%d failure(s)", m.Failures)))
	}

	line := m.spinner.View() + " " + strings.Join(parts, " · ")
	if current := m.current(); current != "" {
		line += lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("  " + current)
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line) + "\n"
}

// current lists projects being cleaned, sorted for a stable display.
func (m Model) current() string {
	paths := lo.Values(m.active)
	slices.Sort(paths)
	return strings.Join(paths, ", ")
}

func cloneActive(active map[int64]string) map[int64]string {
	return lo.Assign(active)
}
