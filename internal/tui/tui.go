// Package tui provides a Bubble Tea browser for time recorded on commits.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/gtm/internal/aggregate"
	"github.com/fakeyudi/gtm/internal/report"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hashStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	durStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	barStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabCommits tabID = iota
	tabFiles
	tabSummary
	tabCount
)

var tabNames = [tabCount]string{"Commits", "Files", "Summary"}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the browser.
type Model struct {
	report    *report.Report
	files     []aggregate.TimeBucket // time per file across all commits
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	cursor    int
	expanded  map[int]bool
}

// New creates a browser model for rep.
func New(rep *report.Report) Model {
	return Model{
		report:   rep,
		files:    fileTotals(rep),
		expanded: make(map[int]bool),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "up", "k":
			if m.activeTab == tabCommits && m.cursor > 0 {
				m.cursor--
				m.rebuildCommitsViewport()
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabCommits && m.cursor < len(m.report.Commits)-1 {
				m.cursor++
				m.rebuildCommitsViewport()
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabCommits && len(m.report.Commits) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.rebuildCommitsViewport()
				return m, nil
			}
		}
		if !m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  gtm  " + m.report.Repo)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	if m.activeTab == tabCommits {
		hint = "  ←/→ tab  ↑/↓ select  enter expand  q quit"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuildCommitsViewport() {
	if !m.ready {
		return
	}
	m.viewports[tabCommits].SetContent(m.renderTab(tabCommits))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabCommits:
		return m.renderCommits()
	case tabFiles:
		return m.renderFiles()
	case tabSummary:
		return m.renderSummary()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderCommits() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Commits (%d)", len(m.report.Commits))))
	if len(m.report.Commits) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, c := range m.report.Commits {
		toggle := "    "
		if len(c.Files) > 0 {
			toggle = dimStyle.Render("  ▶ ")
			if m.expanded[i] {
				toggle = dimStyle.Render("  ▼ ")
			}
		}
		dur := dimStyle.Render(fmt.Sprintf("%12s", "-"))
		if c.Recorded {
			dur = durStyle.Render(fmt.Sprintf("%12s", report.FormatDuration(c.Total)))
		}
		row := fmt.Sprintf("%s%s  %s  %s", toggle, hashStyle.Render(short(c.Hash)), dur, c.Subject)
		if i == m.cursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")

		if m.expanded[i] {
			sb.WriteString(renderBuckets(c.Files, c.Total, m.width, "        "))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m *Model) renderFiles() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Files (%d)", len(m.files))))
	if len(m.files) == 0 {
		sb.WriteString(dimStyle.Render("  (no time recorded)") + "\n")
		return sb.String()
	}
	sb.WriteString(renderBuckets(m.files, m.report.Total, m.width, "  "))
	return sb.String()
}

func (m *Model) renderSummary() string {
	var sb strings.Builder
	sb.WriteString(heading("Summary"))

	recorded := 0
	for _, c := range m.report.Commits {
		if c.Recorded {
			recorded++
		}
	}
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Repository:", m.report.Repo)
	row("Commits:", fmt.Sprintf("%d (%d with time)", len(m.report.Commits), recorded))
	row("Files:", fmt.Sprintf("%d", len(m.files)))
	row("Total:", report.FormatDuration(m.report.Total))
	return sb.String()
}

// renderBuckets draws one line per file with a proportional bar.
func renderBuckets(files []aggregate.TimeBucket, total int64, width int, prefix string) string {
	barWidth := width - len(prefix) - 50
	if barWidth < 10 {
		barWidth = 10
	}
	var sb strings.Builder
	for _, f := range files {
		pct := report.Percent(f.Seconds, total)
		n := pct * barWidth / 100
		bar := barStyle.Render(strings.Repeat("█", n)) + dimStyle.Render(strings.Repeat("░", barWidth-n))
		fmt.Fprintf(&sb, "%s%s %s %3d%%  %s\n", prefix,
			durStyle.Render(fmt.Sprintf("%12s", report.FormatDuration(f.Seconds))),
			bar, pct, f.Path)
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// fileTotals sums time per path over every commit in rep, largest first.
func fileTotals(rep *report.Report) []aggregate.TimeBucket {
	byPath := make(map[string]int64)
	for _, c := range rep.Commits {
		for _, f := range c.Files {
			byPath[f.Path] += f.Seconds
		}
	}
	out := make([]aggregate.TimeBucket, 0, len(byPath))
	for p, s := range byPath {
		out = append(out, aggregate.TimeBucket{Path: p, Seconds: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func short(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

// Run starts the browser for rep.
func Run(rep *report.Report) error {
	p := tea.NewProgram(New(rep), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
