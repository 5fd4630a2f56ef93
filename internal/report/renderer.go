package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Renderer serializes a Report to bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// ForFormat returns the renderer for a --format value.
func ForFormat(format string, styled bool) (Renderer, error) {
	switch format {
	case "", "text":
		return &TextRenderer{Styled: styled}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want text, json or markdown)", format)
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(rep *Report) ([]byte, error) {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// MarkdownRenderer renders a Report as Markdown tables, one per commit.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(rep *Report) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Time report: %s\n\n", rep.Repo)
	fmt.Fprintf(&sb, "Total: **%s** across %d commits\n\n", FormatDuration(rep.Total), len(rep.Commits))

	for _, c := range rep.Commits {
		fmt.Fprintf(&sb, "## %s %s\n\n", shortHash(c.Hash), escapeMarkdown(c.Subject))
		if !c.Recorded || len(c.Files) == 0 {
			sb.WriteString("_No time recorded._\n\n")
			continue
		}
		sb.WriteString("| File | Time | Share |\n")
		sb.WriteString("|------|------|-------|\n")
		for _, f := range c.Files {
			fmt.Fprintf(&sb, "| %s | %s | %d%% |\n", escapeMarkdown(f.Path), FormatDuration(f.Seconds), Percent(f.Seconds, c.Total))
		}
		fmt.Fprintf(&sb, "| **Total** | **%s** | |\n\n", FormatDuration(c.Total))
	}
	return []byte(sb.String()), nil
}

func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

var (
	commitStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("178"))
	subjectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	durStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	pctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	totalStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

// TextRenderer renders a Report for a terminal. Colours are only used when
// Styled is set.
type TextRenderer struct {
	Styled bool
}

func (r *TextRenderer) style(s lipgloss.Style, text string) string {
	if !r.Styled {
		return text
	}
	return s.Render(text)
}

func (r *TextRenderer) Render(rep *Report) ([]byte, error) {
	var sb strings.Builder
	for i, c := range rep.Commits {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %s\n", r.style(commitStyle, shortHash(c.Hash)), r.style(subjectStyle, c.Subject))
		if !c.Recorded || len(c.Files) == 0 {
			sb.WriteString("  " + r.style(emptyStyle, "no time recorded") + "\n")
			continue
		}
		for _, f := range c.Files {
			fmt.Fprintf(&sb, "  %s %s  %s\n",
				r.style(durStyle, fmt.Sprintf("%12s", FormatDuration(f.Seconds))),
				r.style(pctStyle, fmt.Sprintf("%3d%%", Percent(f.Seconds, c.Total))),
				f.Path,
			)
		}
		fmt.Fprintf(&sb, "  %s\n", r.style(totalStyle, fmt.Sprintf("%12s", FormatDuration(c.Total))))
	}
	if len(rep.Commits) > 1 {
		fmt.Fprintf(&sb, "\n%s %s\n", r.style(totalStyle, "total"), FormatDuration(rep.Total))
	}
	return []byte(sb.String()), nil
}
