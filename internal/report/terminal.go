package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Palette for terminal output.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	runIDStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// TerminalWriter renders the markdown report through glamour for ANSI
// terminals, falling back to raw markdown when rendering fails.
type TerminalWriter struct {
	render func(string) (string, error)
}

func NewTerminalWriter() *TerminalWriter {
	return &TerminalWriter{render: renderGlamour}
}

func renderGlamour(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(md)
}

func (t *TerminalWriter) Write(w io.Writer, report *Report) error {
	md, err := Plain(report)
	if err != nil {
		return err
	}
	if report.Result != nil {
		fmt.Fprintln(w, titleStyle.Render("codecouncil")+" "+runIDStyle.Render("run "+string(report.Result.RunID)))
	}
	rendered, err := t.render(md)
	if err != nil {
		_, werr := io.WriteString(w, md)
		return werr
	}
	_, werr := io.WriteString(w, rendered)
	return werr
}

// StatusBadge colors a file status for progress lines.
func StatusBadge(status string) string {
	switch status {
	case "completed":
		return successStyle.Render(status)
	case "completed_fallback":
		return warnStyle.Render(status)
	case "failed":
		return errorStyle.Render(status)
	default:
		return status
	}
}
