// Package report renders finished runs for humans and machines: markdown
// for files and PRs, JSON for tooling, styled terminal output for the CLI.
package report

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/impact"
)

// Report bundles the run result with its financial reading.
type Report struct {
	Result *core.TeamAnalysisResult `json:"result"`
	Impact impact.Estimate          `json:"impact"`
}

// Writer renders a report in one format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// ForFormat returns the writer for the named format.
func ForFormat(format string) (Writer, error) {
	switch format {
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "terminal", "term":
		return NewTerminalWriter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// ResolveFormat maps "auto" onto terminal output when fd is a TTY and
// markdown otherwise. Explicit formats pass through.
func ResolveFormat(requested string, fd uintptr) string {
	if requested != "auto" && requested != "" {
		return requested
	}
	if term.IsTerminal(int(fd)) {
		return "terminal"
	}
	return "markdown"
}

// WriteTo renders to w in the given format.
func WriteTo(w io.Writer, report *Report, format string) error {
	writer, err := ForFormat(format)
	if err != nil {
		return err
	}
	return writer.Write(w, report)
}

// WriteFile renders to path atomically. A crashed write never leaves a
// truncated report behind.
func WriteFile(path string, report *Report, format string) error {
	writer, err := ForFormat(format)
	if err != nil {
		return err
	}
	var buf writerBuffer
	if err := writer.Write(&buf, report); err != nil {
		return err
	}
	return atomicWriteFile(path, buf.data, 0o644)
}

type writerBuffer struct{ data []byte }

func (b *writerBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// Stdout renders to standard output, resolving "auto" against it.
func Stdout(report *Report, format string) error {
	return WriteTo(os.Stdout, report, ResolveFormat(format, os.Stdout.Fd()))
}
