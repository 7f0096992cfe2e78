// Package cliui holds the terminal styling shared by skycast CLI commands:
// status marks, a spinner for blocking requests and markdown rendering of
// agent answers.
package cliui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/papercomputeco/skycast/pkg/llm"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	NameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	StepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Mark returns SuccessMark when ok, FailMark otherwise.
func Mark(ok bool) string {
	if ok {
		return SuccessMark
	}
	return FailMark
}

// FormatDuration renders d as whole milliseconds below a second and tenths
// of a second above, e.g. "12ms" or "3.2s".
func FormatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// UsageLine renders token usage as a dim one-line footer. Nil usage renders
// as an empty string.
func UsageLine(u *llm.Usage) string {
	if u == nil {
		return ""
	}
	return StepStyle.Render(fmt.Sprintf("%d prompt · %d completion · %d total tokens",
		u.PromptTokens, u.CompletionTokens, u.TotalTokens))
}

// RenderMarkdown renders an agent answer for the terminal, wrapped at width
// columns. The answer is returned unchanged if glamour cannot render it.
func RenderMarkdown(answer string, width int) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return answer
	}
	out, err := r.Render(answer)
	if err != nil {
		return answer
	}
	return strings.Trim(out, "\n")
}

// IsTerminal reports whether w is an interactive terminal. Markdown rendering
// and spinners are skipped otherwise.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
