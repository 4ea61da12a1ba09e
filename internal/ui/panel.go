package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// EventCompletionNote follows a toggled event, whose state the server
// does not keep.
const EventCompletionNote = "Event completion is not stored on the server; it resets on the next load."

// OK prints a success line.
func OK(w io.Writer, msg string) {
	fmt.Fprintln(w, current.Success.Render(current.SymDone+" "+msg))
}

// Fail prints an error line.
func Fail(w io.Writer, msg string) {
	fmt.Fprintln(w, current.Error.Render("✖ "+msg))
}

// Hint prints a muted follow-up line, e.g. after Fail.
func Hint(w io.Writer, msg string) {
	fmt.Fprintln(w, current.Muted.Render(msg))
}

// ProgressBar renders a bar with a done/total counter.
func ProgressBar(done, total, width int) string {
	if width < 5 {
		width = 5
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat(current.BarFull, filled) + strings.Repeat(current.BarEmpty, width-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

// PanelString frames lines with the current theme's border.
func PanelString(lines []string) string {
	box := lipgloss.NewStyle().
		Border(current.Border).
		BorderForeground(current.BorderColor).
		Padding(0, 1)
	return box.Render(strings.Join(lines, "\n"))
}

func Panel(w io.Writer, lines []string) {
	fmt.Fprintln(w, PanelString(lines))
}
