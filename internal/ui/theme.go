// Package ui renders the non-interactive output of the agenda command:
// status lines, the framed item panel and its progress bar.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme bundles palette, symbols and box borders.
// All render helpers pull from the current theme.
type Theme struct {
	Name string

	Title, Muted, Accent, Success, Error, Pending lipgloss.Style
	Selected, Done                                lipgloss.Style

	BoxUnchecked, BoxChecked string
	SymDone, SymPending      string
	TaskBadge, EventBadge    string
	BarFull, BarEmpty        string

	Border      lipgloss.Border
	BorderColor lipgloss.TerminalColor
}

var current = classic()

// Themes lists the accepted theme names.
var Themes = []string{"classic", "neon", "mono"}

// SetTheme switches the current theme; unknown names fall back to classic.
func SetTheme(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "neon":
		current = neon()
	case "mono":
		current = mono()
	default:
		current = classic()
	}
}

func Current() Theme { return current }

func classic() Theme {
	return Theme{
		Name:     "classic",
		Title:    lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Faint(true),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		Done:     lipgloss.NewStyle().Faint(true).Strikethrough(true),

		BoxUnchecked: "☐", BoxChecked: "☑",
		SymDone: "✔", SymPending: "•",
		TaskBadge: "task", EventBadge: "event",
		BarFull: "█", BarEmpty: "░",

		Border:      lipgloss.NormalBorder(),
		BorderColor: lipgloss.Color("8"),
	}
}

func neon() Theme {
	t := classic()
	t.Name = "neon"
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	t.Accent = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	t.Pending = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	t.Selected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	t.BoxUnchecked, t.BoxChecked = "◻", "◼"
	t.Border = lipgloss.RoundedBorder()
	t.BorderColor = lipgloss.Color("13")
	return t
}

func mono() Theme {
	plain := lipgloss.NewStyle()
	return Theme{
		Name:  "mono",
		Title: plain, Muted: plain, Accent: plain,
		Success: plain, Error: plain, Pending: plain,
		Selected: plain, Done: plain,

		BoxUnchecked: "[ ]", BoxChecked: "[x]",
		SymDone: "x", SymPending: "-",
		TaskBadge: "T", EventBadge: "E",
		BarFull: "#", BarEmpty: ".",

		Border: lipgloss.Border{
			Top: "-", Bottom: "-", Left: "|", Right: "|",
			TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		},
		BorderColor: lipgloss.NoColor{},
	}
}
