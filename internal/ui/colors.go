package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme names the colors of each status. Each entry is a light/dark pair.
type Theme struct {
	Accent  lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Failure lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Muted   lipgloss.AdaptiveColor
}

// DefaultTheme is used by every view.
var DefaultTheme = Theme{
	Accent:  lipgloss.AdaptiveColor{Light: "#5A3FD6", Dark: "#7D56F4"},
	Success: lipgloss.AdaptiveColor{Light: "#02875A", Dark: "#04B575"},
	Failure: lipgloss.AdaptiveColor{Light: "#C0152F", Dark: "#FF4D5E"},
	Warning: lipgloss.AdaptiveColor{Light: "#B86E00", Dark: "#FFA500"},
	Muted:   lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#626262"},
}

var styles = newPalette(DefaultTheme)

// Palette is the stylesheet derived from a [Theme].
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	box   lipgloss.Style
}

func newPalette(t Theme) *Palette {
	base := lipgloss.NewStyle()
	return &Palette{
		title: base.Foreground(t.Accent).Bold(true).MarginBottom(1),
		ok:    base.Foreground(t.Success).Bold(true),
		err:   base.Foreground(t.Failure).Bold(true),
		warn:  base.Foreground(t.Warning),
		help:  base.Foreground(t.Muted).Italic(true),
		box:   base.Border(lipgloss.RoundedBorder()).BorderForeground(t.Accent).Padding(0, 1),
	}
}
