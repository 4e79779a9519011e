package main

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha subset.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	labelStyle   = lipgloss.NewStyle().Foreground(colorOverlay1).Width(22)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)
	goodStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	errStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	accentStyle  = lipgloss.NewStyle().Foreground(colorPeach)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorLavender)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorOverlay1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)
)

// coverageStyle colors a mapping coverage percentage.
func coverageStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 95:
		return goodStyle
	case pct >= 80:
		return lipgloss.NewStyle().Foreground(colorTeal)
	case pct >= 50:
		return warnStyle
	default:
		return errStyle
	}
}
