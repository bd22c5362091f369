package ui

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette. Accent is the violet of note links, Rule is used for
// panel borders and separators.
const (
	ColorAccent    = "141"
	ColorAccentDim = "97"
	ColorText      = "252"
	ColorMuted     = "244"
	ColorRule      = "238"
	ColorRed       = "203"
	ColorYellow    = "221"
)

// Styles holds the lipgloss styles shared by the renderers.
type Styles struct {
	Header    lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Active    lipgloss.Style
	Label     lipgloss.Style
	Border    lipgloss.Style
	Sparkline lipgloss.Style
	Speed     lipgloss.Style
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// DefaultStyles returns the colored styles used on a terminal.
func DefaultStyles() Styles {
	return Styles{
		Header:    fg(ColorAccent).Bold(true),
		Success:   fg(ColorAccent),
		Warning:   fg(ColorYellow),
		Error:     fg(ColorRed),
		Dim:       fg(ColorRule),
		Active:    fg(ColorText).Bold(true),
		Label:     fg(ColorMuted),
		Border:    fg(ColorRule),
		Sparkline: fg(ColorAccentDim),
		Speed:     fg(ColorMuted),
	}
}

// NoColorStyles returns styles that render text unchanged.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header: plain, Success: plain, Warning: plain, Error: plain, Dim: plain,
		Active: plain, Label: plain, Border: plain, Sparkline: plain, Speed: plain,
	}
}

// GetStyles picks DefaultStyles or NoColorStyles.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
