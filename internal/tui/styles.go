package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wemokit/wemokit/internal/version"
)

// Application branding constants
const (
	AppName   = "WEMOKIT CONTROL PANEL"
	GitHubURL = "github.com/wemokit/wemokit"
)

// AppVersion returns the application version from the centralized version package
func AppVersion() string {
	return version.Version
}

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF0000") // Red

	TextColor      = lipgloss.Color("#FFFFFF") // White
	SubtleColor    = lipgloss.Color("#626262") // Gray
	BorderColor    = lipgloss.Color("#7D56F4") // Purple (same as primary)
	HighlightColor = lipgloss.Color("#43BF6D") // Green (same as secondary)
)

// Common styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			Padding(1, 0)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(HighlightColor).
				Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	HelpStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Padding(1, 0)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	OnBadgeStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	OffBadgeStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	StandbyBadgeStyle = lipgloss.NewStyle().
				Foreground(WarningColor)

	PendingBadgeStyle = lipgloss.NewStyle().
				Foreground(SubtleColor).
				Italic(true)
)

// RenderHeader renders the panel header with app name and version
func RenderHeader() string {
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(AppName + " v" + AppVersion())

	right := lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(GitHubURL)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// renderStateBadge renders a device's binary state as a colored badge.
// A nil state means the state query is still in flight.
func renderStateBadge(state *int) string {
	if state == nil {
		return PendingBadgeStyle.Render("[ ... ]")
	}
	switch *state {
	case 1:
		return OnBadgeStyle.Render("[ ON  ]")
	case 8:
		return StandbyBadgeStyle.Render("[STDBY]")
	default:
		return OffBadgeStyle.Render("[ OFF ]")
	}
}
