package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	neon    = lipgloss.Color("#39FF14")
	magenta = lipgloss.Color("#FF2BD6")
	steel   = lipgloss.Color("#88AABB")
	gunmet  = lipgloss.Color("#7D84A8")
	alert   = lipgloss.Color("#FF5C5C")

	titleStyle   = lipgloss.NewStyle().Foreground(neon).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(magenta).Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Foreground(steel).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(gunmet)
	errorStyle   = lipgloss.NewStyle().Foreground(alert).Bold(true)

	divider = dimStyle.Render(strings.Repeat("─", 48))
)
