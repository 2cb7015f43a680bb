package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/droverhq/drover/internal/plans"
	"github.com/droverhq/drover/internal/swarm"
)

var (
	// Colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	greenColor  = lipgloss.Color("#10B981") // Green
	amberColor  = lipgloss.Color("#F59E0B") // Amber
	redColor    = lipgloss.Color("#F87171") // Red (red-400)
	grayColor   = lipgloss.Color("#9CA3AF") // Gray
	purpleColor = lipgloss.Color("#A78BFA") // Purple (violet-400)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purpleColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(grayColor)

	staleStyle = lipgloss.NewStyle().
			Foreground(amberColor)
)

// statusDot renders the colored indicator used in front of every record line.
func statusDot(color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render("●")
}

// planStatusColor maps a plan lifecycle status to its display color.
func planStatusColor(s plans.Status) lipgloss.Color {
	switch s {
	case plans.StatusExecuted:
		return greenColor
	case plans.StatusReviewed:
		return purpleColor
	case plans.StatusFailed:
		return redColor
	default:
		return grayColor
	}
}

// swarmStatusColor maps swarm and task statuses to their display color.
// Swarm and task rollups share the same status vocabulary.
func swarmStatusColor(s string) lipgloss.Color {
	switch s {
	case swarm.StatusCompleted.String():
		return greenColor
	case swarm.StatusFailed.String():
		return redColor
	case swarm.StatusPartial.String():
		return amberColor
	case swarm.StatusRunning.String():
		return purpleColor
	default:
		return grayColor
	}
}
