package tui

import (
	"github.com/charmbracelet/lipgloss"

	"safeplate/internal/notify"
)

type Styles struct {
	Title   lipgloss.Style
	Step    lipgloss.Style
	Label   lipgloss.Style
	Focused lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Help    lipgloss.Style
	Levels  map[notify.Level]lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2E7D32")),
		Step:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Label:   lipgloss.NewStyle().Width(28),
		Focused: lipgloss.NewStyle().Width(28).Bold(true).Foreground(lipgloss.Color("#1565C0")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		Help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		Levels: map[notify.Level]lipgloss.Style{
			notify.Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#2E7D32")).Bold(true),
			notify.Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#1565C0")),
			notify.Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#C62828")).Bold(true),
			notify.Alert: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color("#C62828")).Bold(true).Padding(0, 1),
		},
	}
}
