package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"stickergif/pkg/bus"
)

// theme groups reusable styles for monitor regions.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	timestamp  lipgloss.Style
	chat       lipgloss.Style
	hit        lipgloss.Style
	queued     lipgloss.Style
	completed  lipgloss.Style
	failed     lipgloss.Style
	warning    lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	hint       lipgloss.Style
	viewport   lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("148")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("193")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("106")),
		timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		chat: lipgloss.NewStyle().
			Foreground(lipgloss.Color("109")),
		hit: lipgloss.NewStyle().
			Foreground(lipgloss.Color("44")).
			Bold(true),
		queued: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")),
		completed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("106")).
			Padding(0, 1),
	}
}

func (t theme) forEvent(eventType bus.EventType) lipgloss.Style {
	switch eventType {
	case bus.EventCacheHit:
		return t.hit
	case bus.EventJobQueued:
		return t.queued
	case bus.EventJobCompleted:
		return t.completed
	case bus.EventJobFailed, bus.EventDeliveryFailed:
		return t.failed
	case bus.EventWarningSent:
		return t.warning
	default:
		return t.status
	}
}
