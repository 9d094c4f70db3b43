package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stickergif/pkg/bus"
	"stickergif/pkg/dispatch"
)

const (
	maxLogLines  = 500
	statsRefresh = 500 * time.Millisecond
)

type eventMsg bus.Event

type eventsClosedMsg struct{}

type statsTickMsg struct{}

type model struct {
	events <-chan bus.Event
	stats  StatsFunc

	theme     theme
	spinner   spinner.Model
	viewport  viewport.Model
	lines     []string
	counts    map[bus.EventType]int
	current   dispatch.Stats
	width     int
	height    int
	isReady   bool
	followLog bool
	closed    bool
}

func newModel(events <-chan bus.Event, stats StatsFunc) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("148"))

	return &model{
		events:    events,
		stats:     stats,
		theme:     defaultTheme(),
		spinner:   spin,
		viewport:  viewport.New(80, 12),
		counts:    make(map[bus.EventType]int),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), statsTickCmd(), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport()
		m.isReady = true
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		m.handleViewportKey(typed)
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case eventMsg:
		m.record(bus.Event(typed))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		m.closed = true
		return m, nil
	case statsTickMsg:
		if m.stats != nil {
			m.current = m.stats()
		}
		return m, statsTickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	return m, nil
}

func (m *model) record(event bus.Event) {
	m.counts[event.Type]++
	m.lines = append(m.lines, m.formatEvent(event))
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *model) formatEvent(event bus.Event) string {
	parts := []string{
		m.theme.timestamp.Render(event.At.Local().Format("15:04:05")),
		m.theme.forEvent(event.Type).Render(fmt.Sprintf("%-15s", event.Type)),
		m.theme.chat.Render(event.Origin.String()),
	}
	if event.Kind != "" {
		parts = append(parts, event.Kind)
	}
	if event.Key != "" {
		parts = append(parts, "key="+event.Key)
	}
	if event.Payload["placeholder"] == "true" {
		parts = append(parts, "placeholder")
	}
	if text := event.Payload["text"]; text != "" {
		parts = append(parts, fmt.Sprintf("%q", text))
	}
	if event.Error != "" {
		parts = append(parts, m.theme.failed.Render(event.Error))
	}
	return strings.Join(parts, " ")
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport()
	}

	header := m.theme.header.Width(m.width - 2).Render("stickergif monitor")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"workers:%d · queued:%d · in-flight:%d · processed:%d · dropped:%d",
		m.current.Workers,
		m.current.Queued,
		m.current.InFlight,
		m.current.Processed,
		m.current.Dropped,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	counts := fmt.Sprintf("hits:%d · queued:%d · done:%d · failed:%d · warnings:%d · delivery errors:%d",
		m.counts[bus.EventCacheHit],
		m.counts[bus.EventJobQueued],
		m.counts[bus.EventJobCompleted],
		m.counts[bus.EventJobFailed],
		m.counts[bus.EventWarningSent],
		m.counts[bus.EventDeliveryFailed],
	)
	status := m.theme.status.Render(counts)
	if m.current.InFlight > 0 || m.current.Queued > 0 {
		status = m.theme.statusBusy.Render(m.spinner.View() + " converting · " + counts)
	}
	if m.closed || m.current.Closed {
		status = m.theme.statusBusy.Render("draining · " + counts)
	}

	hint := m.theme.hint.Render("q quit and drain · PgUp/PgDn scroll · End follow")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		hint,
	)
}

func (m *model) resizeComponents() {
	w := max(40, m.width-6)
	h := max(6, m.height-8)

	m.viewport.Width = w
	m.viewport.Height = h
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.followLog {
		m.viewport.GotoBottom()
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "up", "k":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "down", "j":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home", "g":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end", "G":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func waitForEvent(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(event)
	}
}

func statsTickCmd() tea.Cmd {
	return tea.Tick(statsRefresh, func(time.Time) tea.Msg {
		return statsTickMsg{}
	})
}
