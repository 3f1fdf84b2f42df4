package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/loomhost/internal/events"
)

const eventLogCap = 200

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	health   BridgeHealth
	eventLog []events.Event

	// Live indicators
	ticker  Ticker
	spinner Spinner

	// UI state
	theme    Theme
	viewport viewport.Model
	ready    bool

	// Communication
	hubEvents chan events.Event

	// Error display
	lastError string
}

// New creates a new watch TUI model pointed at the control server.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		spinner:   NewSpinner(),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		streamHeight := m.height - 12
		if streamHeight < 5 {
			streamHeight = 5
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-8, streamHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 8
			m.viewport.Height = streamHeight
		}
		m.viewport.SetContent(m.renderEventLines())

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogCap {
			m.eventLog = m.eventLog[:eventLogCap]
		}

		m.spinner.OnEvent()

		if e.Type == events.TopicLifecycle {
			// Reflect transitions immediately rather than waiting for the
			// next status poll.
			if to := lifecycleTarget(e); to != "" {
				m.health.State = to
			}
		}

		if m.ready {
			m.viewport.SetContent(m.renderEventLines())
			m.viewport.GotoTop()
		}

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case statusMsg:
		m.health.State = msg.State
		m.health.RequestsSent = msg.RequestsSent
		m.health.EventsDelivered = msg.EventsDelivered
		m.health.EventsDropped = msg.EventsDropped
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// Reconnect after a short delay; the existing receiveNextEvent
		// goroutine is still waiting on the channel and will pick up
		// events from the new subscription.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width)

	var stream string
	if len(m.eventLog) == 0 {
		stream = m.theme.Border.Width(m.width - 4).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				m.theme.Title.Render("EVENT STREAM"),
				m.theme.Dim.Render("  Waiting for events..."),
			),
		)
	} else {
		stream = m.theme.Border.Width(m.width - 4).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				m.theme.Title.Render("EVENT STREAM"),
				m.viewport.View(),
			),
		)
	}

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll Events")

	parts := []string{header, stream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderEventLines() string {
	var lines []string
	for _, e := range m.eventLog {
		lines = append(lines, formatEvent(e, m.theme))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func lifecycleTarget(e events.Event) string {
	var data struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return ""
	}
	return data.To
}
