package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// BridgeHealth tracks host state from /status polling.
type BridgeHealth struct {
	State           string
	RequestsSent    uint64
	EventsDelivered uint64
	EventsDropped   uint64
	UptimeSeconds   int64
	Connected       bool
	LastCheck       time.Time
}

func renderHeader(health BridgeHealth, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4

	stateText := theme.StatusStopped.Render(strings.ToUpper(health.State))
	switch health.State {
	case "running":
		stateText = theme.StatusOK.Render("RUNNING")
	case "initialized":
		stateText = theme.StatusRunning.Render("INITIALIZED")
	case "destroyed":
		stateText = theme.StatusFailed.Render("DESTROYED")
	}
	if !health.Connected {
		stateText = theme.StatusFailed.Render("CONNECTING")
	}

	uptime := time.Duration(health.UptimeSeconds) * time.Second
	uptimeStr := formatDuration(uptime)

	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		ago := time.Since(spinner.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" LOOMHOST WATCH %s", tickerStr)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" Bridge: %s  ⏱ %s  Commands: %d  Events: %d (%d dropped)",
		stateText,
		uptimeStr,
		health.RequestsSent,
		health.EventsDelivered,
		health.EventsDropped,
	)

	activityLine := fmt.Sprintf(" Last event: %s %s",
		lastEventStr,
		spinner.Render(theme),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
