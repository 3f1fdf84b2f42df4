package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/loomhost/internal/events"
)

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TopicLifecycle:
		typeStyle = theme.Highlight
	case events.TopicCommand:
		typeStyle = commandStyle(e, theme)
	case events.TopicRuntime:
		typeStyle = theme.StatusRunning
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-16s", e.Type))
	desc := extractEventDesc(e)

	return fmt.Sprintf("%s %s %s", ts, typeName, desc)
}

func commandStyle(e events.Event, theme Theme) lipgloss.Style {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)
	if ok, _ := data["ok"].(bool); ok {
		return theme.StatusOK
	}
	return theme.StatusFailed
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if reqID, ok := data["request_id"].(string); ok {
		parts = append(parts, fmt.Sprintf("[%s]", reqID))
	}

	if command, ok := data["command"].(string); ok {
		parts = append(parts, command)
	}

	if typ, ok := data["type"].(string); ok {
		parts = append(parts, typ)
	}

	if from, ok := data["from"].(string); ok {
		to, _ := data["to"].(string)
		parts = append(parts, fmt.Sprintf("%s → %s", from, to))
	}

	if errText, ok := data["error"].(string); ok && errText != "" {
		parts = append(parts, errText)
	}

	if ms, ok := data["duration_ms"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%dms", int64(ms)))
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
