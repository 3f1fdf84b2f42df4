package control

import "github.com/mattjoyce/loomhost/internal/journal"

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	BridgeState   string `json:"bridge_state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	State           string `json:"state"`
	RequestsSent    uint64 `json:"requests_sent"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsDropped   uint64 `json:"events_dropped"`
	EventsMalformed uint64 `json:"events_malformed"`
	ConfigHash      string `json:"config_hash,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// CommandRequest is the body of POST /commands.
type CommandRequest struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RecentEventsResponse is returned by GET /events/recent.
type RecentEventsResponse struct {
	Events []journal.Entry `json:"events"`
}

// ErrorResponse is the shape of all error bodies.
type ErrorResponse struct {
	Error string `json:"error"`
}
