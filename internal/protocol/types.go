package protocol

import "encoding/json"

// Version is the wire contract version for command and response envelopes.
const Version = 1

// CommandEnvelope is the envelope sent to the embedded runtime for each command.
type CommandEnvelope struct {
	V         int            `json:"v"`
	RequestID string         `json:"request_id"`
	Command   string         `json:"command"` // dotted name, e.g. "host.ping"
	Payload   map[string]any `json:"payload"`
}

// ResponseEnvelope is the envelope the runtime returns for every command.
type ResponseEnvelope struct {
	V         int             `json:"v"`
	RequestID string          `json:"request_id"`
	OK        bool            `json:"ok"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// EventEnvelope is a runtime-originated event. The bridge enforces no schema
// beyond "JSON object at the top level"; subscribers interpret the fields.
type EventEnvelope map[string]any

// Type returns the event's "type" field, or "" when absent or not a string.
func (e EventEnvelope) Type() string {
	s, _ := e["type"].(string)
	return s
}
