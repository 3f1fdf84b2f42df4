package protocol

import (
	"encoding/json"
	"fmt"
)

// EncodeCommand serializes a CommandEnvelope to its wire form.
// Returns an error if the envelope is invalid or the payload cannot be
// represented as JSON (non-finite numbers, unsupported value types, cycles).
func EncodeCommand(env *CommandEnvelope) (string, error) {
	if env.V != Version {
		return "", fmt.Errorf("unsupported envelope version: %d", env.V)
	}
	if env.RequestID == "" {
		return "", fmt.Errorf("envelope missing required field: request_id")
	}
	if env.Command == "" {
		return "", fmt.Errorf("envelope missing required field: command")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode command: %w", err)
	}
	return string(data), nil
}

// DecodeResponse deserializes a runtime response from its wire form.
// Returns an error if the text is not valid JSON or the envelope is invalid.
func DecodeResponse(text string) (*ResponseEnvelope, error) {
	var resp ResponseEnvelope
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Validate required fields
	if resp.V != Version {
		return nil, fmt.Errorf("unsupported response version: %d", resp.V)
	}
	if resp.RequestID == "" {
		return nil, fmt.Errorf("response missing required field: request_id")
	}
	if !resp.OK && resp.Error == "" {
		return nil, fmt.Errorf("response has ok=false but no error message")
	}

	return &resp, nil
}

// DecodeEvent deserializes runtime event text into an EventEnvelope.
// The text must be a JSON object at the top level; anything else is an error
// and the event is dropped by the caller.
func DecodeEvent(text string) (EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("event is not valid JSON: %w", err)
	}
	if env == nil {
		return nil, fmt.Errorf("event is not a JSON object")
	}
	return env, nil
}
