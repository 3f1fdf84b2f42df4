package protocol

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		env     *CommandEnvelope
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "valid ping command",
			env: &CommandEnvelope{
				V:         1,
				RequestID: "req-1",
				Command:   "host.ping",
				Payload:   map[string]any{},
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				want := `{"v":1,"request_id":"req-1","command":"host.ping","payload":{}}`
				if output != want {
					t.Errorf("wire text = %s, want %s", output, want)
				}
			},
		},
		{
			name: "payload fields survive encoding",
			env: &CommandEnvelope{
				V:         1,
				RequestID: "req-2",
				Command:   "conversation.inject_text",
				Payload:   map[string]any{"text": "hello", "urgent": true},
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"text":"hello"`) {
					t.Error("missing payload text field")
				}
				if !strings.Contains(output, `"urgent":true`) {
					t.Error("missing payload urgent field")
				}
			},
		},
		{
			name: "unsupported envelope version",
			env: &CommandEnvelope{
				V:         2,
				RequestID: "req-3",
				Command:   "host.ping",
			},
			wantErr: true,
		},
		{
			name: "empty command",
			env: &CommandEnvelope{
				V:         1,
				RequestID: "req-4",
				Command:   "",
			},
			wantErr: true,
		},
		{
			name: "empty request id",
			env: &CommandEnvelope{
				V:       1,
				Command: "host.ping",
			},
			wantErr: true,
		},
		{
			name: "unrepresentable payload value",
			env: &CommandEnvelope{
				V:         1,
				RequestID: "req-5",
				Command:   "host.ping",
				Payload:   map[string]any{"bad": math.Inf(1)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := EncodeCommand(tt.env)

			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeCommand() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, out)
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
		wantOK  bool
	}{
		{
			name:   "ok response",
			text:   `{"v":1,"request_id":"req-1","ok":true,"payload":{"pong":true}}`,
			wantOK: true,
		},
		{
			name:   "error response",
			text:   `{"v":1,"request_id":"req-2","ok":false,"error":"unknown command"}`,
			wantOK: false,
		},
		{
			name:    "not json",
			text:    `{bad`,
			wantErr: true,
		},
		{
			name:    "wrong version",
			text:    `{"v":99,"request_id":"req-3","ok":true}`,
			wantErr: true,
		},
		{
			name:    "missing request id",
			text:    `{"v":1,"ok":true}`,
			wantErr: true,
		},
		{
			name:    "error status without message",
			text:    `{"v":1,"request_id":"req-4","ok":false}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse(tt.text)

			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if resp.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", resp.OK, tt.wantOK)
			}
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "object", text: `{"type":"state_change","mode":"listening"}`},
		{name: "empty object", text: `{}`},
		{name: "truncated", text: `{bad`, wantErr: true},
		{name: "array top level", text: `[1,2,3]`, wantErr: true},
		{name: "scalar top level", text: `42`, wantErr: true},
		{name: "null", text: `null`, wantErr: true},
		{name: "empty string", text: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEvent(tt.text)

			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeEvent() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && env == nil {
				t.Error("expected non-nil envelope")
			}
		})
	}
}

func TestDecodeEventFields(t *testing.T) {
	env, err := DecodeEvent(`{"type":"state_change","mode":"listening"}`)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if env.Type() != "state_change" {
		t.Errorf("Type() = %q, want %q", env.Type(), "state_change")
	}
	if env["mode"] != "listening" {
		t.Errorf("mode = %v, want listening", env["mode"])
	}
}

// Round-trip: encoding a command payload and decoding the wire text back
// recovers the original mapping field-for-field.
func TestCommandRoundTrip(t *testing.T) {
	payload := map[string]any{
		"text":   "remind me at nine",
		"count":  float64(3),
		"nested": map[string]any{"deep": "value"},
	}

	wire, err := EncodeCommand(&CommandEnvelope{
		V:         1,
		RequestID: "req-7",
		Command:   "scheduler.create",
		Payload:   payload,
	})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	decoded, err := DecodeEvent(wire)
	if err != nil {
		t.Fatalf("decode wire text: %v", err)
	}

	got, ok := decoded["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload is not an object: %T", decoded["payload"])
	}
	if !reflect.DeepEqual(got, payload) {
		t.Errorf("round-trip payload = %#v, want %#v", got, payload)
	}
}
