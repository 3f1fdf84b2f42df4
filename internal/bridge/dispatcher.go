package bridge

import (
	"fmt"
	"time"

	"github.com/mattjoyce/loomhost/internal/events"
	"github.com/mattjoyce/loomhost/internal/protocol"
)

// Send dispatches one command to the runtime and returns its decoded
// response. The boundary call blocks the calling goroutine until the runtime
// replies; there is no cancellation. Errors from Send are diagnostics, not
// session-enders: only Initialize/Start failures gate the bridge.
//
// Request IDs are strictly increasing in program order of Send calls for the
// lifetime of the bridge, regardless of which goroutines call.
func (b *Bridge) Send(command string, payload map[string]any) (*protocol.ResponseEnvelope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state != StateRunning {
		b.logger.Warn("command rejected, bridge not running",
			"command", command, "state", b.state.String())
		return nil, ErrNotRunning
	}

	requestID := fmt.Sprintf("req-%d", b.requests.Add(1))
	logger := b.logger.With("request_id", requestID, "command", command)

	if payload == nil {
		payload = map[string]any{}
	}
	wire, err := protocol.EncodeCommand(&protocol.CommandEnvelope{
		V:         protocol.Version,
		RequestID: requestID,
		Command:   command,
		Payload:   payload,
	})
	if err != nil {
		// Nothing crossed the boundary.
		logger.Error("command not sent", "error", err)
		return nil, fmt.Errorf("encode command: %w", err)
	}

	started := time.Now()
	if b.opts.SlowCommandWarning > 0 {
		watchdog := time.AfterFunc(b.opts.SlowCommandWarning, func() {
			logger.Warn("command still blocking",
				"after", b.opts.SlowCommandWarning.String())
		})
		defer watchdog.Stop()
	}

	buf := b.api.SendCommand(b.handle, wire)
	elapsed := time.Since(started)

	if buf == nil {
		logger.Warn("runtime returned null response", "elapsed", elapsed.String())
		b.publishCommandLocked(requestID, command, false, ErrNullResponse.Error(), elapsed)
		return nil, ErrNullResponse
	}
	// Response text is boundary-owned; release it exactly once whether or
	// not decoding succeeds.
	defer b.api.Release(buf)

	resp, err := protocol.DecodeResponse(buf.Text())
	if err != nil {
		logger.Error("undecodable runtime response", "error", err, "elapsed", elapsed.String())
		b.publishCommandLocked(requestID, command, false, err.Error(), elapsed)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	logger.Debug("command completed", "ok", resp.OK, "elapsed", elapsed.String())
	b.publishCommandLocked(requestID, command, resp.OK, resp.Error, elapsed)
	return resp, nil
}

// publishCommandLocked posts a command outcome to the hub for journaling and
// diagnostics. Caller holds at least the read lock.
func (b *Bridge) publishCommandLocked(requestID, command string, ok bool, errMsg string, elapsed time.Duration) {
	if b.hub == nil {
		return
	}
	b.hub.Publish(events.TopicCommand, map[string]any{
		"request_id":  requestID,
		"command":     command,
		"ok":          ok,
		"error":       errMsg,
		"duration_ms": elapsed.Milliseconds(),
	})
}
