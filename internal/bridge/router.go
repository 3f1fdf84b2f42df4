package bridge

import (
	"log/slog"
	"sync/atomic"

	"github.com/mattjoyce/loomhost/internal/events"
	"github.com/mattjoyce/loomhost/internal/log"
	"github.com/mattjoyce/loomhost/internal/protocol"
)

// router is the bridge's core.EventSink. The runtime invokes HandleEvent from
// its own internal threads, possibly concurrently; HandleEvent only enqueues
// and returns, so the runtime thread is never stalled. A single delivery
// goroutine decodes and publishes, which serializes what subscribers see
// while preserving per-producer order.
type router struct {
	queue  chan string
	done   chan struct{}
	hub    *events.Hub
	logger *slog.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

func newRouter(hub *events.Hub, buffer int) *router {
	r := &router{
		queue:  make(chan string, buffer),
		done:   make(chan struct{}),
		hub:    hub,
		logger: log.WithComponent("router"),
	}
	go r.run()
	return r
}

// HandleEvent implements core.EventSink. Called from arbitrary runtime
// threads; must not block. Overflow drops the event rather than stalling the
// boundary callback.
func (r *router) HandleEvent(eventJSON string) {
	select {
	case r.queue <- eventJSON:
	default:
		r.dropped.Add(1)
		r.logger.Warn("event queue full, dropping event")
	}
}

func (r *router) run() {
	for {
		select {
		case <-r.done:
			return
		case text := <-r.queue:
			r.deliver(text)
		}
	}
}

func (r *router) deliver(text string) {
	env, err := protocol.DecodeEvent(text)
	if err != nil {
		// Malformed events are dropped, never surfaced to subscribers.
		r.malformed.Add(1)
		r.logger.Warn("dropping malformed event", "error", err)
		return
	}

	r.delivered.Add(1)
	r.hub.Publish(events.TopicRuntime, env)
}

// stop halts the delivery goroutine. Events still queued are discarded;
// HandleEvent calls racing with stop fall into the overflow path once the
// goroutine is gone.
func (r *router) stop() {
	close(r.done)
}
