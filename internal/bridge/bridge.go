// Package bridge owns the host's handle to the embedded Loom runtime. It
// drives the handle through its lifecycle, translates host commands into
// blocking boundary calls, and re-marshals runtime events onto a single
// delivery goroutine for the rest of the process.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/loomhost/internal/core"
	"github.com/mattjoyce/loomhost/internal/events"
	"github.com/mattjoyce/loomhost/internal/log"
)

// State is the bridge's lifecycle position. Transitions are serialized by the
// bridge mutex; every operation checks its legality before touching the
// boundary.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInitFailed means the boundary yielded no handle (malformed
	// configuration or resource exhaustion on the runtime side).
	ErrInitFailed = errors.New("runtime initialization yielded no handle")

	// ErrAlreadyInitialized rejects a second Initialize.
	ErrAlreadyInitialized = errors.New("bridge already initialized")

	// ErrNotInitialized rejects Start before a successful Initialize.
	ErrNotInitialized = errors.New("bridge not initialized")

	// ErrAlreadyStarted rejects a second Start; the event callback is never
	// re-registered.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrNotRunning rejects Send outside the Running state.
	ErrNotRunning = errors.New("bridge not running")

	// ErrNullResponse marks a command the runtime answered with no text.
	// Contained: callers log it, nothing escalates.
	ErrNullResponse = errors.New("runtime returned no response text")
)

// StartError carries the runtime's non-zero startup status code.
type StartError struct {
	Code int32
}

func (e *StartError) Error() string {
	return fmt.Sprintf("runtime start failed with code %d", e.Code)
}

// Options tune the bridge. The zero value is usable.
type Options struct {
	// EventBuffer is the router queue capacity between the boundary callback
	// and the delivery goroutine. Default 256.
	EventBuffer int

	// SlowCommandWarning logs a warning when a boundary call blocks longer
	// than this. Zero disables the watchdog. The call itself is never
	// cancelled; the ABI has no cancellation.
	SlowCommandWarning time.Duration
}

// Bridge is the single owner of the runtime handle. The lifecycle methods
// mutate the handle under the write lock; Send only reads it under the read
// lock, so concurrent sends proceed while destroy waits for them to drain.
type Bridge struct {
	api    core.API
	hub    *events.Hub
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	state  State
	handle core.Handle
	token  uintptr
	router *router

	requests atomic.Uint64
}

// New builds a bridge over the given boundary implementation. Events and
// lifecycle transitions are published to hub.
func New(api core.API, hub *events.Hub, opts Options) *Bridge {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	return &Bridge{
		api:    api,
		hub:    hub,
		opts:   opts,
		logger: log.WithComponent("bridge"),
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Initialize passes the configuration document across the boundary and, on
// success, moves the bridge to Initialized. The handle it creates is owned by
// this bridge until Destroy.
func (b *Bridge) Initialize(configJSON string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	h := b.api.Init(configJSON)
	if h == 0 {
		b.logger.Error("runtime init failed", "config_bytes", len(configJSON))
		return ErrInitFailed
	}

	b.handle = h
	b.setStateLocked(StateInitialized)
	return nil
}

// Start spins up the runtime and registers the event callback exactly once.
// On a non-zero runtime status the state stays Initialized so the caller may
// retry or abandon.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateInitialized:
		// legal
	default:
		return ErrNotInitialized
	}

	if code := b.api.Start(b.handle); code != 0 {
		b.logger.Error("runtime start failed", "code", code)
		return &StartError{Code: code}
	}

	b.router = newRouter(b.hub, b.opts.EventBuffer)
	b.token = core.RegisterSink(b.router)
	b.api.SetEventCallback(b.handle, b.token)

	b.setStateLocked(StateRunning)
	return nil
}

// Stop signals the runtime to quiesce. Idempotent: calling it from Stopped,
// Destroyed or Uninitialized is a no-op. The handle stays valid.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateInitialized && b.state != StateRunning {
		return
	}

	b.api.Stop(b.handle)
	b.setStateLocked(StateStopped)
}

// Destroy releases the handle exactly once and moves to Destroyed. Safe to
// call multiple times. Waits for in-flight Send calls to drain before the
// handle is released.
func (b *Bridge) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateDestroyed {
		return
	}

	if b.handle != 0 {
		b.api.Destroy(b.handle)
		b.handle = 0
	}
	if b.router != nil {
		b.router.stop()
		// The handle is gone, so no further callback can arrive with this
		// token.
		core.UnregisterSink(b.token)
		b.router = nil
		b.token = 0
	}

	b.setStateLocked(StateDestroyed)
}

// Close runs the teardown contract: Stop then Destroy, on every exit path.
// Wire it with defer next to construction.
func (b *Bridge) Close() error {
	b.Stop()
	b.Destroy()
	return nil
}

// Stats is a point-in-time snapshot for the diagnostics surface.
type Stats struct {
	State           string `json:"state"`
	RequestsSent    uint64 `json:"requests_sent"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsDropped   uint64 `json:"events_dropped"`
	EventsMalformed uint64 `json:"events_malformed"`
}

func (b *Bridge) Stats() Stats {
	b.mu.RLock()
	state := b.state
	router := b.router
	b.mu.RUnlock()

	s := Stats{
		State:        state.String(),
		RequestsSent: b.requests.Load(),
	}
	if router != nil {
		s.EventsDelivered = router.delivered.Load()
		s.EventsDropped = router.dropped.Load()
		s.EventsMalformed = router.malformed.Load()
	}
	return s
}

func (b *Bridge) setStateLocked(s State) {
	from := b.state
	b.state = s
	b.logger.Info("lifecycle transition", "from", from.String(), "to", s.String())
	if b.hub != nil {
		b.hub.Publish(events.TopicLifecycle, map[string]any{
			"from": from.String(),
			"to":   s.String(),
		})
	}
}
