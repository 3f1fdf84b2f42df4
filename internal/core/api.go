// Package core defines the boundary between the host and the embedded Loom
// runtime (libloom). The runtime lives in the same process behind a fixed
// 8-function C ABI; nothing but primitive values, opaque handles and JSON text
// crosses it.
package core

import (
	"runtime/cgo"

	"github.com/mattjoyce/loomhost/internal/log"
)

// Handle identifies a live runtime instance. Zero means "no handle". The
// host may only pass it back to API operations; it must never be used after
// Destroy.
type Handle uintptr

// Buffer is boundary-owned response text returned by SendCommand. The caller
// must pass it to API.Release exactly once after consuming its contents,
// whether or not decoding succeeds.
type Buffer interface {
	Text() string
}

// API is the boundary surface. The live implementation (build tag "loomffi")
// calls the loom_core_* symbols; tests use the recording fake in coretest.
type API interface {
	// Init creates a runtime from a JSON configuration document. Returns the
	// zero Handle when the runtime cannot be created (malformed config,
	// resource exhaustion on the runtime side).
	Init(configJSON string) Handle

	// Start spins up the runtime's command server. Returns 0 on success, a
	// non-zero runtime status code otherwise.
	Start(h Handle) int32

	// SetEventCallback registers the host's event trampoline with the given
	// user-data token. The token must stay registered (see RegisterSink) for
	// as long as the handle lives.
	SetEventCallback(h Handle, token uintptr)

	// SendCommand performs the blocking boundary call. It suspends the caller
	// until the runtime replies; there is no timeout. A nil Buffer means the
	// runtime produced no response text.
	SendCommand(h Handle, commandJSON string) Buffer

	// Release frees a Buffer returned by SendCommand. Safe on nil.
	Release(b Buffer)

	// Stop asks the runtime to quiesce. Idempotent; the handle stays valid.
	Stop(h Handle)

	// Destroy invalidates the handle and frees all runtime resources.
	// Must be called exactly once per live handle.
	Destroy(h Handle)
}

// EventSink receives raw event text from the runtime. Implementations must
// tolerate invocation from arbitrary goroutines, concurrently with themselves
// and with in-flight SendCommand calls, and must return promptly.
type EventSink interface {
	HandleEvent(eventJSON string)
}

// RegisterSink wraps a sink in an opaque token that can be smuggled through
// the boundary as callback user data. The boundary ABI cannot carry closures;
// the receiving side recovers the sink via the token, not via captured state.
func RegisterSink(sink EventSink) uintptr {
	return uintptr(cgo.NewHandle(sink))
}

// UnregisterSink invalidates a token from RegisterSink. Callers must ensure
// the runtime will no longer invoke the callback (handle destroyed) first.
func UnregisterSink(token uintptr) {
	cgo.Handle(token).Delete()
}

// DispatchEvent recovers the sink behind token and delivers raw event text to
// it. This is the single entry point for boundary-originated callbacks; a
// failure here must never propagate back across the boundary, so panics are
// swallowed and logged.
func DispatchEvent(token uintptr, eventJSON string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("core").Error("event sink panicked", "panic", r)
		}
	}()

	sink, ok := cgo.Handle(token).Value().(EventSink)
	if !ok {
		log.WithComponent("core").Error("event token does not resolve to a sink")
		return
	}
	sink.HandleEvent(eventJSON)
}
