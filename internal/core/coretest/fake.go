// Package coretest provides a recording in-memory boundary implementation for
// tests. Every boundary invocation is journaled so tests can assert exactly
// which calls crossed, and response buffers track their release count so
// ownership bugs surface as test failures.
package coretest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mattjoyce/loomhost/internal/core"
)

// Call is one recorded boundary invocation.
type Call struct {
	Op   string // init | start | set_event_callback | send_command | release | stop | destroy
	Text string // command/config text where applicable
}

// FakeBuffer is a released-count-tracking response buffer.
type FakeBuffer struct {
	text     string
	Released int
}

func (b *FakeBuffer) Text() string { return b.text }

// Fake is a scriptable, recording core.API. The zero value behaves like a
// healthy runtime: init succeeds, start returns 0, and every command gets an
// ok response echoing its request_id.
type Fake struct {
	mu sync.Mutex

	// Script knobs.
	FailInit  bool
	StartCode int32
	// RespondWith overrides the response text for a command name. An entry
	// with the empty string value makes SendCommand return nil (null
	// response).
	RespondWith map[string]string

	calls      []Call
	nextHandle core.Handle
	live       map[core.Handle]bool
	token      uintptr
	tokenSet   bool
	buffers    []*FakeBuffer
}

// NewFake returns a healthy fake runtime.
func NewFake() *Fake {
	return &Fake{nextHandle: 1, live: make(map[core.Handle]bool)}
}

func (f *Fake) record(op, text string) {
	f.calls = append(f.calls, Call{Op: op, Text: text})
}

// Calls returns a copy of the recorded boundary invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many invocations of op were recorded.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// SentCommands returns the wire text of every send_command invocation in order.
func (f *Fake) SentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Op == "send_command" {
			out = append(out, c.Text)
		}
	}
	return out
}

// Buffers returns every response buffer handed out, for release accounting.
func (f *Fake) Buffers() []*FakeBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeBuffer, len(f.buffers))
	copy(out, f.buffers)
	return out
}

// LiveHandles returns how many handles exist that have not been destroyed.
func (f *Fake) LiveHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, alive := range f.live {
		if alive {
			n++
		}
	}
	return n
}

// EmitEvent drives the registered callback with raw event text, the way the
// runtime would from one of its internal threads. Safe for concurrent use.
func (f *Fake) EmitEvent(eventJSON string) {
	f.mu.Lock()
	ok := f.tokenSet
	token := f.token
	f.mu.Unlock()
	if !ok {
		return
	}
	core.DispatchEvent(token, eventJSON)
}

// --- core.API ---

func (f *Fake) Init(configJSON string) core.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("init", configJSON)

	if f.FailInit {
		return 0
	}
	if !json.Valid([]byte(configJSON)) {
		return 0
	}
	h := f.nextHandle
	f.nextHandle++
	f.live[h] = true
	return h
}

func (f *Fake) Start(h core.Handle) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start", "")
	if !f.live[h] {
		return -1
	}
	return f.StartCode
}

func (f *Fake) SetEventCallback(h core.Handle, token uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_event_callback", "")
	f.token = token
	f.tokenSet = true
}

func (f *Fake) SendCommand(h core.Handle, commandJSON string) core.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send_command", commandJSON)

	if !f.live[h] {
		return nil
	}

	var env struct {
		RequestID string `json:"request_id"`
		Command   string `json:"command"`
	}
	if err := json.Unmarshal([]byte(commandJSON), &env); err != nil {
		return nil
	}

	text, scripted := "", false
	if f.RespondWith != nil {
		text, scripted = f.RespondWith[env.Command]
	}
	if scripted {
		if text == "" {
			return nil
		}
	} else {
		text = fmt.Sprintf(`{"v":1,"request_id":%q,"ok":true,"payload":{}}`, env.RequestID)
	}

	buf := &FakeBuffer{text: text}
	f.buffers = append(f.buffers, buf)
	return buf
}

func (f *Fake) Release(b core.Buffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release", "")
	if fb, ok := b.(*FakeBuffer); ok && fb != nil {
		fb.Released++
	}
}

func (f *Fake) Stop(h core.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop", "")
}

func (f *Fake) Destroy(h core.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("destroy", "")
	f.live[h] = false
}
