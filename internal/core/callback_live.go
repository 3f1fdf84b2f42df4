//go:build loomffi

package core

import "C"

import "unsafe"

// loomhostEventTrampoline is the stateless function pointer handed to
// loom_core_set_event_callback. The runtime invokes it from its own internal
// threads; event_json is valid only for the duration of the call, so it is
// copied into a Go string before dispatch. user_data carries the sink token.
//
//export loomhostEventTrampoline
func loomhostEventTrampoline(eventJSON *C.char, userData unsafe.Pointer) {
	if eventJSON == nil {
		return
	}
	DispatchEvent(uintptr(userData), C.GoString(eventJSON))
}
