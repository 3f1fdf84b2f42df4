//go:build loomffi

package core

/*
#cgo LDFLAGS: -lloom

#include <stdint.h>
#include <stdlib.h>

typedef void (*LoomEventCallback)(const char *event_json, void *user_data);

extern void    *loom_core_init(const char *config_json);
extern int32_t  loom_core_start(void *handle);
extern char    *loom_core_send_command(void *handle, const char *command_json);
extern void     loom_core_set_event_callback(void *handle, LoomEventCallback cb, void *user_data);
extern void     loom_core_stop(void *handle);
extern void     loom_core_destroy(void *handle);
extern void     loom_string_free(char *s);

// Exported from callback_live.go.
extern void loomhostEventTrampoline(char *event_json, void *user_data);

static void loom_register_trampoline(void *handle, void *user_data) {
	loom_core_set_event_callback(handle, (LoomEventCallback)loomhostEventTrampoline, user_data);
}
*/
import "C"

import "unsafe"

// Available reports whether this binary was built against libloom.
func Available() bool { return true }

// liveAPI drives the statically linked libloom through its C ABI.
type liveAPI struct{}

// Live returns the boundary implementation backed by libloom.
func Live() API { return liveAPI{} }

// cBuffer wraps a response string allocated by the runtime. The pointer stays
// owned by the boundary until Release hands it back to loom_string_free.
type cBuffer struct {
	ptr *C.char
}

func (b *cBuffer) Text() string {
	return C.GoString(b.ptr)
}

func (liveAPI) Init(configJSON string) Handle {
	cs := C.CString(configJSON)
	defer C.free(unsafe.Pointer(cs))
	return Handle(uintptr(C.loom_core_init(cs)))
}

func (liveAPI) Start(h Handle) int32 {
	return int32(C.loom_core_start(unsafe.Pointer(h))) //nolint:unconvert
}

func (liveAPI) SetEventCallback(h Handle, token uintptr) {
	C.loom_register_trampoline(unsafe.Pointer(h), unsafe.Pointer(token)) //nolint:govet
}

func (liveAPI) SendCommand(h Handle, commandJSON string) Buffer {
	cs := C.CString(commandJSON)
	defer C.free(unsafe.Pointer(cs))

	ptr := C.loom_core_send_command(unsafe.Pointer(h), cs)
	if ptr == nil {
		return nil
	}
	return &cBuffer{ptr: ptr}
}

func (liveAPI) Release(b Buffer) {
	cb, ok := b.(*cBuffer)
	if !ok || cb == nil || cb.ptr == nil {
		return
	}
	C.loom_string_free(cb.ptr)
	cb.ptr = nil
}

func (liveAPI) Stop(h Handle) {
	C.loom_core_stop(unsafe.Pointer(h))
}

func (liveAPI) Destroy(h Handle) {
	C.loom_core_destroy(unsafe.Pointer(h))
}
