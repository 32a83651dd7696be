//go:build cgo && linux && (amd64 || arm64)

package jit

/*
#include <stdint.h>

uint64_t bf_invoke(uintptr_t entry, uintptr_t tape, uintptr_t ctx);
void bf_flush_icache(uintptr_t start, uintptr_t end);
uintptr_t bf_push_lambda_addr(void);
uintptr_t bf_pre_call_addr(void);
uintptr_t bf_post_call_addr(void);
uintptr_t bf_read_byte_addr(void);
uintptr_t bf_write_byte_addr(void);
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"unsafe"

	"github.com/chazu/brainfork/vm"
)

const supported = true

func hostHelpers() Helpers {
	return Helpers{
		PushLambda: uint64(C.bf_push_lambda_addr()),
		PreCall:    uint64(C.bf_pre_call_addr()),
		PostCall:   uint64(C.bf_post_call_addr()),
		ReadByte:   uint64(C.bf_read_byte_addr()),
		WriteByte:  uint64(C.bf_write_byte_addr()),
	}
}

func flushICache(start, end uint64) {
	C.bf_flush_icache(C.uintptr_t(start), C.uintptr_t(end))
}

// invoke runs the entry stub at entry against ctx and returns the status
// word. It is the only place generated code is entered. The tape stays
// pinned and the context handle live until the code returns.
func invoke(entry Entry, ctx *vm.Context) uint64 {
	var pin runtime.Pinner
	pin.Pin(ctx.Tape)
	defer pin.Unpin()

	h := cgo.NewHandle(ctx)
	defer h.Delete()

	tape := uintptr(unsafe.Pointer(ctx.Tape))
	return uint64(C.bf_invoke(C.uintptr_t(entry.addr()), C.uintptr_t(tape), C.uintptr_t(h)))
}
