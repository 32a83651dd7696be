//go:build cgo && linux && (amd64 || arm64)

package jit

// #include <stdint.h>
import "C"

import (
	"runtime/cgo"

	"github.com/chazu/brainfork/vm"
)

// Entry points for generated code. The first argument, except for
// bfWriteByte where it is the cell value, is a cgo.Handle to the run's
// vm.Context.

func contextOf(h C.uintptr_t) *vm.Context {
	return cgo.Handle(h).Value().(*vm.Context)
}

//export bfPushLambda
func bfPushLambda(h C.uintptr_t, body C.uint64_t, captured C.uint32_t) {
	pushLambda(contextOf(h), uint64(body), uint32(captured))
}

//export bfPreCall
func bfPreCall(h C.uintptr_t, current C.uint32_t, ret C.uint64_t) (C.uint64_t, C.uint64_t) {
	addr, captured := preCall(contextOf(h), uint32(current), uint64(ret))
	return C.uint64_t(addr), C.uint64_t(captured)
}

//export bfPostCall
func bfPostCall(h C.uintptr_t) C.uint64_t {
	return C.uint64_t(postCall(contextOf(h)))
}

//export bfReadByte
func bfReadByte(h C.uintptr_t) C.int64_t {
	return C.int64_t(readByte(contextOf(h)))
}

//export bfWriteByte
func bfWriteByte(c C.uint32_t, h C.uintptr_t) C.uint64_t {
	return C.uint64_t(writeByte(contextOf(h), byte(c)))
}
