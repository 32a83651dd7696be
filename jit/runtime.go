package jit

import (
	"github.com/chazu/brainfork/pkg/bytecode"
	"github.com/chazu/brainfork/vm"
)

// The runtime helpers called from generated code. Each failure is recorded
// on the context and reported to native code as a sentinel so it can unwind.

func helperError(op bytecode.Opcode, err error) error {
	return &vm.RuntimeError{PC: -1, Op: op, Err: err}
}

func pushLambda(ctx *vm.Context, body uint64, captured uint32) {
	ctx.PushLambda(vm.Lambda{Body: body, Captured: captured})
}

// preCall records a frame for the call returning to ret and yields the
// innermost lambda's body and captured pointer. (0, 0) means the call failed.
func preCall(ctx *vm.Context, current uint32, ret uint64) (uint64, uint64) {
	l, ok := ctx.TopLambda()
	if !ok {
		ctx.Fail(helperError(bytecode.OpCall, vm.ErrCallWithNoLambda))
		return 0, 0
	}
	if err := ctx.PushFrame(vm.CallFrame{Return: ret, Saved: current}); err != nil {
		ctx.Fail(helperError(bytecode.OpCall, err))
		return 0, 0
	}
	return l.Body, uint64(l.Captured)
}

// postCall pops the frame pushed by preCall and yields the caller's saved
// pointer, or all ones on failure.
func postCall(ctx *vm.Context) uint64 {
	f, ok := ctx.PopFrame()
	if !ok {
		ctx.Fail(helperError(bytecode.OpReturn, vm.ErrReturnWithoutCall))
		return ^uint64(0)
	}
	return uint64(f.Saved)
}

// readByte yields the next input byte, the EOF byte, or -1 on failure.
func readByte(ctx *vm.Context) int64 {
	b, err := ctx.ReadByte()
	if err != nil {
		ctx.Fail(helperError(bytecode.OpRead, err))
		return -1
	}
	return int64(b)
}

// writeByte yields 0 on success.
func writeByte(ctx *vm.Context, c byte) uint64 {
	if err := ctx.WriteByte(c); err != nil {
		ctx.Fail(helperError(bytecode.OpWrite, err))
		return 1
	}
	return 0
}
