package jit

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Code Generation Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidTarget     = errors.New("jump target out of range")
	ErrBranchOutOfRange  = errors.New("branch displacement out of range")
	ErrPatchOutOfBounds  = errors.New("patch site outside emitted code")
	ErrBufferOverflow    = errors.New("code buffer overflow")
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrUnknownRelocation = errors.New("relocation kind not supported by backend")
	ErrUnsupported       = errors.New("native execution not supported on this platform")
)

// Helpers holds the native addresses of the runtime helpers that generated
// code calls.
type Helpers struct {
	PushLambda uint64
	PreCall    uint64
	PostCall   uint64
	ReadByte   uint64
	WriteByte  uint64
}

// Backend emits machine code for one target architecture. Every emitted
// function returns a status word: 0 when it ran to completion and 1 when a
// runtime helper failed and execution must unwind.
type Backend interface {
	Name() string

	// MaxCodeSize bounds the bytes emitted for one instruction, not counting
	// the body of a lambda.
	MaxCodeSize(op bytecode.Opcode) int
	// FunctionOverhead bounds the halt stub, alignment padding, prologue and
	// epilogue of one function.
	FunctionOverhead() int
	// EntrySize bounds the entry stub including its alignment.
	EntrySize() int

	Align(b *CodeBuffer)
	EmitHaltStub(b *CodeBuffer)
	EmitPrologue(b *CodeBuffer)
	EmitEpilogue(b *CodeBuffer)
	EmitEntry(b *CodeBuffer, main uint64)

	// EmitInstruction lowers one straight-line, loop, I/O, call or return
	// instruction. halt is the byte offset of the enclosing function's halt
	// stub.
	EmitInstruction(b *CodeBuffer, in bytecode.Instruction, halt int)
	// EmitSkip emits an unconditional branch to the instruction at target.
	EmitSkip(b *CodeBuffer, target int)
	// EmitPushLambda defines a lambda whose body starts at the native
	// address body, capturing the current cell pointer.
	EmitPushLambda(b *CodeBuffer, body uint64)

	// Patch writes the displacement from the patch site r.Offset to the byte
	// offset target into code.
	Patch(code []byte, r Relocation, target int) error
}

// NewBackend returns the backend for the architecture arch.
func NewBackend(arch string, h Helpers) (Backend, error) {
	switch arch {
	case "amd64":
		return NewAMD64(h), nil
	case "arm64":
		return NewARM64(h), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, arch)
}

// HostBackend returns the backend for the running architecture.
func HostBackend(h Helpers) (Backend, error) {
	return NewBackend(runtime.GOARCH, h)
}

// BackendByName resolves a configured backend name. "auto" and the empty
// string select the host backend.
func BackendByName(name string, h Helpers) (Backend, error) {
	if name == "" || name == "auto" {
		return HostBackend(h)
	}
	return NewBackend(name, h)
}
