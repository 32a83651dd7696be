package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Runtime Error Types
// ---------------------------------------------------------------------------

var (
	ErrCallWithNoLambda  = errors.New("call with no lambda defined")
	ErrReturnWithoutCall = errors.New("return without matching call")
	ErrCallStackOverflow = errors.New("call stack overflow")
	ErrPointerOutOfRange = errors.New("cell pointer out of range")
	ErrIO                = errors.New("i/o error")
	ErrContextClosed     = errors.New("execution context is closed")
)

// RuntimeError describes a failure that stopped execution.
type RuntimeError struct {
	PC  int             // instruction index, -1 when unknown
	Op  bytecode.Opcode // instruction being executed
	Loc bytecode.SourceLocation
	Err error
}

func (e *RuntimeError) Error() string {
	if e.PC < 0 {
		return e.Err.Error()
	}
	if e.Loc.Line > 0 {
		return fmt.Sprintf("%s at %d (line %d:%d): %v", e.Op, e.PC, e.Loc.Line, e.Loc.Column, e.Err)
	}
	return fmt.Sprintf("%s at %d: %v", e.Op, e.PC, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
