package vm

import (
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/brainfork/pkg/bytecode"
)

var log = commonlog.GetLogger("brainfork.vm")

// Interpret executes p against ctx until the program counter runs off the
// end of the program or an instruction fails.
func Interpret(ctx *Context, p *bytecode.Program) error {
	if ctx.Tape == nil {
		return fmt.Errorf("interpret %s: %w", ctx.ID, ErrContextClosed)
	}
	code := p.Code
	tape := ctx.Tape
	var ptr uint32
	pc := 0

	fail := func(err error) error {
		return &RuntimeError{PC: pc, Op: code[pc].Op, Loc: p.Location(pc), Err: err}
	}

	for pc < len(code) {
		in := code[pc]
		switch in.Op {
		case bytecode.OpAdd:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			tape[ptr] += byte(in.Operand)
		case bytecode.OpSub:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			tape[ptr] -= byte(in.Operand)
		case bytecode.OpRight:
			ptr += in.Operand
		case bytecode.OpLeft:
			ptr -= in.Operand
		case bytecode.OpJumpIfZero:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			if tape[ptr] == 0 {
				pc = int(in.Operand)
				continue
			}
		case bytecode.OpJumpIfNonZero:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			if tape[ptr] != 0 {
				pc = int(in.Operand)
				continue
			}
		case bytecode.OpRead:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			b, err := ctx.ReadByte()
			if err != nil {
				return fail(err)
			}
			tape[ptr] = b
		case bytecode.OpWrite:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			if err := ctx.WriteByte(tape[ptr]); err != nil {
				return fail(err)
			}
		case bytecode.OpClear:
			if ptr >= TapeSize {
				return fail(ErrPointerOutOfRange)
			}
			tape[ptr] = 0
		case bytecode.OpLambda:
			ctx.PushLambda(Lambda{Body: uint64(pc + 1), Captured: ptr})
			pc = int(in.Operand)
			continue
		case bytecode.OpCall:
			l, ok := ctx.TopLambda()
			if !ok {
				return fail(ErrCallWithNoLambda)
			}
			if err := ctx.PushFrame(CallFrame{Return: uint64(pc + 1), Saved: ptr}); err != nil {
				return fail(err)
			}
			pc = int(l.Body)
			ptr = l.Captured
			continue
		case bytecode.OpReturn:
			f, ok := ctx.PopFrame()
			if !ok {
				return fail(ErrReturnWithoutCall)
			}
			pc = int(f.Return)
			ptr = f.Saved
			continue
		}
		pc++
	}
	return nil
}

// Run interprets p on a fresh context and releases it afterwards.
func Run(p *bytecode.Program, in io.Reader, out io.Writer, opts ...Option) error {
	ctx := NewContext(in, out, opts...)
	start := time.Now()
	ctx.Logger().Infof("run %s: interpreting %d instructions", ctx.ID, p.Len())

	err := Interpret(ctx, p)
	if cerr := ctx.Close(); err == nil {
		err = cerr
	}

	ctx.Logger().Infof("run %s: interpreter finished in %s", ctx.ID, time.Since(start))
	return err
}
