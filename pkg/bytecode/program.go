package bytecode

import (
	"errors"
	"fmt"
)

// ProgramVersion is the current object file format version.
// Increment when making incompatible changes to the format.
const ProgramVersion uint16 = 1

// ---------------------------------------------------------------------------
// Program Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidTarget   = errors.New("control transfer target out of range")
	ErrUnpairedControl = errors.New("control transfer does not match its partner")
)

// Instruction is one opcode together with its operand. The operand's meaning
// depends on the opcode: a repeat count for run-length operators, an
// instruction index for control transfers, unused otherwise.
type Instruction struct {
	Op      Opcode `cbor:"1,keyasint"`
	Operand uint32 `cbor:"2,keyasint"`
}

// String formats the instruction as it appears in listings.
func (in Instruction) String() string {
	switch {
	case in.Op.HasTarget():
		return fmt.Sprintf("%s -> %d", in.Op, in.Operand)
	case in.Op.IsRunLength():
		return fmt.Sprintf("%s %d", in.Op, in.Operand)
	default:
		return in.Op.String()
	}
}

// SourceLocation maps an instruction to the source position it was scanned
// from.
type SourceLocation struct {
	Line   uint32 `cbor:"1,keyasint"` // Source line number (1-based)
	Column uint32 `cbor:"2,keyasint"` // Source column number (1-based)
}

// Program is a densely indexed instruction sequence. Indices are the unit of
// every control transfer.
type Program struct {
	Code []Instruction

	// SourceMap is either empty or parallel to Code.
	SourceMap []SourceLocation
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		Code: make([]Instruction, 0, 64),
	}
}

// Len returns the number of instructions. It is also the end sentinel index.
func (p *Program) Len() int {
	return len(p.Code)
}

// Emit appends an instruction and returns its index.
func (p *Program) Emit(op Opcode, operand uint32) int {
	p.Code = append(p.Code, Instruction{Op: op, Operand: operand})
	return len(p.Code) - 1
}

// EmitAt appends an instruction with its source location and returns its
// index.
func (p *Program) EmitAt(op Opcode, operand uint32, line, col int) int {
	if len(p.SourceMap) < len(p.Code) {
		p.SourceMap = append(p.SourceMap, make([]SourceLocation, len(p.Code)-len(p.SourceMap))...)
	}
	p.SourceMap = append(p.SourceMap, SourceLocation{Line: uint32(line), Column: uint32(col)})
	return p.Emit(op, operand)
}

// PatchOperand replaces the operand of the instruction at index.
func (p *Program) PatchOperand(index int, operand uint32) {
	p.Code[index].Operand = operand
}

// Location returns the source location of the instruction at index, or a
// zero location if none was recorded.
func (p *Program) Location(index int) SourceLocation {
	if index < 0 || index >= len(p.SourceMap) {
		return SourceLocation{}
	}
	return p.SourceMap[index]
}

// Lambdas returns the number of lambda definitions in the program.
func (p *Program) Lambdas() int {
	n := 0
	for _, in := range p.Code {
		if in.Op == OpLambda {
			n++
		}
	}
	return n
}

// Validate checks that every control transfer names a valid index in this
// program and that each opener and closer refer to one another.
func (p *Program) Validate() error {
	n := uint32(len(p.Code))
	for i, in := range p.Code {
		idx := uint32(i)
		switch in.Op {
		case OpJumpIfZero, OpLambda:
			if in.Operand <= idx || in.Operand > n {
				return fmt.Errorf("%s at %d: target %d: %w", in.Op, i, in.Operand, ErrInvalidTarget)
			}
			closer := p.Code[in.Operand-1]
			want := OpJumpIfNonZero
			if in.Op == OpLambda {
				want = OpReturn
			}
			if closer.Op != want || closer.Operand != idx {
				return fmt.Errorf("%s at %d: closer at %d is %s: %w", in.Op, i, in.Operand-1, closer, ErrUnpairedControl)
			}
		case OpJumpIfNonZero, OpReturn:
			if in.Operand >= idx {
				return fmt.Errorf("%s at %d: target %d: %w", in.Op, i, in.Operand, ErrInvalidTarget)
			}
			opener := p.Code[in.Operand]
			want := OpJumpIfZero
			if in.Op == OpReturn {
				want = OpLambda
			}
			if opener.Op != want || opener.Operand != idx+1 {
				return fmt.Errorf("%s at %d: opener at %d is %s: %w", in.Op, i, in.Operand, opener, ErrUnpairedControl)
			}
		case OpAdd, OpSub, OpRight, OpLeft, OpRead, OpWrite, OpClear, OpCall:
		default:
			return fmt.Errorf("unknown opcode 0x%02X at %d", byte(in.Op), i)
		}
	}
	return nil
}

