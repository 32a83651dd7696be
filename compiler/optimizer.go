package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// ErrInvariantViolation signals a pipeline bug: a surviving control transfer
// refers to an instruction the optimizer removed.
var ErrInvariantViolation = errors.New("optimizer invariant violation")

// notMapped marks an old index with no counterpart in the optimized program.
const notMapped = -1

// Stats describes what the optimizer did to a program.
type Stats struct {
	Before  int // instructions in
	After   int // instructions out
	Cleared int // clear-cell idioms collapsed
}

// Optimize collapses the clear-cell idiom "[-]" / "[+]" into a single CLEAR
// and renumbers every control transfer. The input is not modified.
func Optimize(p *bytecode.Program) (*bytecode.Program, error) {
	out, _, err := OptimizeWithStats(p)
	return out, err
}

// OptimizeWithStats is Optimize that also reports what changed.
func OptimizeWithStats(p *bytecode.Program) (*bytecode.Program, Stats, error) {
	code := p.Code
	mapping := make([]int, len(code)+1)
	out := &bytecode.Program{Code: make([]bytecode.Instruction, 0, len(code))}
	withMap := len(p.SourceMap) == len(code) && len(code) > 0
	stats := Stats{Before: len(code)}

	for i := 0; i < len(code); {
		if isClearIdiom(code, i) {
			mapping[i] = len(out.Code)
			mapping[i+1] = notMapped
			mapping[i+2] = notMapped
			out.Code = append(out.Code, bytecode.Instruction{Op: bytecode.OpClear})
			if withMap {
				out.SourceMap = append(out.SourceMap, p.SourceMap[i])
			}
			stats.Cleared++
			i += 3
			continue
		}
		mapping[i] = len(out.Code)
		out.Code = append(out.Code, code[i])
		if withMap {
			out.SourceMap = append(out.SourceMap, p.SourceMap[i])
		}
		i++
	}
	mapping[len(code)] = len(out.Code)

	for i, in := range out.Code {
		if !in.Op.HasTarget() {
			continue
		}
		if int(in.Operand) >= len(mapping) || mapping[in.Operand] == notMapped {
			return nil, stats, fmt.Errorf("%w: %s at %d targets eliminated index %d", ErrInvariantViolation, in.Op, i, in.Operand)
		}
		out.Code[i].Operand = uint32(mapping[in.Operand])
	}

	if err := out.Validate(); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	stats.After = len(out.Code)
	return out, stats, nil
}

// isClearIdiom reports whether code[i:i+3] is JZ(i+3), ADD/SUB 1, JNZ(i).
func isClearIdiom(code []bytecode.Instruction, i int) bool {
	if i+2 >= len(code) {
		return false
	}
	open, body, end := code[i], code[i+1], code[i+2]
	return open.Op == bytecode.OpJumpIfZero && open.Operand == uint32(i+3) &&
		(body.Op == bytecode.OpAdd || body.Op == bytecode.OpSub) && body.Operand == 1 &&
		end.Op == bytecode.OpJumpIfNonZero && end.Operand == uint32(i)
}
