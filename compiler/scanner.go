package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Scanner errors
// ---------------------------------------------------------------------------

var (
	ErrMismatchedCloser = errors.New("mismatched closer")
	ErrMismatchedOpener = errors.New("mismatched opener")
)

// SyntaxError reports a structural error in the source together with the
// position of the offending delimiter.
type SyntaxError struct {
	Line   int
	Column int
	Char   byte
	Err    error
}

func (e *SyntaxError) Error() string {
	if errors.Is(e.Err, ErrMismatchedOpener) {
		return fmt.Sprintf("mismatched '%c' at end of file (opened at line %d)", e.Char, e.Line)
	}
	return fmt.Sprintf("mismatched '%c' at line %d", e.Char, e.Line)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Scanner: source text to instructions
// ---------------------------------------------------------------------------

// opener is an unmatched '[' or '(' waiting for its closer.
type opener struct {
	index int
	char  byte
	line  int
	col   int
}

// Scanner turns source text into a Program. Characters other than the
// recognized symbols are skipped.
type Scanner struct {
	input string
	pos   int
	line  int // current line (1-based)
	col   int // current column (1-based)

	prog  *bytecode.Program
	stack []opener
}

// NewScanner creates a scanner over the given source.
func NewScanner(input string) *Scanner {
	return &Scanner{
		input: input,
		line:  1,
		col:   1,
		prog:  bytecode.NewProgram(),
	}
}

// Scan converts source text into a Program.
func Scan(source string) (*bytecode.Program, error) {
	return NewScanner(source).Scan()
}

// Scan runs the scanner to the end of input.
func (s *Scanner) Scan() (*bytecode.Program, error) {
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		line, col := s.line, s.col

		switch ch {
		case '+', '-', '>', '<':
			n := s.run(ch)
			op := runOpcode(ch)
			if op == bytecode.OpAdd || op == bytecode.OpSub {
				n %= 256
			}
			s.prog.EmitAt(op, n, line, col)
			continue
		case ',':
			s.prog.EmitAt(bytecode.OpRead, 0, line, col)
		case '.':
			s.prog.EmitAt(bytecode.OpWrite, 0, line, col)
		case '!':
			s.prog.EmitAt(bytecode.OpCall, 0, line, col)
		case '[':
			s.open(bytecode.OpJumpIfZero, ch, line, col)
		case '(':
			s.open(bytecode.OpLambda, ch, line, col)
		case ']':
			if err := s.close(bytecode.OpJumpIfNonZero, '[', ch, line, col); err != nil {
				return nil, err
			}
		case ')':
			if err := s.close(bytecode.OpReturn, '(', ch, line, col); err != nil {
				return nil, err
			}
		}
		s.advance()
	}

	if len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		return nil, &SyntaxError{Line: top.line, Column: top.col, Char: top.char, Err: ErrMismatchedOpener}
	}
	return s.prog, nil
}

// advance consumes one byte, tracking line and column.
func (s *Scanner) advance() {
	if s.input[s.pos] == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	s.pos++
}

// run consumes consecutive copies of ch and returns how many there were.
func (s *Scanner) run(ch byte) uint32 {
	var n uint32
	for s.pos < len(s.input) && s.input[s.pos] == ch {
		n++
		s.advance()
	}
	return n
}

func runOpcode(ch byte) bytecode.Opcode {
	switch ch {
	case '+':
		return bytecode.OpAdd
	case '-':
		return bytecode.OpSub
	case '>':
		return bytecode.OpRight
	default:
		return bytecode.OpLeft
	}
}

// open emits a placeholder opener and remembers it until its closer appears.
func (s *Scanner) open(op bytecode.Opcode, ch byte, line, col int) {
	idx := s.prog.EmitAt(op, 0, line, col)
	s.stack = append(s.stack, opener{index: idx, char: ch, line: line, col: col})
}

// close pops the innermost opener, which must be of kind want, and links the
// two instructions to each other.
func (s *Scanner) close(op bytecode.Opcode, want, ch byte, line, col int) error {
	if len(s.stack) == 0 || s.stack[len(s.stack)-1].char != want {
		return &SyntaxError{Line: line, Column: col, Char: ch, Err: ErrMismatchedCloser}
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]

	idx := s.prog.EmitAt(op, uint32(top.index), line, col)
	s.prog.PatchOperand(top.index, uint32(idx+1))
	return nil
}
