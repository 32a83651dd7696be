package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/brainfork/pkg/bytecode"
)

func ops(p *bytecode.Program) []bytecode.Opcode {
	out := make([]bytecode.Opcode, len(p.Code))
	for i, in := range p.Code {
		out[i] = in.Op
	}
	return out
}

func TestScanRunLengthCounts(t *testing.T) {
	for n := 1; n <= 255; n++ {
		p, err := Scan(strings.Repeat("+", n))
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if p.Len() != 1 {
			t.Fatalf("n=%d: got %d instructions, want 1", n, p.Len())
		}
		if in := p.Code[0]; in.Op != bytecode.OpAdd || in.Operand != uint32(n%256) {
			t.Fatalf("n=%d: got %v", n, in)
		}
	}
}

func TestScanCellCountsWrap(t *testing.T) {
	p, err := Scan(strings.Repeat("-", 258))
	if err != nil {
		t.Fatal(err)
	}
	if in := p.Code[0]; in.Op != bytecode.OpSub || in.Operand != 2 {
		t.Errorf("got %v, want SUB 2", in)
	}

	p, err = Scan(strings.Repeat(">", 300))
	if err != nil {
		t.Fatal(err)
	}
	if in := p.Code[0]; in.Op != bytecode.OpRight || in.Operand != 300 {
		t.Errorf("got %v, want RIGHT 300 (pointer moves do not wrap at 256)", in)
	}
}

func TestScanSingleCharacterOperators(t *testing.T) {
	p, err := Scan(",,..!!")
	if err != nil {
		t.Fatal(err)
	}
	want := []bytecode.Opcode{
		bytecode.OpRead, bytecode.OpRead,
		bytecode.OpWrite, bytecode.OpWrite,
		bytecode.OpCall, bytecode.OpCall,
	}
	got := ops(p)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScanSkipsOtherCharacters(t *testing.T) {
	p, err := Scan("hello + world\n+ # comment -")
	if err != nil {
		t.Fatal(err)
	}
	// Intervening characters break runs.
	want := []bytecode.Instruction{
		{Op: bytecode.OpAdd, Operand: 1},
		{Op: bytecode.OpAdd, Operand: 1},
		{Op: bytecode.OpSub, Operand: 1},
	}
	if len(p.Code) != len(want) {
		t.Fatalf("got %v, want %v", p.Code, want)
	}
	for i := range want {
		if p.Code[i] != want[i] {
			t.Errorf("Code[%d] = %v, want %v", i, p.Code[i], want[i])
		}
	}
}

func TestScanLoopTargets(t *testing.T) {
	p, err := Scan("+[>[-]<]")
	if err != nil {
		t.Fatal(err)
	}
	// 0 ADD, 1 JZ, 2 RIGHT, 3 JZ, 4 SUB, 5 JNZ, 6 LEFT, 7 JNZ
	checks := []struct {
		index int
		op    bytecode.Opcode
		to    uint32
	}{
		{1, bytecode.OpJumpIfZero, 8},
		{3, bytecode.OpJumpIfZero, 6},
		{5, bytecode.OpJumpIfNonZero, 3},
		{7, bytecode.OpJumpIfNonZero, 1},
	}
	for _, c := range checks {
		in := p.Code[c.index]
		if in.Op != c.op || in.Operand != c.to {
			t.Errorf("Code[%d] = %v, want %s -> %d", c.index, in, c.op, c.to)
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestScanLambda(t *testing.T) {
	p, err := Scan("(+!)")
	if err != nil {
		t.Fatal(err)
	}
	want := []bytecode.Instruction{
		{Op: bytecode.OpLambda, Operand: 4},
		{Op: bytecode.OpAdd, Operand: 1},
		{Op: bytecode.OpCall},
		{Op: bytecode.OpReturn, Operand: 0},
	}
	if len(p.Code) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(p.Code), len(want))
	}
	for i := range want {
		if p.Code[i] != want[i] {
			t.Errorf("Code[%d] = %v, want %v", i, p.Code[i], want[i])
		}
	}
}

func TestScanBracketBalance(t *testing.T) {
	sources := []string{
		"",
		"[]",
		"()",
		"[[]]",
		"([])",
		"[()]",
		"(()())[][[]]",
		"+[-(>[<]!)]!.",
		"((((((((([[[[[[[[]]]]]]]])))))))))",
	}
	for _, src := range sources {
		p, err := Scan(src)
		if err != nil {
			t.Errorf("Scan(%q): %v", src, err)
			continue
		}
		if err := p.Validate(); err != nil {
			t.Errorf("Scan(%q) produced inconsistent targets: %v", src, err)
		}
		for i, in := range p.Code {
			switch in.Op {
			case bytecode.OpJumpIfZero:
				if p.Code[in.Operand-1].Operand != uint32(i) {
					t.Errorf("%q: JZ at %d and its JNZ disagree", src, i)
				}
			case bytecode.OpLambda:
				if p.Code[in.Operand-1].Op != bytecode.OpReturn {
					t.Errorf("%q: LAMBDA at %d does not end at a RETURN", src, i)
				}
			}
		}
	}
}

func TestScanStructuralErrors(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{"[", ErrMismatchedOpener},
		{"]", ErrMismatchedCloser},
		{"(", ErrMismatchedOpener},
		{")", ErrMismatchedCloser},
		{"[)", ErrMismatchedCloser},
		{"(]", ErrMismatchedCloser},
		{"([)]", ErrMismatchedCloser},
		{"[[]", ErrMismatchedOpener},
		{"[]]", ErrMismatchedCloser},
	}
	for _, tt := range tests {
		p, err := Scan(tt.src)
		if !errors.Is(err, tt.want) {
			t.Errorf("Scan(%q) err = %v, want %v", tt.src, err, tt.want)
		}
		if p != nil {
			t.Errorf("Scan(%q) returned a program alongside the error", tt.src)
		}
	}
}

func TestScanErrorPositions(t *testing.T) {
	_, err := Scan("+\n+\n  ]")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SyntaxError", err)
	}
	if se.Line != 3 || se.Column != 3 {
		t.Errorf("position = %d:%d, want 3:3", se.Line, se.Column)
	}
	if se.Error() != "mismatched ']' at line 3" {
		t.Errorf("message = %q", se.Error())
	}

	_, err = Scan("[\n(\n)")
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SyntaxError", err)
	}
	if se.Char != '[' || se.Line != 1 {
		t.Errorf("unclosed opener reported as %q at line %d, want '[' at line 1", se.Char, se.Line)
	}
	if !strings.HasPrefix(se.Error(), "mismatched '[' at end of file") {
		t.Errorf("message = %q", se.Error())
	}
}

func TestScanRecordsSourceMap(t *testing.T) {
	p, err := Scan("+\n ..")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.SourceMap) != p.Len() {
		t.Fatalf("SourceMap has %d entries, want %d", len(p.SourceMap), p.Len())
	}
	if loc := p.Location(2); loc.Line != 2 || loc.Column != 3 {
		t.Errorf("Location(2) = %+v, want 2:3", loc)
	}
}
