package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/brainfork/pkg/bytecode"
)

func mustScan(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	p, err := Scan(src)
	if err != nil {
		t.Fatalf("Scan(%q): %v", src, err)
	}
	return p
}

func TestOptimizeClearIdiom(t *testing.T) {
	for _, src := range []string{"[-]", "[+]"} {
		out, err := Optimize(mustScan(t, src))
		if err != nil {
			t.Fatalf("Optimize(%q): %v", src, err)
		}
		if out.Len() != 1 || out.Code[0].Op != bytecode.OpClear {
			t.Errorf("Optimize(%q) = %v, want [CLEAR]", src, out.Code)
		}
	}
}

func TestOptimizeLeavesOtherLoopsAlone(t *testing.T) {
	for _, src := range []string{"[->+<]", "[--]", "[>]", "[-.]", "(-)"} {
		in := mustScan(t, src)
		out, err := Optimize(in)
		if err != nil {
			t.Fatalf("Optimize(%q): %v", src, err)
		}
		if out.Len() != in.Len() {
			t.Errorf("Optimize(%q): %d instructions, want %d", src, out.Len(), in.Len())
			continue
		}
		for i := range in.Code {
			if out.Code[i] != in.Code[i] {
				t.Errorf("Optimize(%q): Code[%d] = %v, want %v", src, i, out.Code[i], in.Code[i])
			}
		}
	}
}

func TestOptimizeRenumbersTargets(t *testing.T) {
	// [-] collapses ahead of a loop and a lambda, shifting both.
	src := ">[-]+[>[+]<-](.)!"
	in := mustScan(t, src)
	out, stats, err := OptimizeWithStats(in)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cleared != 2 {
		t.Errorf("Cleared = %d, want 2", stats.Cleared)
	}
	if stats.Before != in.Len() || stats.After != out.Len() || out.Len() != in.Len()-4 {
		t.Errorf("stats = %+v, lens %d -> %d", stats, in.Len(), out.Len())
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// 0 RIGHT, 1 CLEAR, 2 ADD, 3 JZ, 4 RIGHT, 5 CLEAR, 6 LEFT, 7 SUB, 8 JNZ,
	// 9 LAMBDA, 10 WRITE, 11 RETURN, 12 CALL
	want := []bytecode.Instruction{
		{Op: bytecode.OpRight, Operand: 1},
		{Op: bytecode.OpClear},
		{Op: bytecode.OpAdd, Operand: 1},
		{Op: bytecode.OpJumpIfZero, Operand: 9},
		{Op: bytecode.OpRight, Operand: 1},
		{Op: bytecode.OpClear},
		{Op: bytecode.OpLeft, Operand: 1},
		{Op: bytecode.OpSub, Operand: 1},
		{Op: bytecode.OpJumpIfNonZero, Operand: 3},
		{Op: bytecode.OpLambda, Operand: 12},
		{Op: bytecode.OpWrite},
		{Op: bytecode.OpReturn, Operand: 9},
		{Op: bytecode.OpCall},
	}
	if len(out.Code) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(out.Code), len(want), out.Disassemble())
	}
	for i := range want {
		if out.Code[i] != want[i] {
			t.Errorf("Code[%d] = %v, want %v", i, out.Code[i], want[i])
		}
	}
}

func TestOptimizeNestedClearAtEnd(t *testing.T) {
	// The outer loop's exit target is the end sentinel.
	out, err := Optimize(mustScan(t, "[[-]]"))
	if err != nil {
		t.Fatal(err)
	}
	want := []bytecode.Instruction{
		{Op: bytecode.OpJumpIfZero, Operand: 3},
		{Op: bytecode.OpClear},
		{Op: bytecode.OpJumpIfNonZero, Operand: 0},
	}
	for i := range want {
		if out.Code[i] != want[i] {
			t.Errorf("Code[%d] = %v, want %v", i, out.Code[i], want[i])
		}
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	once, err := Optimize(mustScan(t, "+[-]>[+]<[->+<]"))
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Optimize(once)
	if err != nil {
		t.Fatal(err)
	}
	if once.Len() != twice.Len() {
		t.Fatalf("second pass changed length %d -> %d", once.Len(), twice.Len())
	}
	for i := range once.Code {
		if once.Code[i] != twice.Code[i] {
			t.Errorf("Code[%d] changed: %v -> %v", i, once.Code[i], twice.Code[i])
		}
	}
}

func TestOptimizeDoesNotModifyInput(t *testing.T) {
	in := mustScan(t, "[-]")
	if _, err := Optimize(in); err != nil {
		t.Fatal(err)
	}
	if in.Len() != 3 {
		t.Errorf("input was modified: %v", in.Code)
	}
}

func TestOptimizeKeepsSourceMap(t *testing.T) {
	out, err := Optimize(mustScan(t, "+\n[-]."))
	if err != nil {
		t.Fatal(err)
	}
	if len(out.SourceMap) != out.Len() {
		t.Fatalf("SourceMap has %d entries, want %d", len(out.SourceMap), out.Len())
	}
	if loc := out.Location(1); loc.Line != 2 || loc.Column != 1 {
		t.Errorf("CLEAR location = %+v, want 2:1", loc)
	}
}

func TestOptimizeDetectsEliminatedTarget(t *testing.T) {
	// RETURN names index 1, which disappears with the idiom. The scanner
	// never produces this.
	p := &bytecode.Program{Code: []bytecode.Instruction{
		{Op: bytecode.OpJumpIfZero, Operand: 3},
		{Op: bytecode.OpSub, Operand: 1},
		{Op: bytecode.OpJumpIfNonZero, Operand: 0},
		{Op: bytecode.OpLambda, Operand: 5},
		{Op: bytecode.OpReturn, Operand: 1},
	}}
	_, err := Optimize(p)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("err = %v, want ErrInvariantViolation", err)
	}
}
