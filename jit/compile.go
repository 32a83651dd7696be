package jit

import (
	"fmt"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// DefaultMinBuffer is the smallest executable region mapped for a program.
const DefaultMinBuffer = 65536

// Image describes code compiled into a region.
type Image struct {
	Code        []byte // emitted bytes, aliasing the region
	Entry       int    // offset of the entry stub
	Main        int    // offset of the top-level function
	Addrs       []int  // offset of each instruction, then the end of the program
	Functions   int    // top-level function plus one per lambda body
	Relocations int
}

// Compiler lowers optimized programs to native code for one backend.
type Compiler struct {
	backend Backend
}

// NewCompiler returns a compiler emitting code with backend.
func NewCompiler(backend Backend) *Compiler {
	return &Compiler{backend: backend}
}

// EstimateSize returns an upper bound on the bytes Compile emits for p.
func (c *Compiler) EstimateSize(p *bytecode.Program) int {
	size := c.backend.FunctionOverhead() + c.backend.EntrySize()
	for _, in := range p.Code {
		size += c.backend.MaxCodeSize(in.Op)
		if in.Op == bytecode.OpLambda {
			size += c.backend.FunctionOverhead()
		}
	}
	return size
}

// Compile emits p into mem, whose first byte is mapped at the native address
// base, and resolves every branch. mem must stay writable until Compile
// returns.
func (c *Compiler) Compile(p *bytecode.Program, mem []byte, base uint64) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}
	b := NewCodeBuffer(mem, base, p.Len())
	fc := &functionCompiler{backend: c.backend, buf: b, code: p.Code}

	main := fc.function(0, p.Len())
	c.backend.Align(b)
	entry := b.Len()
	c.backend.EmitEntry(b, b.Addr(main))

	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}
	if err := b.Resolve(c.backend); err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}

	img := &Image{
		Code:        b.Bytes(),
		Entry:       entry,
		Main:        main,
		Addrs:       b.addrs,
		Functions:   fc.functions,
		Relocations: len(b.Relocations()),
	}
	log.Debugf("%s: %d instructions -> %d bytes, %d functions, %d relocations",
		c.backend.Name(), p.Len(), len(img.Code), img.Functions, img.Relocations)
	return img, nil
}

type functionCompiler struct {
	backend   Backend
	buf       *CodeBuffer
	code      []bytecode.Instruction
	functions int
}

// function emits instructions [start, end) as one native function and
// returns the offset of its entry. Each nested lambda body becomes its own
// function, emitted inline behind a skip branch.
func (fc *functionCompiler) function(start, end int) int {
	be, b := fc.backend, fc.buf
	fc.functions++

	halt := b.Len()
	be.EmitHaltStub(b)
	be.Align(b)
	entry := b.Len()
	be.EmitPrologue(b)

	for pc := start; pc < end && b.Err() == nil; {
		in := fc.code[pc]
		if in.Op == bytecode.OpLambda {
			be.EmitSkip(b, pc)
			body := fc.function(pc+1, int(in.Operand))
			// Branches to the definition land on the push, after the body.
			b.Mark(pc)
			be.EmitPushLambda(b, b.Addr(body))
			pc = int(in.Operand)
			continue
		}
		b.Mark(pc)
		be.EmitInstruction(b, in, halt)
		pc++
	}

	b.Mark(end)
	be.EmitEpilogue(b)
	return entry
}
