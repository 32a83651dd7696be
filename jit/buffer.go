package jit

import (
	"encoding/binary"
	"fmt"
)

// RelocKind identifies the branch encoding at a patch site.
type RelocKind uint8

const (
	// RelRel32 is an x86-64 rel32 field measured from the end of the field.
	RelRel32 RelocKind = iota
	// RelImm19 is an arm64 imm19 field (cbz, cbnz, b.cond) in bits 5..23,
	// measured in words from the branch instruction.
	RelImm19
	// RelImm26 is an arm64 imm26 field (b) in bits 0..25.
	RelImm26
)

func (k RelocKind) String() string {
	switch k {
	case RelRel32:
		return "rel32"
	case RelImm19:
		return "imm19"
	case RelImm26:
		return "imm26"
	}
	return fmt.Sprintf("RelocKind(%d)", uint8(k))
}

// Relocation is a branch whose displacement is written once every opcode
// address is known. Offset is the displacement field for RelRel32 and the
// branch instruction for the arm64 kinds.
type Relocation struct {
	Offset int
	Target int
	Kind   RelocKind
}

// CodeBuffer accumulates machine code in a fixed region. Writes past the end
// of the region set a sticky ErrBufferOverflow and are dropped.
type CodeBuffer struct {
	code   []byte
	n      int
	base   uint64
	addrs  []int
	relocs []Relocation
	err    error
}

// NewCodeBuffer prepares mem, whose first byte lives at the native address
// base, for a program of n instructions.
func NewCodeBuffer(mem []byte, base uint64, n int) *CodeBuffer {
	addrs := make([]int, n+1)
	for i := range addrs {
		addrs[i] = -1
	}
	return &CodeBuffer{code: mem, base: base, addrs: addrs}
}

// Len returns the number of bytes emitted so far.
func (b *CodeBuffer) Len() int { return b.n }

// Cap returns the size of the region.
func (b *CodeBuffer) Cap() int { return len(b.code) }

// Addr returns the native address of offset off.
func (b *CodeBuffer) Addr(off int) uint64 { return b.base + uint64(off) }

// Bytes returns the emitted code.
func (b *CodeBuffer) Bytes() []byte { return b.code[:b.n] }

// Err returns the first error recorded while emitting.
func (b *CodeBuffer) Err() error { return b.err }

// Relocations returns the pending relocations.
func (b *CodeBuffer) Relocations() []Relocation { return b.relocs }

func (b *CodeBuffer) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *CodeBuffer) reserve(n int) bool {
	if b.err != nil {
		return false
	}
	if b.n+n > len(b.code) {
		b.fail(fmt.Errorf("%w: need %d bytes at offset %d, capacity %d", ErrBufferOverflow, n, b.n, len(b.code)))
		return false
	}
	return true
}

// Emit appends raw bytes.
func (b *CodeBuffer) Emit(bs ...byte) {
	if !b.reserve(len(bs)) {
		return
	}
	b.n += copy(b.code[b.n:], bs)
}

// Emit32 appends a little-endian 32-bit value.
func (b *CodeBuffer) Emit32(v uint32) {
	if !b.reserve(4) {
		return
	}
	binary.LittleEndian.PutUint32(b.code[b.n:], v)
	b.n += 4
}

// Emit64 appends a little-endian 64-bit value.
func (b *CodeBuffer) Emit64(v uint64) {
	if !b.reserve(8) {
		return
	}
	binary.LittleEndian.PutUint64(b.code[b.n:], v)
	b.n += 8
}

// Put32 overwrites four already emitted bytes at off.
func (b *CodeBuffer) Put32(off int, v uint32) {
	if b.err != nil {
		return
	}
	if off < 0 || off+4 > b.n {
		b.fail(fmt.Errorf("%w: offset %d", ErrPatchOutOfBounds, off))
		return
	}
	binary.LittleEndian.PutUint32(b.code[off:], v)
}

// Mark records the current offset as the address of instruction index.
func (b *CodeBuffer) Mark(index int) {
	if index < 0 || index >= len(b.addrs) {
		b.fail(fmt.Errorf("%w: mark %d", ErrInvalidTarget, index))
		return
	}
	b.addrs[index] = b.n
}

// AddrOf returns the recorded offset of instruction index, or -1.
func (b *CodeBuffer) AddrOf(index int) int {
	if index < 0 || index >= len(b.addrs) {
		return -1
	}
	return b.addrs[index]
}

// AddRelocation queues a branch to instruction index r.Target.
func (b *CodeBuffer) AddRelocation(r Relocation) {
	b.relocs = append(b.relocs, r)
}

// Bind patches a branch to a byte offset that is already known, such as a
// function's halt stub.
func (b *CodeBuffer) Bind(be Backend, r Relocation, target int) {
	if b.err != nil {
		return
	}
	if err := be.Patch(b.Bytes(), r, target); err != nil {
		b.fail(err)
	}
}

// Resolve patches every queued relocation. It runs once, after all code has
// been emitted and before the region is sealed.
func (b *CodeBuffer) Resolve(be Backend) error {
	if b.err != nil {
		return b.err
	}
	code := b.Bytes()
	for _, r := range b.relocs {
		target := b.AddrOf(r.Target)
		if target < 0 {
			return fmt.Errorf("%w: index %d was never emitted (program has %d)", ErrInvalidTarget, r.Target, len(b.addrs)-1)
		}
		if r.Offset < 0 || r.Offset+4 > len(code) {
			return fmt.Errorf("%w: offset %d, emitted %d", ErrPatchOutOfBounds, r.Offset, len(code))
		}
		if err := be.Patch(code, r, target); err != nil {
			return fmt.Errorf("relocation to index %d: %w", r.Target, err)
		}
	}
	return nil
}
