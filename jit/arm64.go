package jit

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// ARM64 generates AAPCS64 code.
//
// Register assignment inside generated functions:
//
//	w19  cell pointer (32-bit, wraps)
//	x20  tape base
//	x21  context handle
//	x16  scratch for helper calls
//
// x19..x22 are saved in every frame; x22 is unused and keeps the pairs even.
type ARM64 struct {
	helpers Helpers
}

// NewARM64 returns an arm64 backend calling the helpers at h.
func NewARM64(h Helpers) *ARM64 {
	return &ARM64{helpers: h}
}

func (*ARM64) Name() string { return "arm64" }

const (
	regX0  = 0
	regX1  = 1
	regX2  = 2
	regX16 = 16
	regX19 = 19
	regX20 = 20
	regX21 = 21
	regX22 = 22
	regFP  = 29
	regLR  = 30
	regSP  = 31
	regZR  = 31

	condLT = 0xB
)

// ---------------------------------------------------------------------------
// Instruction encoders
// ---------------------------------------------------------------------------

func a64MovzX(rd, hw, imm uint32) uint32 { return 0xD2800000 | hw<<21 | imm<<5 | rd }
func a64MovkX(rd, hw, imm uint32) uint32 { return 0xF2800000 | hw<<21 | imm<<5 | rd }
func a64MovzW(rd, hw, imm uint32) uint32 { return 0x52800000 | hw<<21 | imm<<5 | rd }
func a64MovkW(rd, hw, imm uint32) uint32 { return 0x72800000 | hw<<21 | imm<<5 | rd }

// a64MovX is mov xd, xm (orr xd, xzr, xm).
func a64MovX(rd, rm uint32) uint32 { return 0xAA0003E0 | rm<<16 | rd }

// a64MovW is mov wd, wm (orr wd, wzr, wm).
func a64MovW(rd, rm uint32) uint32 { return 0x2A0003E0 | rm<<16 | rd }

func a64AddWImm(rd, rn, imm uint32) uint32 { return 0x11000000 | imm<<10 | rn<<5 | rd }
func a64SubWImm(rd, rn, imm uint32) uint32 { return 0x51000000 | imm<<10 | rn<<5 | rd }
func a64AddWReg(rd, rn, rm uint32) uint32  { return 0x0B000000 | rm<<16 | rn<<5 | rd }
func a64SubWReg(rd, rn, rm uint32) uint32  { return 0x4B000000 | rm<<16 | rn<<5 | rd }

// a64Ldrb is ldrb wt, [xn, wm, uxtw].
func a64Ldrb(rt, rn, rm uint32) uint32 { return 0x38604800 | rm<<16 | rn<<5 | rt }

// a64Strb is strb wt, [xn, wm, uxtw].
func a64Strb(rt, rn, rm uint32) uint32 { return 0x38204800 | rm<<16 | rn<<5 | rt }

// a64Stp and a64Ldp use a signed offset scaled by 8.
func a64Stp(rt, rt2, rn uint32, off int32) uint32 {
	return 0xA9000000 | (uint32(off/8)&0x7F)<<15 | rt2<<10 | rn<<5 | rt
}

func a64Ldp(rt, rt2, rn uint32, off int32) uint32 {
	return 0xA9400000 | (uint32(off/8)&0x7F)<<15 | rt2<<10 | rn<<5 | rt
}

func a64Blr(rn uint32) uint32 { return 0xD63F0000 | rn<<5 }

const (
	a64Ret       = 0xD65F03C0
	a64Nop       = 0xD503201F
	a64CmpX0Zero = 0xF100001F // cmp x0, #0
	a64CbzW      = 0x34000000
	a64CbnzW     = 0x35000000
	a64CbzX      = 0xB4000000
	a64CbnzX     = 0xB5000000
	a64BCond     = 0x54000000
	a64B         = 0x14000000
)

var arm64Sizes = [...]int{
	bytecode.OpAdd:           12,
	bytecode.OpSub:           12,
	bytecode.OpRight:         12,
	bytecode.OpLeft:          12,
	bytecode.OpJumpIfZero:    8,
	bytecode.OpJumpIfNonZero: 8,
	bytecode.OpRead:          36,
	bytecode.OpWrite:         32,
	bytecode.OpClear:         4,
	bytecode.OpLambda:        48,
	bytecode.OpReturn:        20,
	bytecode.OpCall:          96,
}

func (*ARM64) MaxCodeSize(op bytecode.Opcode) int {
	if int(op) < len(arm64Sizes) {
		return arm64Sizes[op]
	}
	return 0
}

func (*ARM64) FunctionOverhead() int { return 80 }

func (*ARM64) EntrySize() int { return 80 }

func (*ARM64) Align(b *CodeBuffer) {
	for b.Len()%16 != 0 && b.Err() == nil {
		b.Emit32(a64Nop)
	}
}

func (*ARM64) EmitPrologue(b *CodeBuffer) {
	b.Emit32(0xA9BD7BFD) // stp x29, x30, [sp, #-48]!
	b.Emit32(0x910003FD) // mov x29, sp
	b.Emit32(a64Stp(regX19, regX20, regSP, 16))
	b.Emit32(a64Stp(regX21, regX22, regSP, 32))
}

func (*ARM64) restore(b *CodeBuffer) {
	b.Emit32(a64Ldp(regX21, regX22, regSP, 32))
	b.Emit32(a64Ldp(regX19, regX20, regSP, 16))
	b.Emit32(0xA8C37BFD) // ldp x29, x30, [sp], #48
	b.Emit32(a64Ret)
}

func (a *ARM64) EmitEpilogue(b *CodeBuffer) {
	b.Emit32(a64MovzX(regX0, 0, 0))
	a.restore(b)
}

func (a *ARM64) EmitHaltStub(b *CodeBuffer) {
	b.Emit32(a64MovzX(regX0, 0, 1))
	a.restore(b)
}

func (a *ARM64) EmitEntry(b *CodeBuffer, main uint64) {
	a.EmitPrologue(b)
	b.Emit32(a64MovzW(regX19, 0, 0))
	b.Emit32(a64MovX(regX20, regX0))
	b.Emit32(a64MovX(regX21, regX1))
	a.callAbs(b, main)
	a.restore(b)
}

// movImm64 always emits four instructions so the sequence can be rewritten
// in place with putMovImm64.
func (*ARM64) movImm64(b *CodeBuffer, rd uint32, v uint64) {
	b.Emit32(a64MovzX(rd, 0, uint32(v&0xFFFF)))
	b.Emit32(a64MovkX(rd, 1, uint32(v>>16&0xFFFF)))
	b.Emit32(a64MovkX(rd, 2, uint32(v>>32&0xFFFF)))
	b.Emit32(a64MovkX(rd, 3, uint32(v>>48&0xFFFF)))
}

func (*ARM64) putMovImm64(b *CodeBuffer, off int, rd uint32, v uint64) {
	b.Put32(off, a64MovzX(rd, 0, uint32(v&0xFFFF)))
	b.Put32(off+4, a64MovkX(rd, 1, uint32(v>>16&0xFFFF)))
	b.Put32(off+8, a64MovkX(rd, 2, uint32(v>>32&0xFFFF)))
	b.Put32(off+12, a64MovkX(rd, 3, uint32(v>>48&0xFFFF)))
}

func (a *ARM64) callAbs(b *CodeBuffer, addr uint64) {
	a.movImm64(b, regX16, addr)
	b.Emit32(a64Blr(regX16))
}

// branchOffset emits an imm19 branch to a known byte offset.
func (a *ARM64) branchOffset(b *CodeBuffer, insn uint32, target int) {
	site := b.Len()
	b.Emit32(insn)
	b.Bind(a, Relocation{Offset: site, Kind: RelImm19}, target)
}

// moveW adds or subtracts n from the cell pointer.
func (*ARM64) moveW(b *CodeBuffer, n uint32, left bool) {
	if n < 1<<12 {
		if left {
			b.Emit32(a64SubWImm(regX19, regX19, n))
		} else {
			b.Emit32(a64AddWImm(regX19, regX19, n))
		}
		return
	}
	b.Emit32(a64MovzW(regX1, 0, n&0xFFFF))
	if n>>16 != 0 {
		b.Emit32(a64MovkW(regX1, 1, n>>16))
	}
	if left {
		b.Emit32(a64SubWReg(regX19, regX19, regX1))
	} else {
		b.Emit32(a64AddWReg(regX19, regX19, regX1))
	}
}

func (a *ARM64) EmitInstruction(b *CodeBuffer, in bytecode.Instruction, halt int) {
	switch in.Op {
	case bytecode.OpAdd, bytecode.OpSub:
		b.Emit32(a64Ldrb(regX0, regX20, regX19))
		if in.Op == bytecode.OpAdd {
			b.Emit32(a64AddWImm(regX0, regX0, in.Operand&0xFF))
		} else {
			b.Emit32(a64SubWImm(regX0, regX0, in.Operand&0xFF))
		}
		b.Emit32(a64Strb(regX0, regX20, regX19))
	case bytecode.OpRight:
		a.moveW(b, in.Operand, false)
	case bytecode.OpLeft:
		a.moveW(b, in.Operand, true)
	case bytecode.OpClear:
		b.Emit32(a64Strb(regZR, regX20, regX19))
	case bytecode.OpJumpIfZero, bytecode.OpJumpIfNonZero:
		b.Emit32(a64Ldrb(regX0, regX20, regX19))
		insn := uint32(a64CbzW)
		if in.Op == bytecode.OpJumpIfNonZero {
			insn = a64CbnzW
		}
		b.AddRelocation(Relocation{Offset: b.Len(), Target: int(in.Operand), Kind: RelImm19})
		b.Emit32(insn)
	case bytecode.OpRead:
		b.Emit32(a64MovX(regX0, regX21))
		a.callAbs(b, a.helpers.ReadByte)
		b.Emit32(a64CmpX0Zero)
		a.branchOffset(b, a64BCond|condLT, halt)
		b.Emit32(a64Strb(regX0, regX20, regX19))
	case bytecode.OpWrite:
		b.Emit32(a64Ldrb(regX0, regX20, regX19))
		b.Emit32(a64MovX(regX1, regX21))
		a.callAbs(b, a.helpers.WriteByte)
		a.branchOffset(b, a64CbnzX, halt)
	case bytecode.OpCall:
		a.emitCall(b, halt)
	case bytecode.OpReturn:
		a.EmitEpilogue(b)
	default:
		b.fail(fmt.Errorf("arm64: cannot lower %s", in.Op))
	}
}

func (a *ARM64) emitCall(b *CodeBuffer, halt int) {
	retSite := b.Len()
	a.movImm64(b, regX2, 0)
	b.Emit32(a64MovX(regX0, regX21))
	b.Emit32(a64MovW(regX1, regX19))
	a.callAbs(b, a.helpers.PreCall)
	a.branchOffset(b, a64CbzX, halt)
	b.Emit32(a64MovW(regX19, regX1))
	b.Emit32(a64Blr(regX0))
	a.branchOffset(b, a64CbnzX, halt)
	b.Emit32(a64MovX(regX0, regX21))
	a.callAbs(b, a.helpers.PostCall)
	b.Emit32(a64CmpX0Zero)
	a.branchOffset(b, a64BCond|condLT, halt)
	b.Emit32(a64MovW(regX19, regX0))
	a.putMovImm64(b, retSite, regX2, b.Addr(b.Len()))
}

func (a *ARM64) EmitSkip(b *CodeBuffer, target int) {
	b.AddRelocation(Relocation{Offset: b.Len(), Target: target, Kind: RelImm26})
	b.Emit32(a64B)
}

func (a *ARM64) EmitPushLambda(b *CodeBuffer, body uint64) {
	b.Emit32(a64MovX(regX0, regX21))
	a.movImm64(b, regX1, body)
	b.Emit32(a64MovW(regX2, regX19))
	a.callAbs(b, a.helpers.PushLambda)
}

func (*ARM64) Patch(code []byte, r Relocation, target int) error {
	if r.Offset < 0 || r.Offset+4 > len(code) || r.Offset%4 != 0 {
		return fmt.Errorf("%w: offset %d, emitted %d", ErrPatchOutOfBounds, r.Offset, len(code))
	}
	disp := int64(target) - int64(r.Offset)
	if disp%4 != 0 {
		return fmt.Errorf("%w: displacement %d is not word aligned", ErrBranchOutOfRange, disp)
	}
	words := disp / 4
	insn := binary.LittleEndian.Uint32(code[r.Offset:])
	switch r.Kind {
	case RelImm19:
		if words < -(1<<18) || words >= 1<<18 {
			return fmt.Errorf("%w: imm19 displacement %d bytes", ErrBranchOutOfRange, disp)
		}
		insn = insn&^(0x7FFFF<<5) | (uint32(words)&0x7FFFF)<<5
	case RelImm26:
		if words < -(1<<25) || words >= 1<<25 {
			return fmt.Errorf("%w: imm26 displacement %d bytes", ErrBranchOutOfRange, disp)
		}
		insn = insn&^0x3FFFFFF | uint32(words)&0x3FFFFFF
	default:
		return fmt.Errorf("%w: arm64 %s", ErrUnknownRelocation, r.Kind)
	}
	binary.LittleEndian.PutUint32(code[r.Offset:], insn)
	return nil
}
