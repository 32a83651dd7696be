package jit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// AMD64 generates System V x86-64 code.
//
// Register assignment inside generated functions:
//
//	rbx  cell pointer (32-bit, wraps)
//	r12  tape base
//	r13  context handle
//
// All three are callee-saved, so they survive calls into the runtime
// helpers. r14 is pushed only to keep the stack 16-byte aligned.
type AMD64 struct {
	helpers Helpers
}

// NewAMD64 returns an x86-64 backend calling the helpers at h.
func NewAMD64(h Helpers) *AMD64 {
	return &AMD64{helpers: h}
}

func (*AMD64) Name() string { return "amd64" }

const (
	x86JZ  = 0x84
	x86JNZ = 0x85
	x86JS  = 0x88
)

var amd64Sizes = [...]int{
	bytecode.OpAdd:           5,
	bytecode.OpSub:           5,
	bytecode.OpRight:         6,
	bytecode.OpLeft:          6,
	bytecode.OpJumpIfZero:    13,
	bytecode.OpJumpIfNonZero: 13,
	bytecode.OpRead:          28,
	bytecode.OpWrite:         29,
	bytecode.OpClear:         5,
	bytecode.OpLambda:        32,
	bytecode.OpReturn:        11,
	bytecode.OpCall:          72,
}

func (*AMD64) MaxCodeSize(op bytecode.Opcode) int {
	if int(op) < len(amd64Sizes) {
		return amd64Sizes[op]
	}
	return 0
}

func (*AMD64) FunctionOverhead() int { return 64 }

func (*AMD64) EntrySize() int { return 64 }

func (*AMD64) Align(b *CodeBuffer) {
	for b.Len()%16 != 0 && b.Err() == nil {
		b.Emit(0x90)
	}
}

func (*AMD64) EmitPrologue(b *CodeBuffer) {
	b.Emit(
		0x55,             // push rbp
		0x48, 0x89, 0xE5, // mov rbp, rsp
		0x53,       // push rbx
		0x41, 0x54, // push r12
		0x41, 0x55, // push r13
		0x41, 0x56, // push r14
	)
}

func (*AMD64) restore(b *CodeBuffer) {
	b.Emit(
		0x41, 0x5E, // pop r14
		0x41, 0x5D, // pop r13
		0x41, 0x5C, // pop r12
		0x5B, // pop rbx
		0x5D, // pop rbp
		0xC3, // ret
	)
}

func (a *AMD64) EmitEpilogue(b *CodeBuffer) {
	b.Emit(0x31, 0xC0) // xor eax, eax
	a.restore(b)
}

func (a *AMD64) EmitHaltStub(b *CodeBuffer) {
	b.Emit(0xB8, 0x01, 0x00, 0x00, 0x00) // mov eax, 1
	a.restore(b)
}

// EmitEntry emits the stub called from the host as
// status(tape, handle). It clears the cell pointer, loads the tape base and
// context handle, and returns the top-level function's status unchanged.
func (a *AMD64) EmitEntry(b *CodeBuffer, main uint64) {
	a.EmitPrologue(b)
	b.Emit(0x31, 0xDB)       // xor ebx, ebx
	b.Emit(0x49, 0x89, 0xFC) // mov r12, rdi
	b.Emit(0x49, 0x89, 0xF5) // mov r13, rsi
	a.callAbs(b, main)
	a.restore(b)
}

// movRAX loads a 64-bit immediate into rax.
func (*AMD64) movRAX(b *CodeBuffer, v uint64) {
	b.Emit(0x48, 0xB8)
	b.Emit64(v)
}

func (a *AMD64) callAbs(b *CodeBuffer, addr uint64) {
	a.movRAX(b, addr)
	b.Emit(0xFF, 0xD0) // call rax
}

// jccIndex emits a 6-byte conditional branch to an instruction index.
func (*AMD64) jccIndex(b *CodeBuffer, cc byte, target int) {
	b.Emit(0x0F, cc)
	b.AddRelocation(Relocation{Offset: b.Len(), Target: target, Kind: RelRel32})
	b.Emit32(0)
}

// jccOffset emits a 6-byte conditional branch to a known byte offset.
func (a *AMD64) jccOffset(b *CodeBuffer, cc byte, target int) {
	b.Emit(0x0F, cc)
	site := b.Len()
	b.Emit32(0)
	b.Bind(a, Relocation{Offset: site, Kind: RelRel32}, target)
}

func (*AMD64) testRAX(b *CodeBuffer) {
	b.Emit(0x48, 0x85, 0xC0) // test rax, rax
}

func (a *AMD64) EmitInstruction(b *CodeBuffer, in bytecode.Instruction, halt int) {
	switch in.Op {
	case bytecode.OpAdd:
		b.Emit(0x41, 0x80, 0x04, 0x1C, byte(in.Operand)) // add byte [r12+rbx], imm8
	case bytecode.OpSub:
		b.Emit(0x41, 0x80, 0x2C, 0x1C, byte(in.Operand)) // sub byte [r12+rbx], imm8
	case bytecode.OpRight:
		b.Emit(0x81, 0xC3) // add ebx, imm32
		b.Emit32(in.Operand)
	case bytecode.OpLeft:
		b.Emit(0x81, 0xEB) // sub ebx, imm32
		b.Emit32(in.Operand)
	case bytecode.OpClear:
		b.Emit(0x41, 0xC6, 0x04, 0x1C, 0x00) // mov byte [r12+rbx], 0
	case bytecode.OpJumpIfZero, bytecode.OpJumpIfNonZero:
		b.Emit(0x41, 0x0F, 0xB6, 0x04, 0x1C) // movzx eax, byte [r12+rbx]
		b.Emit(0x84, 0xC0)                   // test al, al
		cc := byte(x86JZ)
		if in.Op == bytecode.OpJumpIfNonZero {
			cc = x86JNZ
		}
		a.jccIndex(b, cc, int(in.Operand))
	case bytecode.OpRead:
		b.Emit(0x4C, 0x89, 0xEF) // mov rdi, r13
		a.callAbs(b, a.helpers.ReadByte)
		a.testRAX(b)
		a.jccOffset(b, x86JS, halt)
		b.Emit(0x41, 0x88, 0x04, 0x1C) // mov [r12+rbx], al
	case bytecode.OpWrite:
		b.Emit(0x41, 0x0F, 0xB6, 0x3C, 0x1C) // movzx edi, byte [r12+rbx]
		b.Emit(0x4C, 0x89, 0xEE)             // mov rsi, r13
		a.callAbs(b, a.helpers.WriteByte)
		a.testRAX(b)
		a.jccOffset(b, x86JNZ, halt)
	case bytecode.OpCall:
		a.emitCall(b, halt)
	case bytecode.OpReturn:
		a.EmitEpilogue(b)
	default:
		b.fail(fmt.Errorf("amd64: cannot lower %s", in.Op))
	}
}

// emitCall asks pre_call for the lambda's address and captured pointer,
// calls the lambda, then restores the caller's pointer from post_call.
func (a *AMD64) emitCall(b *CodeBuffer, halt int) {
	b.Emit(0x48, 0x8D, 0x15) // lea rdx, [rip+disp32]
	retField := b.Len()
	b.Emit32(0)
	b.Emit(0x4C, 0x89, 0xEF) // mov rdi, r13
	b.Emit(0x89, 0xDE)       // mov esi, ebx
	a.callAbs(b, a.helpers.PreCall)
	a.testRAX(b)
	a.jccOffset(b, x86JZ, halt)
	b.Emit(0x89, 0xD3) // mov ebx, edx
	b.Emit(0xFF, 0xD0) // call rax
	a.testRAX(b)
	a.jccOffset(b, x86JNZ, halt)
	b.Emit(0x4C, 0x89, 0xEF) // mov rdi, r13
	a.callAbs(b, a.helpers.PostCall)
	a.testRAX(b)
	a.jccOffset(b, x86JS, halt)
	b.Emit(0x89, 0xC3) // mov ebx, eax
	b.Put32(retField, uint32(b.Len()-(retField+4)))
}

func (a *AMD64) EmitSkip(b *CodeBuffer, target int) {
	b.Emit(0xE9) // jmp rel32
	b.AddRelocation(Relocation{Offset: b.Len(), Target: target, Kind: RelRel32})
	b.Emit32(0)
}

func (a *AMD64) EmitPushLambda(b *CodeBuffer, body uint64) {
	b.Emit(0x4C, 0x89, 0xEF) // mov rdi, r13
	b.Emit(0x48, 0xBE)       // mov rsi, imm64
	b.Emit64(body)
	b.Emit(0x89, 0xDA) // mov edx, ebx
	a.callAbs(b, a.helpers.PushLambda)
}

func (*AMD64) Patch(code []byte, r Relocation, target int) error {
	if r.Kind != RelRel32 {
		return fmt.Errorf("%w: amd64 %s", ErrUnknownRelocation, r.Kind)
	}
	if r.Offset < 0 || r.Offset+4 > len(code) {
		return fmt.Errorf("%w: offset %d, emitted %d", ErrPatchOutOfBounds, r.Offset, len(code))
	}
	disp := int64(target) - int64(r.Offset+4)
	if disp < math.MinInt32 || disp > math.MaxInt32 {
		return fmt.Errorf("%w: rel32 displacement %d", ErrBranchOutOfRange, disp)
	}
	binary.LittleEndian.PutUint32(code[r.Offset:], uint32(int32(disp)))
	return nil
}
