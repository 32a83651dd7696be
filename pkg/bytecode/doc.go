// Package bytecode defines the instruction set shared by every stage of the
// brainfork pipeline: the scanner produces it, the optimizer rewrites it, and
// both the interpreter and the JIT consume it.
//
// # Instructions
//
// An Instruction is an Opcode with a 32-bit operand:
//
//   - ADD, SUB, RIGHT, LEFT: repeat count. Cell arithmetic counts are stored
//     modulo 256.
//   - JUMP_IF_ZERO: index of the instruction after the matching
//     JUMP_IF_NONZERO.
//   - JUMP_IF_NONZERO: index of the matching JUMP_IF_ZERO.
//   - LAMBDA: index of the instruction after the matching RETURN.
//   - RETURN: index of the matching LAMBDA.
//   - READ, WRITE, CLEAR, CALL: unused.
//
// # Programs
//
// A Program is a densely indexed Instruction sequence. All control transfer
// is expressed as instruction indices; the JIT lowers them to native
// addresses. Program.Validate checks that every transfer stays inside the
// program and that openers and closers agree.
//
// Programs can be serialized to CBOR object files ("BFKC") with
// MarshalProgram and loaded again with UnmarshalProgram.
package bytecode
