package bytecode

import "fmt"

// Opcode identifies the kind of an instruction.
type Opcode byte

const (
	// ========================================================================
	// Run-length operators (operand is a repeat count)
	// ========================================================================

	OpAdd   Opcode = 0x00 // Add operand (mod 256) to the current cell
	OpSub   Opcode = 0x01 // Subtract operand (mod 256) from the current cell
	OpRight Opcode = 0x02 // Move the cell pointer right by operand
	OpLeft  Opcode = 0x03 // Move the cell pointer left by operand

	// ========================================================================
	// Control flow (operand is an instruction index)
	// ========================================================================

	OpJumpIfZero    Opcode = 0x10 // Continue at operand if the cell is zero
	OpJumpIfNonZero Opcode = 0x11 // Continue at operand if the cell is non-zero

	// ========================================================================
	// I/O
	// ========================================================================

	OpRead  Opcode = 0x20 // Read one byte into the current cell
	OpWrite Opcode = 0x21 // Write the current cell

	// ========================================================================
	// Idioms produced by the optimizer
	// ========================================================================

	OpClear Opcode = 0x30 // Set the current cell to zero

	// ========================================================================
	// Lambdas
	// ========================================================================

	OpLambda Opcode = 0x40 // Define a lambda; operand is the index after its body
	OpReturn Opcode = 0x41 // Return from a lambda; operand is its OpLambda index
	OpCall   Opcode = 0x42 // Call the most recently defined lambda
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Human-readable name
	Symbol    byte   // Source character, 0 for optimizer-only opcodes
	HasTarget bool   // Operand is an instruction index
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpAdd:   {"ADD", '+', false},
	OpSub:   {"SUB", '-', false},
	OpRight: {"RIGHT", '>', false},
	OpLeft:  {"LEFT", '<', false},

	OpJumpIfZero:    {"JUMP_IF_ZERO", '[', true},
	OpJumpIfNonZero: {"JUMP_IF_NONZERO", ']', true},

	OpRead:  {"READ", ',', false},
	OpWrite: {"WRITE", '.', false},

	OpClear: {"CLEAR", 0, false},

	OpLambda: {"LAMBDA", '(', true},
	OpReturn: {"RETURN", ')', true},
	OpCall:   {"CALL", '!', false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Symbol returns the source character an opcode is scanned from.
func (op Opcode) Symbol() byte {
	return GetOpcodeInfo(op).Symbol
}

// HasTarget returns true if the operand is an instruction index.
func (op Opcode) HasTarget() bool {
	return GetOpcodeInfo(op).HasTarget
}

// IsRunLength returns true if the scanner folds repeats of this opcode into
// its operand.
func (op Opcode) IsRunLength() bool {
	return op <= OpLeft
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
