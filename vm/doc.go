// Package vm implements the brainfork execution state and interpreter.
//
// This package contains:
//   - The per-run execution Context (tape, lambda stack, call stack, I/O)
//   - The reference interpreter that defines program semantics
//   - Runtime error types shared with the JIT
package vm
