package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
// Loop and lambda bodies are indented by nesting depth.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Brainfork Program v%d\n", ProgramVersion))
	sb.WriteString(fmt.Sprintf("; Instructions: %d", len(p.Code)))
	if n := p.Lambdas(); n > 0 {
		sb.WriteString(fmt.Sprintf(", lambdas: %d", n))
	}
	sb.WriteString("\n\n")

	depth := 0
	for i, in := range p.Code {
		if in.Op == OpJumpIfNonZero || in.Op == OpReturn {
			depth--
		}
		if depth < 0 {
			depth = 0
		}
		line := strings.Repeat("  ", depth) + in.String()
		if loc := p.Location(i); loc.Line > 0 {
			sb.WriteString(fmt.Sprintf("%04d  %-30s ; line %d:%d\n", i, line, loc.Line, loc.Column))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", i, line))
		}
		if in.Op == OpJumpIfZero || in.Op == OpLambda {
			depth++
		}
	}
	sb.WriteString(fmt.Sprintf("%04d  <end>\n", len(p.Code)))

	return sb.String()
}
