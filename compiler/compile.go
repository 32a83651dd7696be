// Package compiler turns brainfork source text into optimized bytecode.
package compiler

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/brainfork/pkg/bytecode"
)

var log = commonlog.GetLogger("brainfork.compiler")

// Compile scans and optimizes source text.
func Compile(source string) (*bytecode.Program, error) {
	raw, err := Scan(source)
	if err != nil {
		return nil, err
	}
	p, stats, err := OptimizeWithStats(raw)
	if err != nil {
		return nil, err
	}
	log.Debugf("compiled %d bytes of source: %d instructions, %d after optimization (%d cleared)",
		len(source), stats.Before, stats.After, stats.Cleared)
	return p, nil
}
