// Package manifest handles brainfork.toml configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up next to programs.
const FileName = "brainfork.toml"

// Execution modes accepted in run.modes.
const (
	ModeInterpret = "interpret"
	ModeJIT       = "jit"
)

var ErrInvalid = errors.New("invalid configuration")

// Manifest represents a brainfork.toml configuration.
type Manifest struct {
	Run RunConfig `toml:"run"`
	JIT JITConfig `toml:"jit"`
	Log LogConfig `toml:"log"`

	// Path is the file the manifest was loaded from, empty for defaults.
	Path string `toml:"-"`
}

// RunConfig configures program execution.
type RunConfig struct {
	// Modes run when no mode flag is given on the command line.
	Modes        []string `toml:"modes"`
	EOF          int      `toml:"eof"`
	MaxCallDepth int      `toml:"max-call-depth"`
}

// JITConfig configures native code generation.
type JITConfig struct {
	Backend   string `toml:"backend"`
	MinBuffer int    `toml:"min-buffer"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Manifest {
	return &Manifest{
		Run: RunConfig{
			EOF:          0,
			MaxCallDepth: 16384,
		},
		JIT: JITConfig{
			Backend:   "auto",
			MinBuffer: 65536,
		},
	}
}

// Load parses brainfork.toml from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path. Settings it leaves out
// keep their defaults.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if m.Log.File != "" && !filepath.IsAbs(m.Log.File) {
		m.Log.File = filepath.Join(filepath.Dir(m.Path), m.Log.File)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a brainfork.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (m *Manifest) Validate() error {
	for _, mode := range m.Run.Modes {
		if mode != ModeInterpret && mode != ModeJIT {
			return fmt.Errorf("%w: run.modes: unknown mode %q", ErrInvalid, mode)
		}
	}
	if m.Run.EOF < 0 || m.Run.EOF > 255 {
		return fmt.Errorf("%w: run.eof %d is not a byte", ErrInvalid, m.Run.EOF)
	}
	if m.Run.MaxCallDepth < 0 {
		return fmt.Errorf("%w: run.max-call-depth %d is negative", ErrInvalid, m.Run.MaxCallDepth)
	}
	switch m.JIT.Backend {
	case "", "auto", "amd64", "arm64":
	default:
		return fmt.Errorf("%w: jit.backend: unknown backend %q", ErrInvalid, m.JIT.Backend)
	}
	if m.JIT.MinBuffer < 0 {
		return fmt.Errorf("%w: jit.min-buffer %d is negative", ErrInvalid, m.JIT.MinBuffer)
	}
	return nil
}

// EOFByte returns the byte a read stores at end of input.
func (m *Manifest) EOFByte() byte {
	return byte(m.Run.EOF)
}

// HasMode reports whether mode is among the default modes.
func (m *Manifest) HasMode(mode string) bool {
	for _, have := range m.Run.Modes {
		if have == mode {
			return true
		}
	}
	return false
}
