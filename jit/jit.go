// Package jit compiles optimized brainfork programs to native amd64 or arm64
// code and executes them.
//
// Compilation produces one native function for the top-level program and one
// for every lambda body. Generated code keeps the cell pointer, tape base and
// context handle in callee-saved registers and calls back into Go for the
// lambda stack, the call stack and I/O. Every function returns a status
// word, and a non-zero status unwinds to the entry stub so the error
// recorded on the vm.Context can be reported.
package jit

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/brainfork/pkg/bytecode"
	"github.com/chazu/brainfork/vm"
)

var log = commonlog.GetLogger("brainfork.jit")

var errHalted = errors.New("native code halted without an error")

// Supported reports whether this build can execute generated code.
func Supported() bool { return supported }

// Entry is a compiled entry point inside sealed memory.
type Entry struct {
	mem *Memory
	off int
}

func (e Entry) addr() uint64 { return e.mem.Base() + uint64(e.off) }

type runConfig struct {
	backend   string
	minBuffer int
	vmOpts    []vm.Option
}

// Option configures Run.
type Option func(*runConfig)

// WithBackend selects a backend by name. "auto" selects the host.
func WithBackend(name string) Option {
	return func(c *runConfig) { c.backend = name }
}

// WithMinBuffer sets the smallest executable region to map.
func WithMinBuffer(n int) Option {
	return func(c *runConfig) { c.minBuffer = n }
}

// WithContext passes options through to the run's vm.Context.
func WithContext(opts ...vm.Option) Option {
	return func(c *runConfig) { c.vmOpts = append(c.vmOpts, opts...) }
}

// Assemble compiles p for the named backend into ordinary memory. The code
// is for inspection only; addresses are relative to the start of the image.
func Assemble(p *bytecode.Program, backend string) (*Image, error) {
	be, err := BackendByName(backend, hostHelpers())
	if err != nil {
		return nil, err
	}
	c := NewCompiler(be)
	return c.Compile(p, make([]byte, c.EstimateSize(p)), 0)
}

// Run compiles p for the host, executes it on a fresh context reading from
// in and writing to out, and releases the code afterwards.
func Run(p *bytecode.Program, in io.Reader, out io.Writer, opts ...Option) (err error) {
	cfg := runConfig{backend: "auto", minBuffer: DefaultMinBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !Supported() {
		return ErrUnsupported
	}

	be, err := BackendByName(cfg.backend, hostHelpers())
	if err != nil {
		return err
	}
	host, err := HostBackend(Helpers{})
	if err != nil {
		return err
	}
	if be.Name() != host.Name() {
		return fmt.Errorf("%w: cannot execute %s code on %s", ErrUnsupported, be.Name(), host.Name())
	}

	c := NewCompiler(be)
	size := max(c.EstimateSize(p), cfg.minBuffer)
	mem, err := MapMemory(size)
	if err != nil {
		return fmt.Errorf("jit: %w", err)
	}
	defer func() {
		if rerr := mem.Release(); err == nil && rerr != nil {
			err = fmt.Errorf("jit: %w", rerr)
		}
	}()

	img, err := c.Compile(p, mem.Bytes(), mem.Base())
	if err != nil {
		return err
	}
	if err := mem.Seal(); err != nil {
		return fmt.Errorf("jit: %w", err)
	}
	flushICache(mem.Base(), mem.Base()+uint64(len(img.Code)))

	ctx := vm.NewContext(in, out, cfg.vmOpts...)
	start := time.Now()
	ctx.Logger().Infof("run %s: executing %d bytes of %s code", ctx.ID, len(img.Code), be.Name())

	status := invoke(Entry{mem: mem, off: img.Entry}, ctx)
	if status != 0 {
		err = ctx.Err()
		if err == nil {
			err = errHalted
		}
	}
	if cerr := ctx.Close(); err == nil {
		err = cerr
	}

	ctx.Logger().Infof("run %s: native code finished in %s", ctx.ID, time.Since(start))
	return err
}
