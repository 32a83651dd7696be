package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// TapeSize is the number of cells on the tape.
const TapeSize = 131072

// DefaultEOF is the byte a read stores at end of input.
const DefaultEOF byte = 0

// DefaultMaxCallDepth bounds nested calls so deep recursion cannot exhaust
// the native stack under the JIT.
const DefaultMaxCallDepth = 16384

// Tape is the zero-initialized cell memory of one execution.
type Tape [TapeSize]byte

// Lambda is a defined function value. Body is an instruction index for the
// interpreter and a native address for the JIT.
type Lambda struct {
	Body     uint64
	Captured uint32
}

// CallFrame records where to resume the caller after a return.
type CallFrame struct {
	Return uint64
	Saved  uint32
}

// ---------------------------------------------------------------------------
// Context: state owned by a single execution
// ---------------------------------------------------------------------------

// Context is the state owned by a single interpreter or JIT run: the tape,
// the lambda and call stacks, and the program's I/O streams. A Context is
// created fresh for every run and closed at its end.
type Context struct {
	ID uuid.UUID

	Tape    *Tape
	Lambdas []Lambda
	Frames  []CallFrame

	in  *bufio.Reader
	out *bufio.Writer

	eof      byte
	maxDepth int
	log      commonlog.Logger

	err    error
	closed bool
}

// Option configures a Context.
type Option func(*Context)

// WithEOF sets the byte stored by a read at end of input.
func WithEOF(b byte) Option {
	return func(c *Context) { c.eof = b }
}

// WithMaxCallDepth limits the number of live call frames. Zero means
// unbounded.
func WithMaxCallDepth(n int) Option {
	return func(c *Context) { c.maxDepth = n }
}

// WithLogger replaces the context's logger.
func WithLogger(l commonlog.Logger) Option {
	return func(c *Context) { c.log = l }
}

// NewContext creates the execution state for one run reading from in and
// writing to out.
func NewContext(in io.Reader, out io.Writer, opts ...Option) *Context {
	c := &Context{
		ID:       uuid.New(),
		Tape:     new(Tape),
		Lambdas:  make([]Lambda, 0, 8),
		Frames:   make([]CallFrame, 0, 16),
		in:       bufio.NewReader(in),
		out:      bufio.NewWriter(out),
		eof:      DefaultEOF,
		maxDepth: DefaultMaxCallDepth,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the logger runs on this context should use.
func (c *Context) Logger() commonlog.Logger {
	return c.log
}

// PushLambda defines a new lambda, shadowing the previous one.
func (c *Context) PushLambda(l Lambda) {
	c.Lambdas = append(c.Lambdas, l)
}

// TopLambda returns the most recently defined lambda without removing it.
func (c *Context) TopLambda() (Lambda, bool) {
	if len(c.Lambdas) == 0 {
		return Lambda{}, false
	}
	return c.Lambdas[len(c.Lambdas)-1], true
}

// PushFrame records a call. It fails with ErrCallStackOverflow once the
// configured depth is reached.
func (c *Context) PushFrame(f CallFrame) error {
	if c.maxDepth > 0 && len(c.Frames) >= c.maxDepth {
		return fmt.Errorf("%w: depth %d", ErrCallStackOverflow, c.maxDepth)
	}
	c.Frames = append(c.Frames, f)
	return nil
}

// PopFrame removes and returns the innermost call frame.
func (c *Context) PopFrame() (CallFrame, bool) {
	if len(c.Frames) == 0 {
		return CallFrame{}, false
	}
	f := c.Frames[len(c.Frames)-1]
	c.Frames = c.Frames[:len(c.Frames)-1]
	return f, true
}

// ReadByte returns the next input byte, or the EOF byte at end of input.
func (c *Context) ReadByte() (byte, error) {
	if err := c.out.Flush(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	b, err := c.in.ReadByte()
	if errors.Is(err, io.EOF) {
		return c.eof, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return b, nil
}

// WriteByte emits one output byte.
func (c *Context) WriteByte(b byte) error {
	if err := c.out.WriteByte(b); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Fail records the first error raised while native code is running.
func (c *Context) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Err returns the error recorded by Fail.
func (c *Context) Err() error {
	return c.err
}

// Close flushes buffered output and releases the stacks. Only the first call
// has any effect.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.Lambdas = nil
	c.Frames = nil
	c.Tape = nil
	if err := c.out.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
