package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/brainfork/compiler"
	"github.com/chazu/brainfork/pkg/battery"
	"github.com/chazu/brainfork/pkg/bytecode"
)

var batteryErrors = map[string]error{
	"call-with-no-lambda": ErrCallWithNoLambda,
	"call-stack-overflow": ErrCallStackOverflow,
}

func runSource(t *testing.T, src, input string, opts ...Option) ([]byte, error) {
	t.Helper()
	p, err := compiler.Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	var out bytes.Buffer
	err = Run(p, strings.NewReader(input), &out, opts...)
	return out.Bytes(), err
}

func TestInterpretBattery(t *testing.T) {
	cases, err := battery.Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			var opts []Option
			if c.Limit > 0 {
				opts = append(opts, WithMaxCallDepth(c.Limit))
			}
			got, err := runSource(t, c.Source, c.Input, opts...)
			if c.Error != "" {
				want, ok := batteryErrors[c.Error]
				if !ok {
					t.Fatalf("unknown error name %q", c.Error)
				}
				if !errors.Is(err, want) {
					t.Fatalf("err = %v, want %v", err, want)
				}
			} else if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !bytes.Equal(got, c.Want()) {
				t.Errorf("output = %v, want %v", got, c.Want())
			}
		})
	}
}

func TestInterpretReturnWithoutCall(t *testing.T) {
	p := &bytecode.Program{Code: []bytecode.Instruction{
		{Op: bytecode.OpAdd, Operand: 1},
		{Op: bytecode.OpReturn},
	}}
	err := Run(p, strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, ErrReturnWithoutCall) {
		t.Fatalf("err = %v, want ErrReturnWithoutCall", err)
	}
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %T, want *RuntimeError", err)
	}
	if re.PC != 1 || re.Op != bytecode.OpReturn {
		t.Errorf("RuntimeError = %+v, want RETURN at 1", re)
	}
}

func TestInterpretCallWithNoLambdaReportsLocation(t *testing.T) {
	_, err := runSource(t, "+\n  !", "")
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RuntimeError", err)
	}
	if re.Loc.Line != 2 || re.Loc.Column != 3 {
		t.Errorf("location = %d:%d, want 2:3", re.Loc.Line, re.Loc.Column)
	}
	if !strings.Contains(re.Error(), "line 2:3") {
		t.Errorf("message %q lacks location", re.Error())
	}
}

func TestInterpretPointerWraps(t *testing.T) {
	// Moving left of cell 0 and back lands on cell 0 again.
	got, err := runSource(t, "+<>.", "")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1}) {
		t.Errorf("output = %v, want [1]", got)
	}
}

func TestInterpretPointerOutOfRange(t *testing.T) {
	_, err := runSource(t, "<+", "")
	if !errors.Is(err, ErrPointerOutOfRange) {
		t.Errorf("err = %v, want ErrPointerOutOfRange", err)
	}

	_, err = runSource(t, strings.Repeat(">", TapeSize)+".", "")
	if !errors.Is(err, ErrPointerOutOfRange) {
		t.Errorf("err = %v, want ErrPointerOutOfRange past the last cell", err)
	}

	got, err := runSource(t, strings.Repeat(">", TapeSize-1)+"+.", "")
	if err != nil {
		t.Fatalf("last cell: %v", err)
	}
	if !bytes.Equal(got, []byte{1}) {
		t.Errorf("last cell output = %v, want [1]", got)
	}
}

func TestInterpretCustomEOF(t *testing.T) {
	got, err := runSource(t, ",.", "", WithEOF(255))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{255}) {
		t.Errorf("output = %v, want [255]", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestInterpretWriteError(t *testing.T) {
	p, err := compiler.Compile(".")
	if err != nil {
		t.Fatal(err)
	}
	err = Run(p, strings.NewReader(""), failingWriter{})
	if !errors.Is(err, ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}

func TestBatteryErrorsMapped(t *testing.T) {
	for _, name := range battery.Errors {
		if batteryErrors[name] == nil {
			t.Errorf("battery error %q has no sentinel", name)
		}
	}
}

func TestInterpretClosedContext(t *testing.T) {
	p, err := compiler.Compile("+.")
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	ctx := NewContext(strings.NewReader(""), &out)
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := Interpret(ctx, p); !errors.Is(err, ErrContextClosed) {
		t.Errorf("err = %v, want ErrContextClosed", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %v, want nothing", out.Bytes())
	}
}
