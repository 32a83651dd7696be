// Brainfork CLI - compiles and runs brainfork programs
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/brainfork/compiler"
	"github.com/chazu/brainfork/jit"
	"github.com/chazu/brainfork/manifest"
	"github.com/chazu/brainfork/pkg/bytecode"
	"github.com/chazu/brainfork/vm"
)

// ObjectExt marks serialized programs accepted in place of source.
const ObjectExt = ".bfc"

var log = commonlog.GetLogger("brainfork")

// usageError is a command line mistake. It is reported with the usage text.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// verbosity is a repeatable -v flag.
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

type options struct {
	interpret bool
	jit       bool
	disasm    bool
	native    bool
	output    string
	config    string
	verbose   verbosity
	file      string
}

func newFlagSet(opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("brainfork", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&opts.interpret, "i", false, "interpreter mode")
	fs.BoolVar(&opts.jit, "j", false, "JIT mode")
	fs.BoolVar(&opts.disasm, "d", false, "print the optimized program to stderr")
	fs.BoolVar(&opts.native, "S", false, "print the native code layout to stderr")
	fs.StringVar(&opts.output, "o", "", "write the optimized program to `file`")
	fs.StringVar(&opts.config, "config", "", "read configuration from `path`")
	fs.Var(&opts.verbose, "v", "raise log verbosity (repeatable)")
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "usage:\n")
	fmt.Fprintf(w, "  brainfork [options] <filename.bf>\n\n")
	fmt.Fprintf(w, "options:\n")
	fmt.Fprintf(w, "  -i | interpreter mode\n")
	fmt.Fprintf(w, "  -j | JIT mode\n")
	fmt.Fprintf(w, "  -d | print the optimized program to stderr\n")
	fmt.Fprintf(w, "  -S | print the native code layout to stderr\n")
	fmt.Fprintf(w, "  -o <file> | write the optimized program as a %s object file\n", ObjectExt)
	fmt.Fprintf(w, "  -config <path> | read configuration instead of searching for %s\n", manifest.FileName)
	fmt.Fprintf(w, "  -v | raise log verbosity, may be repeated\n")
}

// parseArgs accepts flags before and after the file name.
func parseArgs(args []string) (*options, error) {
	opts := &options{}
	fs := newFlagSet(opts)
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, &usageError{msg: flagError(err)}
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		if opts.file != "" {
			return nil, &usageError{msg: "error: multiple filenames provided."}
		}
		opts.file = rest[0]
		args = rest[1:]
	}
	return opts, nil
}

// flagError rewords a flag package error the way usage errors are reported.
func flagError(err error) string {
	const undefined = "flag provided but not defined: "
	if msg := err.Error(); strings.HasPrefix(msg, undefined) {
		return fmt.Sprintf("error argument %q", strings.TrimPrefix(msg, undefined))
	}
	return "error: " + err.Error()
}

func loadConfig(opts *options) (*manifest.Manifest, error) {
	if opts.config != "" {
		return manifest.LoadFile(opts.config)
	}
	dir := "."
	if opts.file != "" {
		dir = filepath.Dir(opts.file)
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, opts *options) {
	var path *string
	if m.Log.File != "" {
		path = &m.Log.File
	}
	commonlog.Configure(m.Log.Verbosity+int(opts.verbose), path)
}

// loadProgram scans and optimizes a source file, or decodes an object file.
func loadProgram(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open or read file <%s>", path)
	}
	if filepath.Ext(path) == ObjectExt {
		p, name, err := bytecode.UnmarshalProgram(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		log.Debugf("loaded object %s (%s), %d instructions", path, name, p.Len())
		return p, nil
	}
	p, err := compiler.Compile(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func programName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeObject(p *bytecode.Program, path, name string) error {
	data, err := bytecode.MarshalProgram(p, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	log.Infof("wrote %s (%d bytes)", path, len(data))
	return nil
}

func printNative(w io.Writer, p *bytecode.Program, backend string) error {
	img, err := jit.Assemble(p, backend)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "; %d bytes, %d functions, %d relocations, entry at %06x\n",
		len(img.Code), img.Functions, img.Relocations, img.Entry)
	for i, in := range p.Code {
		fmt.Fprintf(w, "%06x  %04d  %s\n", img.Addrs[i], i, in)
	}
	fmt.Fprintf(w, "%06x  %04d  <end>\n", img.Addrs[p.Len()], p.Len())
	return nil
}

// runInput returns a source of program input for each run. When several runs
// share stdin it is read once and every run sees the whole of it.
func runInput(stdin io.Reader, shared bool) (func() io.Reader, error) {
	if !shared {
		return func() io.Reader { return stdin }, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("cannot read input: %w", err)
	}
	return func() io.Reader { return bytes.NewReader(data) }, nil
}

// run executes the command and returns the process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return 0
	}

	opts, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return 0
		}
		return fail(stderr, err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return fail(stderr, err)
	}
	configureLogging(cfg, opts)

	if !opts.interpret && !opts.jit && opts.output == "" && !opts.disasm && !opts.native {
		opts.interpret = cfg.HasMode(manifest.ModeInterpret)
		opts.jit = cfg.HasMode(manifest.ModeJIT)
		if !opts.interpret && !opts.jit {
			return fail(stderr, &usageError{msg: "please choose an interpreter or JIT-compiler"})
		}
	}
	if opts.file == "" {
		return fail(stderr, &usageError{msg: "no input file"})
	}

	p, err := loadProgram(opts.file)
	if err != nil {
		return fail(stderr, err)
	}
	name := programName(opts.file)

	if opts.output != "" {
		if err := writeObject(p, opts.output, name); err != nil {
			return fail(stderr, err)
		}
	}
	if opts.disasm {
		fmt.Fprint(stderr, p.DisassembleWithName(name))
	}
	if opts.native {
		if err := printNative(stderr, p, cfg.JIT.Backend); err != nil {
			return fail(stderr, err)
		}
	}

	vmOpts := []vm.Option{
		vm.WithEOF(cfg.EOFByte()),
		vm.WithMaxCallDepth(cfg.Run.MaxCallDepth),
	}
	input, err := runInput(stdin, opts.interpret && opts.jit)
	if err != nil {
		return fail(stderr, err)
	}
	if opts.interpret {
		if err := vm.Run(p, input(), stdout, vmOpts...); err != nil {
			return fail(stderr, err)
		}
	}
	if opts.jit {
		err := jit.Run(p, input(), stdout,
			jit.WithBackend(cfg.JIT.Backend),
			jit.WithMinBuffer(cfg.JIT.MinBuffer),
			jit.WithContext(vmOpts...))
		if err != nil {
			return fail(stderr, err)
		}
	}
	return 0
}

func fail(stderr io.Writer, err error) int {
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "%s\n\n", ue.msg)
		printUsage(stderr)
		return 1
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
