// bfbus rewrites a brainfork source file as a .bus word list.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/brainfork/pkg/bytecode"
)

// OutputExt is the extension of transliterated files.
const OutputExt = ".bus"

var log = commonlog.GetLogger("brainfork.bus")

var words = map[bytecode.Opcode]string{
	bytecode.OpAdd:           "ROUTE",
	bytecode.OpSub:           "102",
	bytecode.OpRight:         "MARKHAM",
	bytecode.OpLeft:          "ROAD",
	bytecode.OpJumpIfZero:    "SOUTHBOUND",
	bytecode.OpJumpIfNonZero: "TOWARDS",
	bytecode.OpRead:          "WARDEN",
	bytecode.OpWrite:         "STATION",
}

// symbols maps each source character to its word.
var symbols = func() map[byte]string {
	m := make(map[byte]string, len(words))
	for op, w := range words {
		m[op.Symbol()] = w
	}
	return m
}()

// Word returns the word for a source symbol.
func Word(c byte) (string, bool) {
	w, ok := symbols[c]
	return w, ok
}

// OutputName replaces a trailing .bf with .bus, or appends .bus.
func OutputName(input string) string {
	if filepath.Ext(input) == ".bf" {
		return strings.TrimSuffix(input, ".bf") + OutputExt
	}
	return input + OutputExt
}

// Transliterate copies r to w, writing each symbol as its word followed by a
// space. Whitespace is kept and everything else is dropped.
func Transliterate(r io.Reader, w io.Writer) error {
	in := bufio.NewReader(r)
	out := bufio.NewWriter(w)
	for {
		c, err := in.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if word, ok := Word(c); ok {
			out.WriteString(word)
			out.WriteByte(' ')
			continue
		}
		switch c {
		case ' ', '\n', '\t', '\r':
			out.WriteByte(c)
		}
	}
	return out.Flush()
}

func convert(input string) (string, error) {
	src, err := os.Open(input)
	if err != nil {
		return "", fmt.Errorf("error opening input file: %w", err)
	}
	defer src.Close()

	output := OutputName(input)
	dst, err := os.Create(output)
	if err != nil {
		return "", fmt.Errorf("error creating output file: %w", err)
	}
	if err := Transliterate(src, dst); err != nil {
		dst.Close()
		return "", fmt.Errorf("%s: %w", output, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", output, err)
	}
	log.Debugf("transliterated %s to %s", input, output)
	return output, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintf(stderr, "Usage: bfbus <input.bf>\n")
		return 1
	}
	output, err := convert(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Output written to: %s\n", output)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
