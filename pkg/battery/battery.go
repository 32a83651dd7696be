// Package battery provides the shared set of programs that every execution
// strategy must run with identical observable output.
package battery

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed battery.yaml
var batteryYAML []byte

// Case is one program together with its input and expected output.
type Case struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Bytes  []int  `yaml:"bytes"`

	// Error names the runtime failure the program ends with, if any. It is
	// one of Errors.
	Error string `yaml:"error"`

	// Limit overrides the call depth limit when non-zero.
	Limit int `yaml:"limit"`
}

// Want returns the exact bytes the program must write.
func (c Case) Want() []byte {
	if c.Bytes == nil {
		return []byte(c.Output)
	}
	out := make([]byte, len(c.Bytes))
	for i, b := range c.Bytes {
		out[i] = byte(b)
	}
	return out
}

// Errors lists the runtime failures a case may end with. A return without a
// matching call is not listed: valid programs cannot reach it.
var Errors = []string{"call-with-no-lambda", "call-stack-overflow"}

// Load parses the embedded battery.
func Load() ([]Case, error) {
	return Parse(batteryYAML)
}

// Parse decodes and checks a battery document.
func Parse(data []byte) ([]Case, error) {
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("battery: %w", err)
	}
	for i, c := range cases {
		if c.Name == "" {
			return nil, fmt.Errorf("battery: case %d has no name", i)
		}
		if c.Output != "" && c.Bytes != nil {
			return nil, fmt.Errorf("battery: case %s sets both output and bytes", c.Name)
		}
		if c.Error != "" && !slices.Contains(Errors, c.Error) {
			return nil, fmt.Errorf("battery: case %s: unknown error %q", c.Name, c.Error)
		}
		for _, b := range c.Bytes {
			if b < 0 || b > 255 {
				return nil, fmt.Errorf("battery: case %s: byte %d out of range", c.Name, b)
			}
		}
	}
	return cases, nil
}
