package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[run]
modes = ["interpret", "jit"]
eof = 255
max-call-depth = 100

[jit]
backend = "arm64"
min-buffer = 4096

[log]
verbosity = 2
file = "brainfork.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Run.Modes) != 2 || !m.HasMode(ModeInterpret) || !m.HasMode(ModeJIT) {
		t.Errorf("run modes = %v", m.Run.Modes)
	}
	if m.EOFByte() != 255 {
		t.Errorf("eof = %d, want 255", m.EOFByte())
	}
	if m.Run.MaxCallDepth != 100 {
		t.Errorf("max-call-depth = %d, want 100", m.Run.MaxCallDepth)
	}
	if m.JIT.Backend != "arm64" {
		t.Errorf("jit backend = %q, want arm64", m.JIT.Backend)
	}
	if m.JIT.MinBuffer != 4096 {
		t.Errorf("jit min-buffer = %d, want 4096", m.JIT.MinBuffer)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}

	abs, _ := filepath.Abs(dir)
	if m.Log.File != filepath.Join(abs, "brainfork.log") {
		t.Errorf("log file = %q, want it resolved against %s", m.Log.File, abs)
	}
	if m.Path != filepath.Join(abs, FileName) {
		t.Errorf("path = %q", m.Path)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[log]
verbosity = 1
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if m.Run.MaxCallDepth != def.Run.MaxCallDepth {
		t.Errorf("max-call-depth = %d, want default %d", m.Run.MaxCallDepth, def.Run.MaxCallDepth)
	}
	if m.EOFByte() != 0 {
		t.Errorf("eof = %d, want 0", m.EOFByte())
	}
	if m.JIT.Backend != "auto" || m.JIT.MinBuffer != 65536 {
		t.Errorf("jit = %+v, want defaults", m.JIT)
	}
	if len(m.Run.Modes) != 0 {
		t.Errorf("modes = %v, want none", m.Run.Modes)
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown mode", "[run]\nmodes = [\"compile\"]\n"},
		{"eof too large", "[run]\neof = 256\n"},
		{"negative depth", "[run]\nmax-call-depth = -1\n"},
		{"unknown backend", "[jit]\nbackend = \"riscv64\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[run\n")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[run]\neof = 7\n")

	sub := filepath.Join(root, "programs", "samples")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.EOFByte() != 7 {
		t.Errorf("eof = %d, want 7", m.EOFByte())
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no brainfork.toml exists")
	}
}
