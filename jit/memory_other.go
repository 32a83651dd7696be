//go:build !unix

package jit

import "errors"

var ErrMemoryState = errors.New("executable memory in wrong state")

// Memory is unavailable on this platform.
type Memory struct{}

func MapMemory(size int) (*Memory, error) { return nil, ErrUnsupported }

func (m *Memory) Base() uint64 { return 0 }
func (m *Memory) Size() int { return 0 }
func (m *Memory) Bytes() []byte { return nil }
func (m *Memory) Executable() bool { return false }
func (m *Memory) Seal() error { return ErrUnsupported }
func (m *Memory) Unseal() error { return ErrUnsupported }
func (m *Memory) Release() error { return nil }
