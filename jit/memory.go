//go:build unix

package jit

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

var ErrMemoryState = errors.New("executable memory in wrong state")

type memState uint8

const (
	memWritable memState = iota
	memExecutable
	memReleased
)

// Memory is an anonymous mapping that holds generated code. It is writable
// while code is emitted and patched, executable once sealed, and released
// exactly once.
type Memory struct {
	mem   []byte
	state memState
}

// MapMemory maps at least size bytes read/write.
func MapMemory(size int) (*Memory, error) {
	page := unix.Getpagesize()
	if size <= 0 {
		size = page
	}
	size = (size + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return &Memory{mem: mem}, nil
}

// Base returns the native address of the first byte.
func (m *Memory) Base() uint64 {
	return uint64(uintptr(unsafe.Pointer(&m.mem[0])))
}

// Size returns the mapped length.
func (m *Memory) Size() int { return len(m.mem) }

// Bytes returns the region for writing, or nil unless it is writable.
func (m *Memory) Bytes() []byte {
	if m.state != memWritable {
		return nil
	}
	return m.mem
}

// Executable reports whether the region is sealed for execution.
func (m *Memory) Executable() bool { return m.state == memExecutable }

// Seal makes the region read/execute. No further writes are possible.
func (m *Memory) Seal() error {
	if m.state != memWritable {
		return fmt.Errorf("%w: seal", ErrMemoryState)
	}
	if err := unix.Mprotect(m.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect r-x: %w", err)
	}
	m.state = memExecutable
	return nil
}

// Unseal makes a sealed region writable again.
func (m *Memory) Unseal() error {
	if m.state != memExecutable {
		return fmt.Errorf("%w: unseal", ErrMemoryState)
	}
	if err := unix.Mprotect(m.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("mprotect rw-: %w", err)
	}
	m.state = memWritable
	return nil
}

// Release unmaps the region. Later calls do nothing.
func (m *Memory) Release() error {
	if m.state == memReleased {
		return nil
	}
	m.state = memReleased
	mem := m.mem
	m.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
