//go:build !(cgo && linux && (amd64 || arm64))

package jit

import "github.com/chazu/brainfork/vm"

const supported = false

func hostHelpers() Helpers { return Helpers{} }

func flushICache(start, end uint64) {}

func invoke(entry Entry, ctx *vm.Context) uint64 {
	panic("jit: " + ErrUnsupported.Error())
}
