// Package jit turns finished machine code into something callable.
//
// A CodeBuffer owns one executable region, copies code into it, and calls it
// as a function returning int32. The bridge in this package encodes calls
// from generated code back into host functions using the callee-pops
// (stdcall) convention.
//
// Invoking a buffer runs arbitrary machine code with the full privileges of
// the process. A crash, hang or memory corruption in that code is a crash,
// hang or corruption of the host. There is no sandbox, no timeout and no
// cancellation.
package jit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ascrivener/jitseed/pkg/execmem"
)

var (
	// ErrEmptyCode is returned when a buffer is built from zero bytes.
	ErrEmptyCode = errors.New("jit: empty code")

	// ErrClosed is returned by Invoke after Close.
	ErrClosed = errors.New("jit: code buffer closed")

	// ErrTooManyArgs is returned for calls with more than MaxArgs arguments.
	ErrTooManyArgs = fmt.Errorf("jit: more than %d arguments", MaxArgs)

	// ErrUnsupportedPlatform is returned by Invoke on platforms without a
	// native call entry.
	ErrUnsupportedPlatform = errors.New("jit: invoking native code is not supported on this platform")
)

// MaxArgs is the largest arity the native call entry and the bridge support.
const MaxArgs = 3

var defaultProvider = sync.OnceValue(func() execmem.Provider {
	return execmem.NewProvider()
})

// CodeBuffer is an executable region holding one finished code sequence.
// The code must end in a return before the page padding that follows it.
type CodeBuffer struct {
	provider execmem.Provider
	region   *execmem.Region
	length   int

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// New copies code into executable memory from the default provider.
func New(code []byte) (*CodeBuffer, error) {
	return FromBytes(defaultProvider(), code)
}

// FromBytes reserves a region of RoundUp(len(code)) bytes from p and copies
// code to its start. Allocation failures are returned as
// *errors.AllocationError.
func FromBytes(p execmem.Provider, code []byte) (*CodeBuffer, error) {
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}

	region, err := p.Reserve(len(code))
	if err != nil {
		return nil, fmt.Errorf("reserve %d bytes for code: %w", len(code), err)
	}

	mem := region.Bytes()
	if len(mem) < len(code) {
		relErr := p.Release(region)
		return nil, errors.Join(fmt.Errorf("provider returned %d bytes, need %d", len(mem), len(code)), relErr)
	}
	copy(mem, code)

	return &CodeBuffer{
		provider: p,
		region:   region,
		length:   len(code),
	}, nil
}

// Len returns the number of meaningful code bytes.
func (b *CodeBuffer) Len() int {
	return b.length
}

// RegionSize returns the size of the underlying region, a whole number of
// pages and never less than Len.
func (b *CodeBuffer) RegionSize() int {
	return b.region.Size()
}

// Addr returns the entry address of the code, or 0 once closed.
func (b *CodeBuffer) Addr() uintptr {
	if b.closed.Load() {
		return 0
	}
	return b.region.Addr()
}

// Invoke calls the code as a function taking no arguments and returning
// int32. It blocks until the generated code returns.
func (b *CodeBuffer) Invoke() (int32, error) {
	return b.InvokeArgs()
}

// InvokeArgs calls the code as a callee-pops function taking up to MaxArgs
// int32 stack arguments. The argument count must match what the code
// expects; a mismatch corrupts the stack.
func (b *CodeBuffer) InvokeArgs(args ...int32) (int32, error) {
	if len(args) > MaxArgs {
		return 0, ErrTooManyArgs
	}
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return callCode(b.region.Addr(), args)
}

// Close releases the region. The provider's Release is called exactly once
// no matter how many times Close is called; later calls return the first
// result.
func (b *CodeBuffer) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.closeErr = b.provider.Release(b.region)
	})
	return b.closeErr
}

// CallTarget calls a native function directly from Go. It is the same entry
// Invoke uses, pointed at a host function instead of generated code.
func CallTarget(target NativeCallTarget, args ...int32) (int32, error) {
	if len(args) > MaxArgs {
		return 0, ErrTooManyArgs
	}
	return callCode(uintptr(target), args)
}
