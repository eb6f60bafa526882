// Package hostfn exposes Go functions as native callee-pops entry points so
// generated code can call them through a jit.NativeCallTarget.
//
// Entry points come from a fixed pool per arity. A target stays valid until
// Unregister; the caller must not free a target that a live CodeBuffer
// still embeds.
package hostfn

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ascrivener/jitseed/pkg/jit"
)

// SlotsPerArity is the number of entry points available for each arity.
const SlotsPerArity = 8

var (
	// ErrNoFreeSlots is returned when every entry point of an arity is taken.
	ErrNoFreeSlots = errors.New("hostfn: no free entry points")

	// ErrAddressTooWide is returned when an entry point lies above 4GiB and
	// cannot be embedded as a 32-bit immediate.
	ErrAddressTooWide = errors.New("hostfn: entry point does not fit in 32 bits")

	// ErrUnknownTarget is returned by Unregister for targets it did not hand out.
	ErrUnknownTarget = errors.New("hostfn: unknown target")

	// ErrUnsupportedPlatform is returned where no entry points exist.
	ErrUnsupportedPlatform = errors.New("hostfn: native entry points are not supported on this platform")
)

type (
	Func0 func() int32
	Func1 func(a int32) int32
	Func2 func(a, b int32) int32
	Func3 func(a, b, c int32) int32
)

type hostFunc func(args [jit.MaxArgs]int32) int32

type slotRef struct {
	arity int
	slot  int
}

type registry struct {
	mu      sync.RWMutex
	slots   [jit.MaxArgs + 1][SlotsPerArity]hostFunc
	targets map[jit.NativeCallTarget]slotRef
}

var reg = &registry{
	targets: make(map[jit.NativeCallTarget]slotRef),
}

// Register0 exposes fn as a native function taking no arguments.
func Register0(fn Func0) (jit.NativeCallTarget, error) {
	return reg.register(0, func(_ [jit.MaxArgs]int32) int32 { return fn() })
}

// Register1 exposes fn as a native function taking one int32.
func Register1(fn Func1) (jit.NativeCallTarget, error) {
	return reg.register(1, func(a [jit.MaxArgs]int32) int32 { return fn(a[0]) })
}

// Register2 exposes fn as a native function taking two int32s.
func Register2(fn Func2) (jit.NativeCallTarget, error) {
	return reg.register(2, func(a [jit.MaxArgs]int32) int32 { return fn(a[0], a[1]) })
}

// Register3 exposes fn as a native function taking three int32s.
func Register3(fn Func3) (jit.NativeCallTarget, error) {
	return reg.register(3, func(a [jit.MaxArgs]int32) int32 { return fn(a[0], a[1], a[2]) })
}

// Unregister frees the entry point behind t.
func Unregister(t jit.NativeCallTarget) error {
	return reg.unregister(t)
}

func (r *registry) register(arity int, fn hostFunc) (jit.NativeCallTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for slot := range r.slots[arity] {
		if r.slots[arity][slot] != nil {
			continue
		}

		addr, err := nativeEntry(arity, slot)
		if err != nil {
			return 0, err
		}
		if addr == 0 || uint64(addr) > math.MaxUint32 {
			return 0, fmt.Errorf("%w: %#x", ErrAddressTooWide, addr)
		}

		t := jit.NativeCallTarget(addr)
		r.slots[arity][slot] = fn
		r.targets[t] = slotRef{arity: arity, slot: slot}
		return t, nil
	}
	return 0, fmt.Errorf("%w: arity %d", ErrNoFreeSlots, arity)
}

func (r *registry) unregister(t jit.NativeCallTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.targets[t]
	if !ok {
		return ErrUnknownTarget
	}
	delete(r.targets, t)
	r.slots[ref.arity][ref.slot] = nil
	return nil
}

// dispatch runs on the thread that executed the generated code.
func (r *registry) dispatch(arity, slot int, args [jit.MaxArgs]int32) int32 {
	r.mu.RLock()
	fn := r.slots[arity][slot]
	r.mu.RUnlock()

	if fn == nil {
		panic(fmt.Sprintf("hostfn: call through unregistered entry point (arity %d, slot %d)", arity, slot))
	}
	return fn(args)
}
