//go:build windows

package hostfn

import (
	"golang.org/x/sys/windows"

	"github.com/ascrivener/jitseed/pkg/jit"
)

// Windows callbacks can never be freed, so each (arity, slot) entry point is
// created once and reused for every function registered into that slot.
var callbacks [jit.MaxArgs + 1][SlotsPerArity]uintptr

// nativeEntry is called with reg.mu held.
func nativeEntry(arity, slot int) (uintptr, error) {
	if cb := callbacks[arity][slot]; cb != 0 {
		return cb, nil
	}

	var cb uintptr
	switch arity {
	case 0:
		cb = windows.NewCallback(func() uintptr {
			return result(reg.dispatch(0, slot, [jit.MaxArgs]int32{}))
		})
	case 1:
		cb = windows.NewCallback(func(a uintptr) uintptr {
			return result(reg.dispatch(1, slot, [jit.MaxArgs]int32{int32(a)}))
		})
	case 2:
		cb = windows.NewCallback(func(a, b uintptr) uintptr {
			return result(reg.dispatch(2, slot, [jit.MaxArgs]int32{int32(a), int32(b)}))
		})
	case 3:
		cb = windows.NewCallback(func(a, b, c uintptr) uintptr {
			return result(reg.dispatch(3, slot, [jit.MaxArgs]int32{int32(a), int32(b), int32(c)}))
		})
	default:
		return 0, jit.ErrTooManyArgs
	}
	callbacks[arity][slot] = cb
	return cb, nil
}

func result(v int32) uintptr {
	return uintptr(uint32(v))
}
