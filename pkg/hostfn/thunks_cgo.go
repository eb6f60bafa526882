//go:build cgo && unix

package hostfn

/*
#include "thunks.h"
*/
import "C"

import (
	"github.com/ascrivener/jitseed/pkg/jit"
)

func init() {
	if C.JITSEED_SLOTS != SlotsPerArity {
		panic("hostfn: C thunk table size does not match SlotsPerArity")
	}
}

// nativeEntry returns the address of the C thunk for (arity, slot). Thunks
// are compiled into the binary, so their addresses never change.
func nativeEntry(arity, slot int) (uintptr, error) {
	return uintptr(C.jitseed_thunk_addr(C.int(arity), C.int(slot))), nil
}

//export jitseedHostDispatch
func jitseedHostDispatch(arity, slot, a0, a1, a2 C.int) C.int {
	args := [jit.MaxArgs]int32{int32(a0), int32(a1), int32(a2)}
	return C.int(reg.dispatch(int(arity), int(slot), args))
}
