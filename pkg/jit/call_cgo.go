//go:build cgo && unix && (386 || amd64)

package jit

/*
#include <stdint.h>

#if defined(__i386__)
#define JIT_STDCALL __attribute__((stdcall))
#else
#define JIT_STDCALL
#endif

typedef int (JIT_STDCALL *jit_fn0)(void);
typedef int (JIT_STDCALL *jit_fn1)(int);
typedef int (JIT_STDCALL *jit_fn2)(int, int);
typedef int (JIT_STDCALL *jit_fn3)(int, int, int);

// Calls happen on the system stack, which generated code may grow freely.
static int jit_call0(uintptr_t entry) { return ((jit_fn0)entry)(); }
static int jit_call1(uintptr_t entry, int a) { return ((jit_fn1)entry)(a); }
static int jit_call2(uintptr_t entry, int a, int b) { return ((jit_fn2)entry)(a, b); }
static int jit_call3(uintptr_t entry, int a, int b, int c) { return ((jit_fn3)entry)(a, b, c); }
*/
import "C"

// callCode enters code at entry through cgo. Arguments are passed on the
// stack right to left and popped by the callee (on 386).
func callCode(entry uintptr, args []int32) (int32, error) {
	e := C.uintptr_t(entry)
	switch len(args) {
	case 0:
		return int32(C.jit_call0(e)), nil
	case 1:
		return int32(C.jit_call1(e, C.int(args[0]))), nil
	case 2:
		return int32(C.jit_call2(e, C.int(args[0]), C.int(args[1]))), nil
	case 3:
		return int32(C.jit_call3(e, C.int(args[0]), C.int(args[1]), C.int(args[2]))), nil
	default:
		return 0, ErrTooManyArgs
	}
}
