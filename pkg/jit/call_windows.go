//go:build windows && (386 || amd64)

package jit

import (
	"syscall"
)

// callCode enters code at entry on the system stack. On windows/386
// SyscallN uses stdcall, so the callee pops its own arguments.
func callCode(entry uintptr, args []int32) (int32, error) {
	if len(args) > MaxArgs {
		return 0, ErrTooManyArgs
	}
	var a [MaxArgs]uintptr
	for i, v := range args {
		a[i] = uintptr(uint32(v))
	}
	r1, _, _ := syscall.SyscallN(entry, a[:len(args)]...)
	return int32(uint32(r1)), nil
}
