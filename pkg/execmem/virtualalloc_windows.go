//go:build windows

package execmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapExecutable reserves and commits size bytes in one VirtualAlloc call with
// PAGE_EXECUTE_READWRITE protection.
func mapExecutable(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return nil, err
	}
	if addr == 0 {
		return nil, windows.ERROR_NOT_ENOUGH_MEMORY
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// unmapExecutable releases the whole reservation. MEM_RELEASE requires a size
// of zero.
func unmapExecutable(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), 0, windows.MEM_RELEASE)
}
