//go:build unix

package execmem

import (
	"golang.org/x/sys/unix"
)

// mapExecutable maps size bytes of anonymous, private memory with RWX
// protection. There is no write-then-protect fallback.
func mapExecutable(size int) ([]byte, error) {
	return unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
}

func unmapExecutable(mem []byte) error {
	return unix.Munmap(mem)
}
