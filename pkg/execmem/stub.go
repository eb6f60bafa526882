//go:build !unix && !windows

package execmem

func mapExecutable(size int) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}

func unmapExecutable(mem []byte) error {
	return ErrUnsupportedPlatform
}
