//go:build !(cgo && unix && (386 || amd64)) && !(windows && (386 || amd64))

package jit

func callCode(entry uintptr, args []int32) (int32, error) {
	return 0, ErrUnsupportedPlatform
}
