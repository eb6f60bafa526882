//go:build !(cgo && unix) && !windows

package hostfn

func nativeEntry(arity, slot int) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}
