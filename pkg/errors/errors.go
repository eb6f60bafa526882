package errors

import (
	stderrors "errors"
	"fmt"
)

// AllocationError reports that the operating system refused to hand out
// executable memory. There is no retry or degraded mode behind it.
type AllocationError struct {
	Size  int
	Cause error
}

func (e *AllocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("executable memory allocation of %d bytes failed: %v", e.Size, e.Cause)
	}
	return fmt.Sprintf("executable memory allocation of %d bytes failed", e.Size)
}

func (e *AllocationError) Unwrap() error {
	return e.Cause
}

// IsAllocationError checks if err is, or wraps, an allocation error
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return stderrors.As(err, &ae)
}

// WrapAllocationError wraps an OS error as an allocation error for size bytes
func WrapAllocationError(err error, size int) *AllocationError {
	return &AllocationError{
		Size:  size,
		Cause: err,
	}
}
