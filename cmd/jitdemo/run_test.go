//go:build (cgo && unix && (386 || amd64)) || (windows && (386 || amd64))

package main

import (
	"bytes"
	"errors"
	"runtime"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/ascrivener/jitseed/pkg/config"
	"github.com/ascrivener/jitseed/pkg/execmem"
	"github.com/ascrivener/jitseed/pkg/hostfn"
)

func TestRunAnswer(t *testing.T) {
	got, err := run(log.NewNopLogger(), execmem.NewProvider(), config.Default(), "answer", nil)
	require.NoError(t, err)
	require.Equal(t, int32(42), got)
}

func TestRunStackDemos(t *testing.T) {
	if runtime.GOARCH != "386" {
		t.Skip("stack demos need a 386 build")
	}

	got, err := run(log.NewNopLogger(), execmem.NewProvider(), config.Default(), "call", []int32{5, 6})
	require.NoError(t, err)
	require.Equal(t, int32(11), got)

	got, err = run(log.NewNopLogger(), execmem.NewProvider(), config.Default(), "frame", []int32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, int32(6), got)
}

// TestRegisterSumCleanupWarns checks that a failing unregister is logged
// instead of dropped.
func TestRegisterSumCleanupWarns(t *testing.T) {
	var out bytes.Buffer
	logger := log.NewLogfmtLogger(&out)

	target, cleanup, err := registerSum(logger, 2)
	if errors.Is(err, hostfn.ErrAddressTooWide) {
		t.Skip("host entry points are mapped above 4GiB on this build")
	}
	require.NoError(t, err)
	require.NotZero(t, target)

	cleanup()
	require.Empty(t, out.String())

	// The target is gone, so a second cleanup has nothing to free.
	cleanup()
	require.Contains(t, out.String(), "level=warn")
	require.Contains(t, out.String(), "failed to unregister host function")
	require.Contains(t, out.String(), hostfn.ErrUnknownTarget.Error())
}
