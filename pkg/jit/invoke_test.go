//go:build (cgo && unix && (386 || amd64)) || (windows && (386 || amd64))

package jit_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ascrivener/jitseed/pkg/execmem"
	"github.com/ascrivener/jitseed/pkg/jit"
	"github.com/ascrivener/jitseed/pkg/x86"
)

// TestInvokeAnswer runs mov eax, 42; ret. The encoding is identical in
// 32-bit and 64-bit mode, so it runs on both 386 and amd64 hosts.
func TestInvokeAnswer(t *testing.T) {
	a := x86.NewAssembler()
	a.MovEAXImm32(42)
	a.Ret()

	buf, err := jit.New(a.Bytes())
	require.NoError(t, err)
	defer buf.Close()

	t.Logf("code at %#x, %d bytes in a %d byte region", buf.Addr(), buf.Len(), buf.RegionSize())

	for i := 0; i < 3; i++ {
		got, err := buf.Invoke()
		require.NoError(t, err)
		require.Equal(t, int32(42), got)
	}
}

func TestInvokeNegative(t *testing.T) {
	buf, err := jit.New(jit.ConstProgram(-12345))
	require.NoError(t, err)
	defer buf.Close()

	got, err := buf.Invoke()
	require.NoError(t, err)
	require.Equal(t, int32(-12345), got)
}

// TestSameCodeTwice checks that two buffers built from one byte sequence do
// not share memory and run independently.
func TestSameCodeTwice(t *testing.T) {
	code := jit.ConstProgram(42)

	first, err := jit.New(code)
	require.NoError(t, err)
	defer first.Close()
	second, err := jit.New(code)
	require.NoError(t, err)
	defer second.Close()

	firstEnd := first.Addr() + uintptr(first.RegionSize())
	secondEnd := second.Addr() + uintptr(second.RegionSize())
	require.True(t, firstEnd <= second.Addr() || secondEnd <= first.Addr(), "regions overlap")

	got, err := first.Invoke()
	require.NoError(t, err)
	require.Equal(t, int32(42), got)

	got, err = second.Invoke()
	require.NoError(t, err)
	require.Equal(t, int32(42), got)

	// Closing one leaves the other intact.
	require.NoError(t, first.Close())
	got, err = second.Invoke()
	require.NoError(t, err)
	require.Equal(t, int32(42), got)
}

func TestCloseReturnsMemory(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	p := execmem.NewProvider(execmem.WithRegisterer(reg))

	buf, err := jit.FromBytes(p, jit.ConstProgram(1))
	require.NoError(t, err)

	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close())

	require.Equal(t, 1.0, gatheredCounter(t, reg, "jit_execmem_releases_total"))
	require.Equal(t, 0.0, gatheredGauge(t, reg, "jit_execmem_reserved_bytes"))

	_, err = buf.Invoke()
	require.ErrorIs(t, err, jit.ErrClosed)
}

func gatheredMetric(t *testing.T, reg prometheus.Gatherer, name string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Len(t, mf.GetMetric(), 1, "metric %s", name)
		return mf.GetMetric()[0]
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func gatheredCounter(t *testing.T, reg prometheus.Gatherer, name string) float64 {
	t.Helper()
	return gatheredMetric(t, reg, name).GetCounter().GetValue()
}

func gatheredGauge(t *testing.T, reg prometheus.Gatherer, name string) float64 {
	t.Helper()
	return gatheredMetric(t, reg, name).GetGauge().GetValue()
}
