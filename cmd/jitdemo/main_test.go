package main

import (
	"runtime"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ascrivener/jitseed/pkg/config"
	"github.com/ascrivener/jitseed/pkg/execmem"
	"github.com/ascrivener/jitseed/pkg/jit"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []int32
	}{
		{"", nil},
		{"  ", nil},
		{"5,6", []int32{5, 6}},
		{" 1, -2 ,3", []int32{1, -2, 3}},
		{"2147483647", []int32{2147483647}},
	}
	for _, tt := range tests {
		got, err := parseArgs(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseArgs(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}

	for _, bad := range []string{"a", "1,,2", "2147483648", "1,2,3,4"} {
		_, err := parseArgs(bad)
		require.Error(t, err, "input %q", bad)
	}

	_, err := parseArgs("1,2,3,4")
	require.ErrorIs(t, err, jit.ErrTooManyArgs)
}

func TestRunUnknownDemo(t *testing.T) {
	_, err := run(log.NewNopLogger(), execmem.NewProvider(), config.Default(), "nope", nil)
	require.ErrorContains(t, err, "unknown demo")
}

func TestRunRejectsStackDemosOff386(t *testing.T) {
	if runtime.GOARCH == "386" {
		t.Skip("stack demos run on 386")
	}
	_, err := run(log.NewNopLogger(), execmem.NewProvider(), config.Default(), "call", []int32{5, 6})
	require.ErrorContains(t, err, "needs a 386 build")
}
