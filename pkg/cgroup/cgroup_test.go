package cgroup

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/experiment"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"1024":  1024,
		"4K":    4 * 1024,
		"512M":  512 * 1024 * 1024,
		"2G":    2 * 1024 * 1024 * 1024,
		"2g":    2 * 1024 * 1024 * 1024,
	}

	for in, want := range cases {
		got, err := parseSize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	_, err := parseSize("not-a-size")
	assert.Error(t, err)
}

func TestTotalMemBytesMultipliesByCPUs(t *testing.T) {
	bytes, ok := totalMemBytes(experiment.ResourceLimits{CPUs: 4, MemPerCPU: "1G"})
	require.True(t, ok)
	assert.Equal(t, int64(4*1024*1024*1024), bytes)
}

func TestTotalMemBytesAbsentWhenUnset(t *testing.T) {
	_, ok := totalMemBytes(experiment.ResourceLimits{CPUs: 4})
	assert.False(t, ok)
}

func TestApplyDegradesGracefully(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := Apply("test-run", experiment.ResourceLimits{CPUs: 1, MemPerCPU: "256M"}, logger)
	require.NotNil(t, h)

	h.AddProc(1)
	h.Close()
}
