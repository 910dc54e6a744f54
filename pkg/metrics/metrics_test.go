package metrics

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/internal/osexec"
	"github.com/benchlab/benchlab/pkg/experiment"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWritePlaceholderThenDone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.toml")

	require.NoError(t, WritePlaceholder(path))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.False(t, rec.IsCompleted())

	ru := &osexec.Rusage{UserTime: time.Second, MaxRSSKB: 4096}
	require.NoError(t, WriteDone(path, 2*time.Second, 0, ru))

	rec, err = Load(path)
	require.NoError(t, err)
	assert.True(t, rec.IsCompleted())
	assert.Equal(t, 0, rec.ExitCode)
	assert.Equal(t, int64(2*time.Second/time.Microsecond), rec.WallMicros)
	require.NotNil(t, rec.Rusage)
	assert.Equal(t, int64(4096), rec.Rusage.MaxRSSKB)
}

func TestWriteDoneWithoutRusage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.toml")

	require.NoError(t, WriteDone(path, time.Second, 1, nil))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, rec.Rusage)
	assert.Equal(t, 1, rec.ExitCode)
}

func TestRunLocalExecutesScriptAndWritesRecord(t *testing.T) {
	dir := t.TempDir()

	script := filepath.Join(dir, "echo.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho -n 55\n"), 0o755))

	outDir := filepath.Join(dir, "out")
	metricsDir := filepath.Join(dir, "metrics")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.MkdirAll(metricsDir, 0o755))

	run := experiment.Run{
		ID:          0,
		Program:     0,
		StdoutPath:  filepath.Join(outDir, "r0.stdout"),
		StderrPath:  filepath.Join(outDir, "r0.stderr"),
		MetricsPath: filepath.Join(metricsDir, "r0.toml"),
		WorkDir:     filepath.Join(outDir, "r0"),
	}

	exp := &experiment.Experiment{
		Seq:      1,
		Programs: []experiment.Program{{Name: "echo", Binary: script}},
		Runs:     []experiment.Run{run},
	}

	expPath := filepath.Join(dir, "1.toml")
	require.NoError(t, experiment.Save(dir, exp))

	err := RunLocal(context.Background(), expPath, 0, discardLogger())
	require.NoError(t, err)

	stdout, err := os.ReadFile(run.StdoutPath)
	require.NoError(t, err)
	assert.Equal(t, "55", string(stdout))

	rec, err := Load(run.MetricsPath)
	require.NoError(t, err)
	assert.True(t, rec.IsCompleted())
	assert.Equal(t, 0, rec.ExitCode)
}
