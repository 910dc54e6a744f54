package afterscript

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/experiment"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEligible(t *testing.T) {
	prog := experiment.Program{Afterscript: "/bin/true"}
	run := experiment.Run{}

	assert.True(t, Eligible(prog, run, 0, true))
	assert.False(t, Eligible(prog, run, 1, true))
	assert.False(t, Eligible(prog, run, 0, false))
	assert.False(t, Eligible(experiment.Program{}, run, 0, true))

	run.AfterscriptOutput = "already ran"
	assert.False(t, Eligible(prog, run, 0, true))
}

// TestRunAssignsHigherPriorityLabelOnTie covers scenario S6.
func TestRunAssignsHigherPriorityLabelOnTie(t *testing.T) {
	dir := t.TempDir()

	script := filepath.Join(dir, "after.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'hello world'\n"), 0o755))

	stdoutPath := filepath.Join(dir, "run.stdout")
	require.NoError(t, os.WriteFile(stdoutPath, []byte("irrelevant"), 0o644))

	prog := experiment.Program{Afterscript: script}
	run := experiment.Run{ID: 1, StdoutPath: stdoutPath, WorkDir: dir}

	labels := []experiment.Label{
		{Name: "A", Regex: "hello", Priority: 1},
		{Name: "B", Regex: "world", Priority: 2},
	}

	got, err := Run(context.Background(), prog, run, labels, true, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "hello world", got.AfterscriptOutput)
	assert.Equal(t, "B", got.Label)
}

func TestRunRejectsNonExecutableAfterscript(t *testing.T) {
	dir := t.TempDir()

	script := filepath.Join(dir, "after.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o644))

	prog := experiment.Program{Afterscript: script}
	run := experiment.Run{StdoutPath: filepath.Join(dir, "run.stdout"), WorkDir: dir}

	_, err := Run(context.Background(), prog, run, nil, false, discardLogger())
	assert.Error(t, err)
}

func TestAssignLabelNoMatch(t *testing.T) {
	label, warning := assignLabel("nothing matches here", []experiment.Label{{Name: "A", Regex: "zzz", Priority: 1}})
	assert.Empty(t, label)
	assert.Empty(t, warning)
}
