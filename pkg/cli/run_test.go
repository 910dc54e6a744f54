package cli

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

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/runner"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localExperiment(t *testing.T, dir string) *experiment.Experiment {
	t.Helper()

	return &experiment.Experiment{
		Seq:           1,
		Env:           experiment.EnvLocal,
		OutputFolder:  dir,
		MetricsFolder: dir,
		Programs:      []experiment.Program{{Name: "p"}},
		Runs: []experiment.Run{
			{ID: 0, Program: 0, MetricsPath: filepath.Join(dir, "run0.toml")},
			{ID: 1, Program: 0, Parent: intPtr(0), MetricsPath: filepath.Join(dir, "run1.toml")},
		},
	}
}

func intPtr(i int) *int { return &i }

func TestStatusEngineForLocalUsesNilAdapter(t *testing.T) {
	dir := t.TempDir()
	exp := localExperiment(t, dir)

	engine, err := statusEngineFor(exp, "alice", discardLogger())
	require.NoError(t, err)

	statuses, err := engine.Query(context.Background())
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
}

func TestPendingIndicesExcludesRunsWithIncompleteParent(t *testing.T) {
	dir := t.TempDir()
	exp := localExperiment(t, dir)

	pending, err := pendingIndices(context.Background(), exp, "alice", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, pending)
}

func TestPendingIndicesIncludesChildOnceParentCompletes(t *testing.T) {
	dir := t.TempDir()
	exp := localExperiment(t, dir)
	exp.Runs[0].SlurmID = "local"

	require.NoError(t, metrics.WriteDone(exp.Runs[0].MetricsPath, time.Millisecond, 0, nil))

	pending, err := pendingIndices(context.Background(), exp, "alice", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pending)
}

// TestRunLocalDryRunMutatesNothing covers testable property 10: a dry-run
// invocation writes no experiment file, no metrics file, and marks no run
// dispatched.
func TestRunLocalDryRunMutatesNothing(t *testing.T) {
	dir := t.TempDir()
	exp := localExperiment(t, dir)

	err := runLocal(context.Background(), dir, "alice", exp, runner.Options{}, true, discardLogger())
	require.NoError(t, err)

	assert.Empty(t, exp.Runs[0].SlurmID)

	_, statErr := os.Stat(experiment.Path(dir, exp.Seq))
	assert.True(t, os.IsNotExist(statErr))

	_, statErr = os.Stat(exp.Runs[0].MetricsPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyAfterscriptsSkipsRunsWithoutEligibleProgram(t *testing.T) {
	dir := t.TempDir()
	exp := localExperiment(t, dir)

	require.NoError(t, metrics.WriteDone(exp.Runs[0].MetricsPath, time.Millisecond, 0, nil))
	require.NoError(t, metrics.WriteDone(exp.Runs[1].MetricsPath, time.Millisecond, 0, nil))

	err := applyAfterscripts(dir, exp, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, exp.Runs[0].AfterscriptOutput)
}
