package status

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/slurm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQuerier struct {
	jobs []slurm.JobState
}

func (f fakeQuerier) ScheduledJobsForUser(context.Context, string) ([]slurm.JobState, error) {
	return f.jobs, nil
}

func TestQueryLocalPendingRunningCompleted(t *testing.T) {
	dir := t.TempDir()

	pendingPath := filepath.Join(dir, "pending.toml")

	runningPath := filepath.Join(dir, "running.toml")
	require.NoError(t, metrics.WritePlaceholder(runningPath))

	donePath := filepath.Join(dir, "done.toml")
	require.NoError(t, metrics.WriteDone(donePath, 0, 1, nil))

	exp := &experiment.Experiment{
		Env: experiment.EnvLocal,
		Runs: []experiment.Run{
			{ID: 0, MetricsPath: pendingPath},
			{ID: 1, MetricsPath: runningPath},
			{ID: 2, MetricsPath: donePath},
		},
	}

	e := New(exp, nil, "", discardLogger())
	statuses, err := e.Query(context.Background())
	require.NoError(t, err)

	assert.Equal(t, FSPending, statuses[0].FS)
	assert.False(t, statuses[0].IsCompleted())
	assert.True(t, statuses[0].IsPending())

	assert.Equal(t, FSRunning, statuses[1].FS)
	assert.False(t, statuses[1].IsCompleted())

	assert.Equal(t, FSCompleted, statuses[2].FS)
	assert.True(t, statuses[2].IsCompleted())
	require.NotNil(t, statuses[2].ExitCode)
	assert.Equal(t, 1, *statuses[2].ExitCode)
	assert.True(t, statuses[2].HasFailed())
}

func TestQuerySlurmMergesJobStates(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "metrics.toml")

	exp := &experiment.Experiment{
		Env:  experiment.EnvSlurm,
		Runs: []experiment.Run{{ID: 0, MetricsPath: metricsPath, SlurmID: "123_0"}},
	}

	q := fakeQuerier{jobs: []slurm.JobState{{SlurmID: "123_0", State: slurm.StateTimeout}}}
	e := New(exp, q, "alice", discardLogger())

	statuses, err := e.Query(context.Background())
	require.NoError(t, err)

	st := statuses[0]
	assert.Equal(t, slurm.StateTimeout, st.Slurm)
	assert.True(t, st.IsCompleted())
	assert.True(t, st.HasFailed())
	assert.True(t, st.IsScheduled())
}

func TestHasFailedFromLabelRerunByDefault(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "metrics.toml")
	require.NoError(t, metrics.WriteDone(metricsPath, 0, 0, nil))

	exp := &experiment.Experiment{
		Env:    experiment.EnvLocal,
		Runs:   []experiment.Run{{ID: 0, MetricsPath: metricsPath, Label: "oom"}},
		Labels: []experiment.Label{{Name: "oom", RerunByDefault: true}},
	}

	e := New(exp, nil, "", discardLogger())
	statuses, err := e.Query(context.Background())
	require.NoError(t, err)

	assert.True(t, statuses[0].HasFailed())
}

func TestIsCompletedFunc(t *testing.T) {
	statuses := map[int]Status{
		0: {RunID: 0, FS: FSCompleted},
		1: {RunID: 1, FS: FSPending},
	}

	isCompleted := IsCompletedFunc(statuses)
	assert.True(t, isCompleted(0))
	assert.False(t, isCompleted(1))
	assert.False(t, isCompleted(2))
}
