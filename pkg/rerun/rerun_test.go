package rerun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/status"
)

func buildExperiment() *experiment.Experiment {
	return &experiment.Experiment{
		Seq:           1,
		OutputFolder:  "/out",
		MetricsFolder: "/metrics",
		Programs:      []experiment.Program{{Name: "p", Limits: experiment.ResourceLimits{CPUs: 2}}},
		Runs: []experiment.Run{
			{ID: 0, Program: 0, Input: experiment.Input{File: "a"}},
			{ID: 1, Program: 0, Input: experiment.Input{File: "b"}},
			{ID: 2, Program: 0, Input: experiment.Input{File: "c"}},
		},
	}
}

func failedStatuses() map[int]status.Status {
	return map[int]status.Status{
		0: {RunID: 0, FS: status.FSCompleted, ExitCode: intPtr(1)},
		1: {RunID: 1, FS: status.FSCompleted, ExitCode: intPtr(0)},
		2: {RunID: 2, FS: status.FSCompleted, ExitCode: intPtr(1)},
	}
}

func intPtr(i int) *int { return &i }

// TestRerunDefaultsToFailedRuns covers scenario S5.
func TestRerunDefaultsToFailedRuns(t *testing.T) {
	exp := buildExperiment()

	newIDs, err := Rerun(exp, nil, failedStatuses())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, newIDs)

	run0, _ := exp.RunByID(0)
	run1, _ := exp.RunByID(1)
	run2, _ := exp.RunByID(2)

	require.NotNil(t, run0.Rerun)
	assert.Equal(t, 3, *run0.Rerun)
	assert.Nil(t, run1.Rerun)
	require.NotNil(t, run2.Rerun)
	assert.Equal(t, 4, *run2.Rerun)

	_, err = Rerun(exp, []int{0}, nil)
	assert.Error(t, err)
}

// TestRerunLinkage covers testable property 8.
func TestRerunLinkage(t *testing.T) {
	exp := buildExperiment()
	parent := 7
	old, _ := exp.RunByID(0)
	old.Parent = &parent
	exp.Runs[0] = *old

	newIDs, err := Rerun(exp, []int{0}, nil)
	require.NoError(t, err)
	require.Len(t, newIDs, 1)

	oldRun, _ := exp.RunByID(0)
	newRun, _ := exp.RunByID(newIDs[0])

	require.NotNil(t, oldRun.Rerun)
	assert.Equal(t, newIDs[0], *oldRun.Rerun)

	require.NotNil(t, newRun.Parent)
	assert.Equal(t, 7, *newRun.Parent)
	assert.Equal(t, oldRun.Program, newRun.Program)
	assert.True(t, oldRun.Input.Equal(newRun.Input))
	assert.Nil(t, newRun.Rerun)
}

func TestRerunUsesProgramsCurrentLimits(t *testing.T) {
	exp := buildExperiment()
	exp.Programs[0].Limits = experiment.ResourceLimits{CPUs: 16, MemPerCPU: "8G"}

	newIDs, err := Rerun(exp, []int{1}, nil)
	require.NoError(t, err)

	newRun, _ := exp.RunByID(newIDs[0])
	assert.Equal(t, experiment.ResourceLimits{CPUs: 16, MemPerCPU: "8G"}, newRun.Limits)
}

func TestRerunRejectsAlreadyRerun(t *testing.T) {
	exp := buildExperiment()

	_, err := Rerun(exp, []int{0}, nil)
	require.NoError(t, err)

	_, err = Rerun(exp, []int{0}, nil)
	assert.Error(t, err)
}

func TestRerunRejectsNoFailures(t *testing.T) {
	exp := buildExperiment()

	_, err := Rerun(exp, nil, map[int]status.Status{
		0: {RunID: 0, FS: status.FSCompleted, ExitCode: intPtr(0)},
	})
	assert.Error(t, err)
}

func TestContinueReturnsPendingIndices(t *testing.T) {
	exp := buildExperiment()
	exp.Runs[1].SlurmID = "local" // already dispatched/completed

	pending := Continue(exp, func(int) bool { return false })
	assert.ElementsMatch(t, []int{0, 2}, pending)
}
