package slurm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/experiment"
)

func TestParseSbatchOutput(t *testing.T) {
	id, err := parseSbatchOutput("Submitted batch job 98765\n")
	require.NoError(t, err)
	assert.Equal(t, "98765", id)
}

func TestParseSbatchOutputRejectsEmpty(t *testing.T) {
	_, err := parseSbatchOutput("  \n")
	assert.Error(t, err)
}

func TestNormalizeState(t *testing.T) {
	cases := map[string]string{
		"PENDING":       StatePending,
		"RUNNING":       StateRunning,
		"COMPLETED":     StateSuccess,
		"CANCELLED+":    StateCancelled,
		"TIMEOUT":       StateTimeout,
		"OUT_OF_MEMORY": StateOutOfMemory,
		"NODE_FAIL":     StateNodeFail,
		"BOOT_FAIL":     StateBootFail,
		"DEADLINE":      StateDeadline,
		"PREEMPTED":     StatePreempted,
		"FAILED":        StateSlurmFail,
		"SOMETHING_NEW": StateSlurmFail,
	}

	for raw, want := range cases {
		assert.Equal(t, want, normalizeState(raw), "raw=%s", raw)
	}
}

func TestIsTerminalFailureAndIsTerminal(t *testing.T) {
	assert.True(t, IsTerminalFailure(StateTimeout))
	assert.False(t, IsTerminalFailure(StateRunning))

	assert.True(t, IsTerminal(StateSuccess))
	assert.True(t, IsTerminal(StateCancelled))
	assert.False(t, IsTerminal(StatePending))
	assert.False(t, IsTerminal(StateRunning))
}

func TestAssignSlurmIDs(t *testing.T) {
	runs := []experiment.Run{{ID: 10}, {ID: 11}, {ID: 12}}
	chunk := experiment.Chunk{ID: "chunk-a", Runs: []int{11, 10, 12}}

	AssignSlurmIDs(runs, chunk, "555")

	byID := map[int]string{}
	for _, r := range runs {
		byID[r.ID] = r.SlurmID
	}

	assert.Equal(t, "555_0", byID[11])
	assert.Equal(t, "555_1", byID[10])
	assert.Equal(t, "555_2", byID[12])
}
