package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/benchlab/benchlab/pkg/experiment"
)

func TestScheduledSlurmIDsDedupsAndSkipsLocal(t *testing.T) {
	exp := &experiment.Experiment{
		Runs: []experiment.Run{
			{ID: 0, SlurmID: "7_0"},
			{ID: 1, SlurmID: "7_1"},
			{ID: 2, SlurmID: "7_0"},
			{ID: 3, SlurmID: "local"},
			{ID: 4},
		},
	}

	assert.Equal(t, []string{"7_0", "7_1"}, scheduledSlurmIDs(exp))
}

func TestSortedProgramOrderFollowsExperimentProgramOrder(t *testing.T) {
	exp := &experiment.Experiment{
		Programs: []experiment.Program{{Name: "b"}, {Name: "a"}, {Name: "c"}},
	}

	got := sortedProgramOrder(exp, []string{"a", "c"})
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestSortedProgramOrderOmitsAbsentPrograms(t *testing.T) {
	exp := &experiment.Experiment{
		Programs: []experiment.Program{{Name: "a"}, {Name: "b"}},
	}

	got := sortedProgramOrder(exp, []string{"b"})
	assert.Equal(t, []string{"b"}, got)
}
