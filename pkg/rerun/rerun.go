// Package rerun implements the Rerun/Continue Controller (spec §4.8):
// resuming an experiment's unscheduled runs, and synthesizing fresh runs
// from previously-failed ones.
package rerun

import (
	"fmt"
	"sort"

	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/status"
)

// Continue returns the indices of runs not yet dispatched: the set the
// caller hands to the Chunker (Slurm) or the Local Runner (Local). It does
// not itself submit or run anything — dispatch is environment-specific and
// belongs to the command layer.
func Continue(exp *experiment.Experiment, isCompleted func(runID int) bool) []int {
	return exp.Pending(isCompleted)
}

// Rerun synthesizes a new run for each id in selectedIDs (or, when empty,
// every run statuses reports as failed), appends the new runs to exp, and
// marks each old run's `rerun` field with the new id. A run already marked
// `rerun` is a StateError.
func Rerun(exp *experiment.Experiment, selectedIDs []int, statuses map[int]status.Status) ([]int, error) {
	if len(selectedIDs) == 0 {
		selectedIDs = failedRunIDs(exp, statuses)
	}

	if len(selectedIDs) == 0 {
		return nil, base.Wrap(base.KindState, "rerun", fmt.Errorf("no failed runs to rerun"), "")
	}

	ids := append([]int(nil), selectedIDs...)
	sort.Ints(ids)

	nextID := nextRunID(exp)

	newIDs := make([]int, 0, len(ids))

	for _, id := range ids {
		old, idx := exp.RunByID(id)
		if old == nil {
			return nil, base.Wrap(base.KindState, "rerun", fmt.Errorf("run %d does not exist", id), "")
		}

		if old.Rerun != nil {
			return nil, base.Wrap(base.KindState, "rerun", fmt.Errorf("run %d was already rerun as run %d", id, *old.Rerun), "select a different run")
		}

		newID := nextID
		nextID++

		limits := exp.Programs[old.Program].Limits

		stdoutPath, stderrPath, metricsPath, workDir := experiment.RunPaths(exp.Seq, old.Program, newID, exp.OutputFolder, exp.MetricsFolder)

		newRun := experiment.Run{
			ID:                 newID,
			Program:            old.Program,
			Input:              old.Input,
			StdoutPath:         stdoutPath,
			StderrPath:         stderrPath,
			MetricsPath:        metricsPath,
			WorkDir:            workDir,
			Group:              old.Group,
			Limits:             limits,
			Parent:             old.Parent,
			GeneratedFromInput: old.GeneratedFromInput,
		}

		exp.Runs = append(exp.Runs, newRun)
		exp.Runs[idx].Rerun = &newID

		newIDs = append(newIDs, newID)
	}

	return newIDs, nil
}

func failedRunIDs(exp *experiment.Experiment, statuses map[int]status.Status) []int {
	var ids []int

	for _, r := range exp.Runs {
		if st, ok := statuses[r.ID]; ok && st.HasFailed() {
			ids = append(ids, r.ID)
		}
	}

	return ids
}

func nextRunID(exp *experiment.Experiment) int {
	max := -1

	for _, r := range exp.Runs {
		if r.ID > max {
			max = r.ID
		}
	}

	return max + 1
}
