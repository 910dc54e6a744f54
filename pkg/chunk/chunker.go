// Package chunk partitions pending runs into homogeneous Slurm arrays
// (spec §4.2).
package chunk

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/experiment"
)

// group is a maximal contiguous run of pending run ids sharing identical
// resource limits.
type group struct {
	limits experiment.ResourceLimits
	ids    []int
}

// Build partitions pendingIDs (already selected by experiment.Pending, in
// ascending id order) into fixed-size chunks. Groups are ordered largest
// first so the biggest, most-packed work submits first; chunks are cut from
// each group in its original order, so a group's remainder (shorter than L)
// always trails that group's full chunks. When arrayCap > 0, only the first
// arrayCap chunks are returned; the rest wait for the next `continue`.
func Build(pendingIDs []int, limitsByID func(id int) experiment.ResourceLimits, chunkLen, arrayCap int) ([]experiment.Chunk, error) {
	if len(pendingIDs) == 0 {
		return nil, base.Wrap(base.KindState, "chunk", fmt.Errorf("nothing to schedule"), "")
	}

	if chunkLen <= 0 {
		chunkLen = len(pendingIDs)
	}

	groups := partitionByLimits(pendingIDs, limitsByID)

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].ids) != len(groups[j].ids) {
			return len(groups[i].ids) > len(groups[j].ids)
		}

		return limitsKey(groups[i].limits) > limitsKey(groups[j].limits)
	})

	var chunks []experiment.Chunk

	for _, g := range groups {
		for start := 0; start < len(g.ids); start += chunkLen {
			end := start + chunkLen
			if end > len(g.ids) {
				end = len(g.ids)
			}

			chunks = append(chunks, experiment.Chunk{
				ID:     uuid.NewString(),
				Runs:   append([]int(nil), g.ids[start:end]...),
				Limits: g.limits,
			})
		}
	}

	if arrayCap > 0 && len(chunks) > arrayCap {
		chunks = chunks[:arrayCap]
	}

	return chunks, nil
}

// partitionByLimits groups pendingIDs (assumed already in ascending id
// order) into maximal contiguous runs of identical limits.
func partitionByLimits(pendingIDs []int, limitsByID func(id int) experiment.ResourceLimits) []group {
	var groups []group

	for _, id := range pendingIDs {
		lim := limitsByID(id)

		if len(groups) > 0 && groups[len(groups)-1].limits.Equal(lim) {
			groups[len(groups)-1].ids = append(groups[len(groups)-1].ids, id)

			continue
		}

		groups = append(groups, group{limits: lim, ids: []int{id}})
	}

	return groups
}

func limitsKey(l experiment.ResourceLimits) string {
	return fmt.Sprintf("%03d|%s|%s", l.CPUs, l.MemPerCPU, l.WallTime)
}
