package analysis

import (
	"sort"

	"github.com/benchlab/benchlab/pkg/experiment"
)

// CactusPoint is one step of a cactus plot line: cumulative_count runs of
// this program completed within duration_micros.
type CactusPoint struct {
	DurationMicros  int64
	CumulativeCount int
}

// CactusData sorts each program's completed-run durations ascending and
// emits cumulative step points, extended to maxTimeMicros so every
// program's line reaches the same right edge (spec §4.9). Programs with no
// completed runs are omitted.
func CactusData(exp *experiment.Experiment, rows []RunView, maxTimeMicros int64) map[string][]CactusPoint {
	byProgram := map[string][]int64{}

	for _, rv := range rows {
		if rv.Metrics == nil || !rv.Metrics.IsCompleted() {
			continue
		}

		name := exp.Programs[rv.Run.Program].Name
		byProgram[name] = append(byProgram[name], rv.Metrics.WallMicros)
	}

	out := make(map[string][]CactusPoint, len(byProgram))

	for name, durations := range byProgram {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		points := make([]CactusPoint, 0, len(durations)+1)
		for i, d := range durations {
			points = append(points, CactusPoint{DurationMicros: d, CumulativeCount: i + 1})
		}

		last := points[len(points)-1]
		if maxTimeMicros > last.DurationMicros {
			points = append(points, CactusPoint{DurationMicros: maxTimeMicros, CumulativeCount: last.CumulativeCount})
		}

		out[name] = points
	}

	return out
}
