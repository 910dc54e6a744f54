package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/status"
)

func TestCactusDataSortsAndAccumulates(t *testing.T) {
	exp := sampleExperiment()
	rows := []RunView{
		{Run: experiment.Run{Program: 0}, Status: status.Status{FS: status.FSCompleted}, Metrics: &metrics.Record{Status: metrics.StatusDone, WallMicros: 3000}},
		{Run: experiment.Run{Program: 0}, Status: status.Status{FS: status.FSCompleted}, Metrics: &metrics.Record{Status: metrics.StatusDone, WallMicros: 1000}},
		{Run: experiment.Run{Program: 0}, Status: status.Status{FS: status.FSCompleted}, Metrics: &metrics.Record{Status: metrics.StatusDone, WallMicros: 2000}},
	}

	data := CactusData(exp, rows, 5000)
	points := data["sim"]
	require.Len(t, points, 4)

	assert.Equal(t, CactusPoint{DurationMicros: 1000, CumulativeCount: 1}, points[0])
	assert.Equal(t, CactusPoint{DurationMicros: 2000, CumulativeCount: 2}, points[1])
	assert.Equal(t, CactusPoint{DurationMicros: 3000, CumulativeCount: 3}, points[2])
	assert.Equal(t, CactusPoint{DurationMicros: 5000, CumulativeCount: 3}, points[3])
}

func TestCactusDataOmitsProgramsWithNoCompletedRuns(t *testing.T) {
	exp := sampleExperiment()
	rows := []RunView{
		{Run: experiment.Run{Program: 1}, Status: status.Status{FS: status.FSRunning}},
	}

	data := CactusData(exp, rows, 1000)
	assert.Empty(t, data)
}

func TestCactusDataSkipsExtensionWhenMaxEqualsLast(t *testing.T) {
	exp := sampleExperiment()
	rows := []RunView{
		{Run: experiment.Run{Program: 0}, Status: status.Status{FS: status.FSCompleted}, Metrics: &metrics.Record{Status: metrics.StatusDone, WallMicros: 1000}},
	}

	data := CactusData(exp, rows, 1000)
	assert.Len(t, data["sim"], 1)
}
