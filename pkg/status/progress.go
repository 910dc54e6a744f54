package status

import (
	"context"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// DefaultPollInterval is the blocking poll loop's fixed cadence.
const DefaultPollInterval = 500 * time.Millisecond

// PollUntil blocks, re-querying e at interval, until at least target runs
// are completed or ctx is cancelled, rendering a progress bar to stdout.
func PollUntil(ctx context.Context, e *Engine, target int, interval time.Duration, message string) (map[int]Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	pw := progress.NewWriter()
	pw.SetAutoStop(true)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(interval)
	pw.Style().Visibility.ETA = false

	tracker := &progress.Tracker{Message: message, Total: int64(target)}
	pw.AppendTracker(tracker)

	go pw.Render()

	var (
		statuses map[int]Status
		err      error
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		statuses, err = e.Query(ctx)
		if err != nil {
			return nil, err
		}

		completed := 0

		for _, st := range statuses {
			if st.IsCompleted() {
				completed++
			}
		}

		tracker.SetValue(int64(completed))

		if completed >= target {
			tracker.MarkAsDone()

			break
		}

		select {
		case <-ctx.Done():
			return statuses, ctx.Err()
		case <-ticker.C:
		}
	}

	for pw.IsRenderInProgress() {
		time.Sleep(time.Millisecond)
	}

	return statuses, nil
}
