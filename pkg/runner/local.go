// Package runner implements the Local Runner: a bounded concurrent
// dispatcher for Metrics Wrapper invocations, with a sequential fallback and
// a safety cap (spec §4.4).
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/metrics"
)

// Options configures one Local Runner invocation.
type Options struct {
	NumThreads int  // 0 => unbounded
	Force      bool // bypass the safety limit
	Sequential bool // run one at a time, abort on first failure
}

// Run dispatches metrics.RunLocal for each run index and returns
// priorCompleted plus the count that completed successfully in this call.
func Run(ctx context.Context, experimentPath string, runIndices []int, priorCompleted int, opts Options, logger *slog.Logger) (int, error) {
	if len(runIndices) == 0 {
		return priorCompleted, base.Wrap(base.KindState, "local run", fmt.Errorf("nothing to schedule"), "")
	}

	if len(runIndices) > base.SafetyLimit && !opts.Force && !opts.Sequential {
		return priorCompleted, base.Wrap(base.KindState, "local run",
			fmt.Errorf("%d runs exceeds the safety limit of %d", len(runIndices), base.SafetyLimit),
			"pass --force or --sequential to proceed anyway")
	}

	if opts.Sequential {
		return runSequential(ctx, experimentPath, runIndices, priorCompleted, logger)
	}

	return runConcurrent(ctx, experimentPath, runIndices, priorCompleted, opts.NumThreads, logger)
}

func runSequential(ctx context.Context, experimentPath string, runIndices []int, priorCompleted int, logger *slog.Logger) (int, error) {
	completed := priorCompleted

	for _, idx := range runIndices {
		if err := metrics.RunLocal(ctx, experimentPath, idx, logger); err != nil {
			return completed, base.Wrap(base.KindWrapper, fmt.Sprintf("sequential run %d", idx), err, "aborting remaining runs")
		}

		completed++
	}

	return completed, nil
}

func runConcurrent(ctx context.Context, experimentPath string, runIndices []int, priorCompleted, numThreads int, logger *slog.Logger) (int, error) {
	weight := int64(numThreads)
	if numThreads <= 0 {
		weight = math.MaxInt64
	}

	sem := semaphore.NewWeighted(weight)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed = priorCompleted
		firstErr  error
	)

	for _, idx := range runIndices {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()

			break
		}

		wg.Add(1)

		go func(runIdx int) {
			defer wg.Done()
			defer sem.Release(1)

			if err := metrics.RunLocal(ctx, experimentPath, runIdx, logger); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("run %d: %w", runIdx, err)
				}
				mu.Unlock()

				return
			}

			mu.Lock()
			completed++
			mu.Unlock()
		}(idx)
	}

	wg.Wait()

	if firstErr != nil {
		return completed, base.Wrap(base.KindWrapper, "local run", firstErr, "")
	}

	return completed, nil
}
