package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/pkg/afterscript"
	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/chunk"
	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/runner"
	"github.com/benchlab/benchlab/pkg/slurm"
	"github.com/benchlab/benchlab/pkg/status"
)

var errNothingPending = errors.New("no pending runs")

// pendingIndices queries current status and returns the run indices the
// Chunker/Local Runner may dispatch next (spec §4.2 step 1, §4.8 Continue).
func pendingIndices(ctx context.Context, exp *experiment.Experiment, user string, logger *slog.Logger) ([]int, error) {
	engine, err := statusEngineFor(exp, user, logger)
	if err != nil {
		return nil, err
	}

	statuses, err := engine.Query(ctx)
	if err != nil {
		return nil, err
	}

	return exp.Pending(status.IsCompletedFunc(statuses)), nil
}

// runLocal dispatches every pending run through the Local Runner, marking
// each dispatched (slurm_id = "local") before handing off so a concurrent
// `status`/`continue` never double-schedules it, then applies eligible
// afterscripts to whatever completed. In dry-run mode (testable property
// 10) it reports what would be dispatched and returns without writing the
// experiment file, writing a metrics file, or spawning a single child.
func runLocal(ctx context.Context, folder, user string, exp *experiment.Experiment, opts runner.Options, dryRun bool, logger *slog.Logger) error {
	pendingIdx, err := pendingIndices(ctx, exp, user, logger)
	if err != nil {
		return err
	}

	if len(pendingIdx) == 0 {
		return base.Wrap(base.KindState, "run local", errNothingPending, "")
	}

	acc := fileops.New(folder, dryRun, logger)
	if acc.DryRun {
		acc.Logger.Info("dry-run: would dispatch runs via local runner", "count", len(pendingIdx))

		return nil
	}

	for _, idx := range pendingIdx {
		exp.Runs[idx].SlurmID = "local"
	}

	if err := experiment.Save(folder, exp); err != nil {
		return err
	}

	path := experiment.Path(folder, exp.Seq)

	if _, err := runner.Run(ctx, path, pendingIdx, 0, opts, logger); err != nil {
		return err
	}

	reloaded, err := experiment.LoadPath(path)
	if err != nil {
		return err
	}

	*exp = *reloaded

	return applyAfterscripts(folder, exp, logger)
}

// runSlurm cuts the pending run set into chunks and submits one Slurm array
// job per chunk. In dry-run mode (testable property 10) it reports the
// chunk plan and returns without submitting a single array job or writing
// the experiment file.
func runSlurm(ctx context.Context, folder, user string, exp *experiment.Experiment, chunkLenOverride int, dryRun bool, logger *slog.Logger) error {
	pendingIdx, err := pendingIndices(ctx, exp, user, logger)
	if err != nil {
		return err
	}

	if len(pendingIdx) == 0 {
		return base.Wrap(base.KindState, "run slurm", errNothingPending, "")
	}

	limitsByID := func(id int) experiment.ResourceLimits {
		r, _ := exp.RunByID(id)

		return r.Limits
	}

	pendingIDs := make([]int, len(pendingIdx))
	for i, idx := range pendingIdx {
		pendingIDs[i] = exp.Runs[idx].ID
	}

	chunkLen := chunkLenOverride
	maxArrays := 0

	if exp.Slurm != nil {
		if chunkLen <= 0 {
			chunkLen = exp.Slurm.ChunkLength
		}

		maxArrays = exp.Slurm.MaxArrays
	}

	chunks, err := chunk.Build(pendingIDs, limitsByID, chunkLen, maxArrays)
	if err != nil {
		return err
	}

	acc := fileops.New(folder, dryRun, logger)
	if acc.DryRun {
		acc.Logger.Info("dry-run: would submit slurm array jobs", "chunks", len(chunks), "runs", len(pendingIdx))

		return nil
	}

	adapter, err := slurm.New(exp.Slurm, exp.Wrapper, logger)
	if err != nil {
		return err
	}

	if _, err := adapter.Version(ctx); err != nil {
		return err
	}

	scriptDir := exp.OutputFolder

	for _, c := range chunks {
		batchID, err := adapter.SubmitArray(ctx, c, experiment.Path(folder, exp.Seq), scriptDir)
		if err != nil {
			return err
		}

		slurm.AssignSlurmIDs(exp.Runs, c, batchID)
		exp.Chunks = append(exp.Chunks, c)

		logger.Info("submitted slurm array", "chunk", c.ID, "batch_id", batchID, "runs", len(c.Runs))
	}

	return experiment.Save(folder, exp)
}

// applyAfterscripts runs the declared afterscript for every run that
// completed successfully since the last pass and has not already had one
// run (spec §4.7), then persists the resulting labels.
func applyAfterscripts(folder string, exp *experiment.Experiment, logger *slog.Logger) error {
	changed := false

	for i := range exp.Runs {
		run := exp.Runs[i]
		prog := exp.Programs[run.Program]

		rec, err := metrics.Load(run.MetricsPath)
		if err != nil {
			continue
		}

		if !afterscript.Eligible(prog, run, rec.ExitCode, rec.IsCompleted()) {
			continue
		}

		updated, err := afterscript.Run(context.Background(), prog, run, exp.Labels, true, logger)
		if err != nil {
			logger.Warn("afterscript failed", "run", run.ID, "err", err)

			continue
		}

		exp.Runs[i] = updated
		changed = true
	}

	if !changed {
		return nil
	}

	return experiment.Save(folder, exp)
}

// statusEngineFor builds a status.Engine for exp, wiring a Slurm adapter
// only when the experiment targets Slurm.
func statusEngineFor(exp *experiment.Experiment, user string, logger *slog.Logger) (*status.Engine, error) {
	if exp.Env != experiment.EnvSlurm {
		return status.New(exp, nil, user, logger), nil
	}

	adapter, err := slurm.New(exp.Slurm, exp.Wrapper, logger)
	if err != nil {
		return nil, err
	}

	return status.New(exp, adapter, user, logger), nil
}
