package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/procfs"

	"github.com/benchlab/benchlab/internal/osexec"
	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/cgroup"
	"github.com/benchlab/benchlab/pkg/experiment"
)

// Run executes the Slurm-invoked form of the wrapper protocol: resolve the
// run via chunks[chunkID].runs[subID], then execute it (spec §4.3 step 2).
func Run(ctx context.Context, experimentPath, chunkID string, subID int, logger *slog.Logger) error {
	exp, err := experiment.LoadPath(experimentPath)
	if err != nil {
		return err
	}

	chunk := exp.ChunkByID(chunkID)
	if chunk == nil {
		return base.Wrap(base.KindWrapper, "resolve chunk", fmt.Errorf("unknown chunk %q", chunkID), "")
	}

	if subID < 0 || subID >= len(chunk.Runs) {
		return base.Wrap(base.KindWrapper, "resolve run", fmt.Errorf("sub_id %d out of range for chunk %q (%d runs)", subID, chunkID, len(chunk.Runs)), "")
	}

	run, _ := exp.RunByID(chunk.Runs[subID])
	if run == nil {
		return base.Wrap(base.KindWrapper, "resolve run", fmt.Errorf("chunk %q references missing run id %d", chunkID, chunk.Runs[subID]), "")
	}

	return execute(ctx, exp.Programs[run.Program], run, logger)
}

// RunLocal executes the Local form: the run is addressed directly by index.
func RunLocal(ctx context.Context, experimentPath string, runIdx int, logger *slog.Logger) error {
	exp, err := experiment.LoadPath(experimentPath)
	if err != nil {
		return err
	}

	if runIdx < 0 || runIdx >= len(exp.Runs) {
		return base.Wrap(base.KindWrapper, "resolve run", fmt.Errorf("run index %d out of range (%d runs)", runIdx, len(exp.Runs)), "")
	}

	run := &exp.Runs[runIdx]

	return execute(ctx, exp.Programs[run.Program], run, logger)
}

// execute is the shared core of the wrapper protocol (spec §4.3 steps 3-6).
func execute(ctx context.Context, prog experiment.Program, run *experiment.Run, logger *slog.Logger) error {
	if err := WritePlaceholder(run.MetricsPath); err != nil {
		return err
	}

	if err := os.MkdirAll(run.WorkDir, 0o755); err != nil {
		return base.Wrap(base.KindWrapper, "create work dir", err, "")
	}

	cg := cgroup.Apply(fmt.Sprintf("run-%d", run.ID), run.Limits, logger)
	defer cg.Close()

	var stdin *os.File

	if run.Input.File != "" {
		f, err := os.Open(run.Input.File)
		if err != nil {
			return base.Wrap(base.KindWrapper, "open stdin", err, "")
		}
		defer f.Close()

		stdin = f
	} else {
		devnull, err := os.Open(os.DevNull)
		if err != nil {
			return base.Wrap(base.KindWrapper, "open stdin", err, "")
		}
		defer devnull.Close()

		stdin = devnull
	}

	stdout, err := os.OpenFile(run.StdoutPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return base.Wrap(base.KindWrapper, "open stdout", err, "")
	}
	defer stdout.Close()

	stderr, err := os.OpenFile(run.StderrPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return base.Wrap(base.KindWrapper, "open stderr", err, "")
	}
	defer stderr.Close()

	args := append(append([]string(nil), prog.Arguments...), run.Input.Arguments...)

	result, err := osexec.Spawn(ctx, osexec.SpawnSpec{
		Path:   prog.Binary,
		Args:   args,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Dir:    run.WorkDir,
	})
	if err != nil {
		return base.Wrap(base.KindWrapper, "spawn target", err, "")
	}

	cg.AddProc(result.PID)

	if result.Rusage != nil {
		supplementIO(result.PID, result.Rusage, logger)
	}

	if err := WriteDone(run.MetricsPath, result.Wall, result.ExitCode, result.Rusage); err != nil {
		return err
	}

	return nil
}

// supplementIO folds /proc/<pid>/io counters into rusage's block I/O fields
// when they read as zero, which unix.Rusage leaves unpopulated on some
// kernels. Best-effort: the /proc entry may already be gone by the time we
// read it.
func supplementIO(pid int, ru *osexec.Rusage, logger *slog.Logger) {
	if ru.BlockInputOps != 0 || ru.BlockOutputOps != 0 {
		return
	}

	proc, err := procfs.NewProc(pid)
	if err != nil {
		logger.Debug("procfs unavailable for I/O supplement", "pid", pid, "err", err)

		return
	}

	io, err := proc.IO()
	if err != nil {
		logger.Debug("could not read /proc/pid/io", "pid", pid, "err", err)

		return
	}

	const blockSize = 512

	ru.BlockInputOps = int64(io.ReadBytes / blockSize)
	ru.BlockOutputOps = int64(io.WriteBytes / blockSize)
}
