// Package status derives each run's composite state from the metrics file,
// an optional Slurm query, and afterscript/label state (spec §4.6). Every
// query is a pull: nothing here is cached across calls except what the
// caller explicitly persists back onto the experiment.
package status

import (
	"context"
	"log/slog"

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/slurm"
)

// FSState is the filesystem-observable lifecycle of one run.
type FSState int

// FS states, per spec §4.6.
const (
	FSPending FSState = iota
	FSRunning
	FSCompleted
)

func (s FSState) String() string {
	switch s {
	case FSPending:
		return "Pending"
	case FSRunning:
		return "Running"
	case FSCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Status is one run's composite state.
type Status struct {
	RunID               int
	FS                  FSState
	ExitCode            *int
	Slurm               string // "" unless the experiment env is Slurm and a job state was found
	Label               string
	LabelRerunByDefault bool
}

// IsCompleted reports FS completion or a terminal Slurm state.
func (s Status) IsCompleted() bool {
	return s.FS == FSCompleted || slurm.IsTerminal(s.Slurm)
}

// HasFailed reports a nonzero FS exit code, a terminal Slurm failure, or a
// label assigned with rerun_by_default set.
func (s Status) HasFailed() bool {
	if s.ExitCode != nil && *s.ExitCode != 0 {
		return true
	}

	if slurm.IsTerminalFailure(s.Slurm) {
		return true
	}

	return s.Label != "" && s.LabelRerunByDefault
}

// IsScheduled reports whether a Slurm job state is present for the run.
func (s Status) IsScheduled() bool {
	return s.Slurm != ""
}

// IsPending reports neither scheduled nor FS-completed.
func (s Status) IsPending() bool {
	return !s.IsScheduled() && s.FS != FSCompleted
}

// SlurmQuerier is the subset of *slurm.Adapter the engine needs, so tests can
// supply a fake without shelling out to sacct.
type SlurmQuerier interface {
	ScheduledJobsForUser(ctx context.Context, user string) ([]slurm.JobState, error)
}

// Engine computes Status for every run in one experiment.
type Engine struct {
	exp     *experiment.Experiment
	adapter SlurmQuerier
	user    string
	logger  *slog.Logger
}

// New builds an Engine. adapter may be nil for a Local experiment.
func New(exp *experiment.Experiment, adapter SlurmQuerier, user string, logger *slog.Logger) *Engine {
	return &Engine{exp: exp, adapter: adapter, user: user, logger: logger}
}

// Query re-reads every run's metrics file and, for a Slurm experiment,
// re-queries the cluster once for all runs.
func (e *Engine) Query(ctx context.Context) (map[int]Status, error) {
	jobStates := map[string]string{}

	if e.exp.Env == experiment.EnvSlurm && e.adapter != nil {
		jobs, err := e.adapter.ScheduledJobsForUser(ctx, e.user)
		if err != nil {
			return nil, err
		}

		for _, j := range jobs {
			jobStates[j.SlurmID] = j.State
		}
	}

	labelByName := make(map[string]experiment.Label, len(e.exp.Labels))
	for _, l := range e.exp.Labels {
		labelByName[l.Name] = l
	}

	statuses := make(map[int]Status, len(e.exp.Runs))

	for _, r := range e.exp.Runs {
		st := Status{RunID: r.ID, Label: r.Label}

		if lbl, ok := labelByName[r.Label]; ok {
			st.LabelRerunByDefault = lbl.RerunByDefault
		}

		rec, err := metrics.Load(r.MetricsPath)
		if err != nil {
			st.FS = FSPending
		} else if rec.IsCompleted() {
			st.FS = FSCompleted
			ec := rec.ExitCode
			st.ExitCode = &ec
		} else {
			st.FS = FSRunning
		}

		if r.SlurmID != "" {
			if state, ok := jobStates[r.SlurmID]; ok {
				st.Slurm = state
			} else {
				e.logger.Debug("no slurm job state found for scheduled run", "run", r.ID, "slurm_id", r.SlurmID)
			}
		}

		statuses[r.ID] = st
	}

	return statuses, nil
}

// IsCompletedFunc adapts a Status map to the callback shape
// experiment.Experiment.Pending expects: true for a run that has completed
// without failing (see HasFailed).
func IsCompletedFunc(statuses map[int]Status) func(runID int) bool {
	return func(runID int) bool {
		st, ok := statuses[runID]

		return ok && st.IsCompleted() && !st.HasFailed()
	}
}
