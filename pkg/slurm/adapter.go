// Package slurm submits and polls Slurm array jobs for the Chunker's output
// (spec §4.5), shelling out to sacct/sbatch/squeue/scancel/sinfo behind the
// same capability/sudo fallback ladder the teacher uses for sacct.
package slurm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/internal/security"
	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/config"
	"github.com/benchlab/benchlab/pkg/experiment"
)

// minSupportedMajor rejects clusters old enough that sacct's --parsable2
// fields (and our sbatch flags) aren't guaranteed to exist.
const minSupportedMajor = 20

// Normalized Slurm states, per spec §4.6.
const (
	StatePending     = "Pending"
	StateRunning     = "Running"
	StateSuccess     = "Success"
	StateBootFail    = "BootFail"
	StateCancelled   = "Cancelled"
	StateDeadline    = "Deadline"
	StateNodeFail    = "NodeFail"
	StateOutOfMemory = "OutOfMemory"
	StatePreempted   = "Preempted"
	StateTimeout     = "Timeout"
	StateSlurmFail   = "SlurmFail"
)

// IsTerminalFailure reports whether state is one of the failure states that
// makes a run's composite status "failed" regardless of FS state.
func IsTerminalFailure(state string) bool {
	switch state {
	case StateBootFail, StateCancelled, StateDeadline, StateNodeFail,
		StateOutOfMemory, StatePreempted, StateTimeout, StateSlurmFail:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether state will never change again.
func IsTerminal(state string) bool {
	return state == StateSuccess || IsTerminalFailure(state)
}

// JobState is one sacct row, reduced to what status derivation needs.
type JobState struct {
	SlurmID string // "<batch_id>_<array_index>"
	State   string
}

// Adapter is one configured connection to a Slurm cluster's CLI.
type Adapter struct {
	binDir      string
	mode        execMode
	securityCtx *security.SecurityContext

	partition string
	account   string
	beginTime string
	mailUser  string
	mailType  string
	extraArgs []string

	wrapperPath string
	logger      *slog.Logger
}

// New resolves the Slurm binaries and exec mode, and stores the submission
// defaults from the manifest's [slurm] table.
func New(spec *config.SlurmSpec, wrapperPath string, logger *slog.Logger) (*Adapter, error) {
	if spec == nil {
		spec = &config.SlurmSpec{}
	}

	binDir, mode, secCtx, err := preflight(spec.CLIPath, logger)
	if err != nil {
		return nil, base.Wrap(base.KindScheduler, "slurm preflight", err, "check that slurm CLI tools are on PATH or set slurm.cli_path")
	}

	return &Adapter{
		binDir:      binDir,
		mode:        mode,
		securityCtx: secCtx,
		partition:   spec.Partition,
		account:     spec.Account,
		beginTime:   spec.BeginTime,
		mailUser:    spec.MailUser,
		mailType:    spec.MailType,
		extraArgs:   spec.ExtraArgs,
		wrapperPath: wrapperPath,
		logger:      logger,
	}, nil
}

// Version returns the cluster's Slurm version and errors if it is older than
// minSupportedMajor.
func (a *Adapter) Version(ctx context.Context) (string, error) {
	out, err := a.run(ctx, "sinfo", []string{"--version"})
	if err != nil {
		return "", base.Wrap(base.KindScheduler, "query slurm version", err, "")
	}

	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return "", base.Wrap(base.KindScheduler, "parse slurm version", fmt.Errorf("unexpected sinfo --version output %q", out), "")
	}

	version := fields[1]

	majorStr, _, _ := strings.Cut(version, ".")

	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return version, base.Wrap(base.KindScheduler, "parse slurm version", fmt.Errorf("cannot parse major version from %q", version), "")
	}

	if major < minSupportedMajor {
		return version, base.Wrap(base.KindScheduler, "check slurm version",
			fmt.Errorf("slurm %s is older than the minimum supported major version %d", version, minSupportedMajor), "")
	}

	return version, nil
}

// Partitions lists partition names known to the cluster.
func (a *Adapter) Partitions(ctx context.Context) ([]string, error) {
	out, err := a.run(ctx, "sinfo", []string{"-h", "-o", "%R"})
	if err != nil {
		return nil, base.Wrap(base.KindScheduler, "query partitions", err, "")
	}

	seen := map[string]bool{}

	var partitions []string

	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true

		partitions = append(partitions, name)
	}

	return partitions, nil
}

// HasPartition reports whether name is a known partition.
func (a *Adapter) HasPartition(ctx context.Context, name string) (bool, error) {
	partitions, err := a.Partitions(ctx)
	if err != nil {
		return false, err
	}

	for _, p := range partitions {
		if p == name {
			return true, nil
		}
	}

	return false, nil
}

// SubmitArray renders and submits an array script for chunk, one array task
// per run in chunk.Runs, and returns the batch job id sbatch assigned.
func (a *Adapter) SubmitArray(ctx context.Context, chunk experiment.Chunk, experimentPath, scriptDir string) (string, error) {
	if len(chunk.Runs) == 0 {
		return "", base.Wrap(base.KindState, "submit array", fmt.Errorf("chunk %s has no runs", chunk.ID), "")
	}

	script, err := renderArrayScript(scriptData{
		ChunkID:        chunk.ID,
		MaxIndex:       len(chunk.Runs) - 1,
		Limits:         chunk.Limits,
		Partition:      a.partition,
		Account:        a.account,
		BeginTime:      a.beginTime,
		MailUser:       a.mailUser,
		MailType:       a.mailType,
		ExtraArgs:      a.extraArgs,
		OutputPattern:  filepath.Join(scriptDir, chunk.ID+"_%a.out"),
		ErrorPattern:   filepath.Join(scriptDir, chunk.ID+"_%a.err"),
		WrapperPath:    a.wrapperPath,
		ExperimentPath: experimentPath,
	})
	if err != nil {
		return "", base.Wrap(base.KindScheduler, "render array script", err, "")
	}

	scriptPath := filepath.Join(scriptDir, chunk.ID+".sbatch")
	if err := fileops.WriteFileAtomic(scriptPath, []byte(script), 0o644); err != nil { //nolint:gosec
		return "", base.Wrap(base.KindScheduler, "write array script", err, "")
	}

	out, err := a.run(ctx, "sbatch", []string{scriptPath})
	if err != nil {
		return "", base.Wrap(base.KindScheduler, "submit array", err, "")
	}

	batchID, err := parseSbatchOutput(string(out))
	if err != nil {
		return "", base.Wrap(base.KindScheduler, "parse sbatch output", err, "")
	}

	return batchID, nil
}

// parseSbatchOutput extracts the job id from sbatch's "Submitted batch job
// <id>" line.
func parseSbatchOutput(out string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty sbatch output")
	}

	return fields[len(fields)-1], nil
}

// AssignSlurmIDs sets SlurmID on every run in chunk.Runs to
// "<batchID>_<array index>", the convention submit_array uses and status
// lookups rely on.
func AssignSlurmIDs(runs []experiment.Run, chunk experiment.Chunk, batchID string) {
	for subID, runID := range chunk.Runs {
		for i := range runs {
			if runs[i].ID == runID {
				runs[i].SlurmID = fmt.Sprintf("%s_%d", batchID, subID)

				break
			}
		}
	}
}

// ScheduledJobsForUser lists the current Slurm state of every job belonging
// to user, keyed by "<job_id>_<array_index>" to match AssignSlurmIDs.
func (a *Adapter) ScheduledJobsForUser(ctx context.Context, user string) ([]JobState, error) {
	out, err := a.run(ctx, "sacct", []string{
		"-u", user, "--parsable2", "--noheader", "--format", "JobID,State",
	})
	if err != nil {
		return nil, base.Wrap(base.KindScheduler, "query scheduled jobs", err, "")
	}

	var jobs []JobState

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}

		jobID := fields[0]
		if strings.Contains(jobID, ".") {
			continue // job step, not the array task itself
		}

		jobs = append(jobs, JobState{
			SlurmID: jobID,
			State:   normalizeState(fields[1]),
		})
	}

	return jobs, nil
}

// normalizeState maps a raw sacct %State value to the spec's state names.
func normalizeState(raw string) string {
	raw = strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(raw)), "+")

	switch raw {
	case "PENDING":
		return StatePending
	case "RUNNING", "COMPLETING", "SUSPENDED":
		return StateRunning
	case "COMPLETED":
		return StateSuccess
	case "BOOT_FAIL":
		return StateBootFail
	case "CANCELLED":
		return StateCancelled
	case "DEADLINE":
		return StateDeadline
	case "NODE_FAIL":
		return StateNodeFail
	case "OUT_OF_MEMORY":
		return StateOutOfMemory
	case "PREEMPTED":
		return StatePreempted
	case "TIMEOUT":
		return StateTimeout
	case "FAILED":
		return StateSlurmFail
	default:
		return StateSlurmFail
	}
}

// Cancel runs scancel over ids, or, when dryRun is set, only reports what
// would be cancelled.
func (a *Adapter) Cancel(ctx context.Context, ids []string, dryRun bool) error {
	if len(ids) == 0 {
		return base.Wrap(base.KindState, "cancel", fmt.Errorf("no jobs to cancel"), "")
	}

	if dryRun {
		a.logger.Info("dry run: would cancel slurm jobs", "ids", strings.Join(ids, ","))

		return nil
	}

	if _, err := a.run(ctx, "scancel", ids); err != nil {
		return base.Wrap(base.KindScheduler, "cancel jobs", err, "")
	}

	return nil
}

