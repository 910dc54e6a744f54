// Package experiment implements the core data model, materialization, and
// persistence of benchlab experiments.
package experiment

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/benchlab/benchlab/pkg/config"
)

// Env tags which environment an experiment's runs are scheduled on.
type Env string

// Environment values.
const (
	EnvLocal Env = "Local"
	EnvSlurm Env = "Slurm"
)

// ResourceLimits bounds one run (or a homogeneous chunk of runs).
type ResourceLimits struct {
	CPUs      int    `toml:"cpus"`
	MemPerCPU string `toml:"mem_per_cpu"`
	WallTime  string `toml:"wall_time"`
}

// Equal reports structural equality, the basis of Chunk homogeneity (spec
// property 6) and pending-run partitioning (spec §4.2 step 2).
func (r ResourceLimits) Equal(o ResourceLimits) bool {
	return r.CPUs == o.CPUs && r.MemPerCPU == o.MemPerCPU && r.WallTime == o.WallTime
}

// Program is immutable within one experiment snapshot once materialized.
type Program struct {
	Name        string         `toml:"name"`
	Binary      string         `toml:"binary"`
	Arguments   []string       `toml:"arguments"`
	Afterscript string         `toml:"afterscript"`
	Limits      ResourceLimits `toml:"limits"`
	Next        []int          `toml:"next"`
}

// Input is a fully-resolved input, inlined into every Run that uses it so a
// run stays self-describing after the source manifest changes.
type Input struct {
	File      string   `toml:"file"`
	Arguments []string `toml:"arguments"`
	Group     string   `toml:"group"`
}

// Equal reports structural equality between two inputs (spec: "equality of
// two inputs is structural").
func (in Input) Equal(o Input) bool {
	if in.File != o.File || in.Group != o.Group || len(in.Arguments) != len(o.Arguments) {
		return false
	}

	for i := range in.Arguments {
		if in.Arguments[i] != o.Arguments[i] {
			return false
		}
	}

	return true
}

// Run is the unit of scheduling.
type Run struct {
	ID                  int            `toml:"id"`
	Program             int            `toml:"program"`
	Input               Input          `toml:"input"`
	StdoutPath          string         `toml:"stdout_path"`
	StderrPath          string         `toml:"stderr_path"`
	MetricsPath         string         `toml:"metrics_path"`
	WorkDir             string         `toml:"work_dir"`
	Group               string         `toml:"group,omitempty"`
	Limits              ResourceLimits `toml:"limits"`
	SlurmID             string         `toml:"slurm_id,omitempty"`
	Rerun               *int           `toml:"rerun,omitempty"`
	Parent              *int           `toml:"parent,omitempty"`
	GeneratedFromInput  string         `toml:"generated_from_input,omitempty"`
	AfterscriptOutput   string         `toml:"afterscript_output,omitempty"`
	Label               string         `toml:"label,omitempty"`
}

// RunPaths computes the deterministic per-run file layout shared by
// materialization and rerun: "run_<seq>_<program>_<id>" under outputPath
// (stdout, stderr, work dir) and metricsPath (the metrics file).
func RunPaths(seq, progIdx, id int, outputPath, metricsPath string) (stdoutPath, stderrPath, metricsFilePath, workDir string) {
	stem := fmt.Sprintf("run_%d_%d_%d", seq, progIdx, id)

	return filepath.Join(outputPath, stem+".stdout"),
		filepath.Join(outputPath, stem+".stderr"),
		filepath.Join(metricsPath, stem+".toml"),
		filepath.Join(outputPath, stem)
}

// IsScheduled reports whether the run has been handed off for execution.
func (r Run) IsScheduled(env Env) bool {
	if env == EnvSlurm {
		return r.SlurmID != ""
	}

	return r.SlurmID != "" // set by the Local Runner too, to the literal "local"
}

// Chunk is a packed batch of runs sharing identical resource limits.
type Chunk struct {
	ID     string         `toml:"id"`
	Runs   []int          `toml:"runs"`
	Limits ResourceLimits `toml:"limits"`
}

// Label is a regex-tagged classification with priority and a rerun default.
type Label struct {
	Name           string `toml:"name"`
	Regex          string `toml:"regex"`
	Priority       int    `toml:"priority"`
	RerunByDefault bool   `toml:"rerun_by_default"`
}

// Experiment is the complete, persisted description of a set of runs.
type Experiment struct {
	Seq              int       `toml:"seq"`
	Env              Env       `toml:"env"`
	CreatedAt        time.Time `toml:"created_at"`
	Home             string    `toml:"home"`
	Wrapper          string    `toml:"wrapper"`
	Slurm            *config.SlurmSpec `toml:"slurm,omitempty"`
	OutputFolder     string    `toml:"output_folder"`
	MetricsFolder    string    `toml:"metrics_folder"`
	AfterscriptFolder string   `toml:"afterscript_folder"`
	Programs         []Program `toml:"programs"`
	Runs             []Run     `toml:"runs"`
	Chunks           []Chunk   `toml:"chunks"`
	Labels           []Label   `toml:"labels"`
	Groups           []string  `toml:"groups"`
}

// Pending returns the indices of runs not yet dispatched, per the Chunker's
// selection rule (spec §4.2 step 1): slurm_id unset and parent (if any)
// completed successfully. isCompleted reports whether a run id completed
// without failing (callers pass status.IsCompletedFunc). Parent completion here means the
// *original* parent, never followed transitively through further reruns
// (Open Question (c), resolved in DESIGN.md).
func (e *Experiment) Pending(isCompleted func(runID int) bool) []int {
	var pending []int

	for i, r := range e.Runs {
		if r.SlurmID != "" {
			continue
		}

		if r.Parent != nil {
			parentIdx := e.indexByID(*r.Parent)
			if parentIdx < 0 || !isCompleted(*r.Parent) {
				continue
			}
		}

		pending = append(pending, i)
	}

	return pending
}

// RunByID returns a pointer into e.Runs for the run with the given id, and
// its slice index, or (nil, -1) if no such run exists.
func (e *Experiment) RunByID(id int) (*Run, int) {
	idx := e.indexByID(id)
	if idx < 0 {
		return nil, -1
	}

	return &e.Runs[idx], idx
}

// ChunkByID returns a pointer into e.Chunks for the chunk with the given id,
// or nil if no such chunk exists.
func (e *Experiment) ChunkByID(id string) *Chunk {
	for i := range e.Chunks {
		if e.Chunks[i].ID == id {
			return &e.Chunks[i]
		}
	}

	return nil
}

func (e *Experiment) indexByID(id int) int {
	for i, r := range e.Runs {
		if r.ID == id {
			return i
		}
	}

	return -1
}
