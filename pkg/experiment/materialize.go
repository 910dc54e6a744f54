package experiment

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/config"
)

// defaultWrapperInvocation is used when a manifest does not set `wrapper`:
// the installed benchlab binary's own hidden subcommand (spec §6 "wrapper
// (string, defaults to the bundled helper)").
const defaultWrapperInvocation = "benchlab wrapper"

// Materialize computes the full set of runs for a manifest (spec §4.1): the
// cartesian product of programs over inputs, glob/parameter-grid expansion
// within each input, pipeline edge resolution, and deterministic per-run
// path assignment. It performs no fetching; callers that declare remote
// program/input sources must resolve them via pkg/fetch first and rewrite
// Binary/File to local paths before calling Materialize.
func Materialize(m *config.Manifest, env Env) (*Experiment, error) {
	seq, err := NextSeq(m.ExperimentsFolder)
	if err != nil {
		return nil, err
	}

	outputPath, err := fileops.Canonicalize(m.OutputPath)
	if err != nil {
		return nil, base.Wrap(base.KindConfig, "canonicalize output_path", err, "")
	}

	metricsPath, err := fileops.Canonicalize(m.MetricsPath)
	if err != nil {
		return nil, base.Wrap(base.KindConfig, "canonicalize metrics_path", err, "")
	}

	experimentsFolder, err := fileops.Canonicalize(m.ExperimentsFolder)
	if err != nil {
		return nil, base.Wrap(base.KindConfig, "canonicalize experiments_folder", err, "")
	}

	afterscriptFolder := filepath.Join(outputPath, "afterscript")

	wrapper := m.Wrapper
	if wrapper == "" {
		wrapper = defaultWrapperInvocation
	}

	progNames := sortedKeys(m.Programs)

	programs := make([]Program, 0, len(progNames))
	progIndex := make(map[string]int, len(progNames))

	for i, name := range progNames {
		spec := m.Programs[name]

		binary, err := resolveProgramPath(spec)
		if err != nil {
			return nil, base.Wrap(base.KindResource, fmt.Sprintf("program %q", name), err, "")
		}

		programs = append(programs, Program{
			Name:        name,
			Binary:      binary,
			Arguments:   append([]string(nil), spec.Arguments...),
			Afterscript: spec.Afterscript,
			Limits:      limitsFromSpec(spec.ResourceLimits, m.ResourceLimits),
		})
		progIndex[name] = i
	}

	// next edges are resolved to indices only after every program has one,
	// and after having been checked for dangling names by config.Validate.
	for i, name := range progNames {
		for _, next := range m.Programs[name].Next {
			programs[i].Next = append(programs[i].Next, progIndex[next])
		}
	}

	// roots are programs never named as another program's "next" target;
	// pipeline continuations are materialized from the root's resolved
	// input, chained forward through the program graph.
	isTarget := make([]bool, len(programs))
	for _, p := range programs {
		for _, n := range p.Next {
			isTarget[n] = true
		}
	}

	inputNames := sortedKeys(m.Inputs)

	var runs []Run

	nextID := 0

	for progIdx, isTgt := range isTarget {
		if isTgt {
			continue
		}

		for _, inName := range inputNames {
			variants, err := Expand(m.Inputs[inName], m.Parameters)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", inName, err)
			}

			for _, v := range variants {
				limits := programs[progIdx].Limits
				if ov := m.Inputs[inName].ResourceLimits; ov != nil {
					limits = ResourceLimits{CPUs: ov.CPUs, MemPerCPU: ov.MemPerCPU, WallTime: ov.WallTime}
				}

				in := Input{File: v.File, Arguments: v.Args, Group: m.Inputs[inName].Group}

				genFrom := inName
				if v.Expanded {
					genFrom = fmt.Sprintf("%s%s%d", inName, base.GlobInputSuffix, v.Suffix)
				}

				id := nextID
				nextID++

				runs = append(runs, newRun(id, progIdx, in, limits, genFrom, seq, outputPath, metricsPath))

				chainPipeline(&runs, &nextID, programs, progIdx, id, in, genFrom, seq, outputPath, metricsPath)
			}
		}
	}

	return &Experiment{
		Seq:               seq,
		Env:               env,
		CreatedAt:         time.Now(),
		Home:              filepath.Dir(experimentsFolder),
		Wrapper:           wrapper,
		Slurm:             m.Slurm,
		OutputFolder:      outputPath,
		MetricsFolder:     metricsPath,
		AfterscriptFolder: afterscriptFolder,
		Programs:          programs,
		Runs:              runs,
		Labels:            labelsFromSpec(m.Labels),
		Groups:            groupsOf(runs),
	}, nil
}

// chainPipeline recursively materializes a run's "next" program chain,
// reusing the triggering run's resolved input and linking each continuation
// run's parent back to the run that triggered it. Fans out, not just chains,
// when a program names more than one next target.
func chainPipeline(runs *[]Run, nextID *int, programs []Program, parentProg, parentID int, in Input, genFrom string, seq int, outputPath, metricsPath string) {
	for _, childProg := range programs[parentProg].Next {
		childID := *nextID
		*nextID++

		r := newRun(childID, childProg, in, programs[childProg].Limits, genFrom, seq, outputPath, metricsPath)
		p := parentID
		r.Parent = &p
		*runs = append(*runs, r)

		chainPipeline(runs, nextID, programs, childProg, childID, in, genFrom, seq, outputPath, metricsPath)
	}
}

func newRun(id, progIdx int, in Input, limits ResourceLimits, genFrom string, seq int, outputPath, metricsPath string) Run {
	stdoutPath, stderrPath, metricsFilePath, workDir := RunPaths(seq, progIdx, id, outputPath, metricsPath)

	return Run{
		ID:                 id,
		Program:            progIdx,
		Input:              in,
		StdoutPath:         stdoutPath,
		StderrPath:         stderrPath,
		MetricsPath:        metricsFilePath,
		WorkDir:            workDir,
		Group:              in.Group,
		Limits:             limits,
		GeneratedFromInput: genFrom,
	}
}

func resolveProgramPath(spec config.ProgramSpec) (string, error) {
	if spec.Binary != "" {
		return fileops.Canonicalize(spec.Binary)
	}
	// fetch|git sources are resolved to a local path by pkg/fetch before
	// Materialize runs; by the time we get here Binary must be set. Surface
	// a clear error rather than silently producing an empty binary path.
	return "", fmt.Errorf("program has no local binary path; fetch/git sources must be resolved before materialization")
}

func limitsFromSpec(program, global *config.ResourceLimitsSpec) ResourceLimits {
	if program != nil {
		return ResourceLimits{CPUs: program.CPUs, MemPerCPU: program.MemPerCPU, WallTime: program.WallTime}
	}

	if global != nil {
		return ResourceLimits{CPUs: global.CPUs, MemPerCPU: global.MemPerCPU, WallTime: global.WallTime}
	}

	return ResourceLimits{}
}

func labelsFromSpec(labels map[string]config.LabelSpec) []Label {
	names := sortedKeys(labels)

	out := make([]Label, 0, len(names))
	for _, name := range names {
		l := labels[name]
		out = append(out, Label{Name: name, Regex: l.Regex, Priority: l.Priority, RerunByDefault: l.RerunByDefault})
	}

	return out
}

func groupsOf(runs []Run) []string {
	seen := map[string]bool{}

	var groups []string

	for _, r := range runs {
		if r.Group == "" || seen[r.Group] {
			continue
		}

		seen[r.Group] = true

		groups = append(groups, r.Group)
	}

	sort.Strings(groups)

	return groups
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
