// Package afterscript runs each program's post-step against a completed
// run's captured output and assigns a priority-ordered label from its
// stdout (spec §4.7).
package afterscript

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/pkg/base"
	"github.com/benchlab/benchlab/pkg/experiment"
)

// Eligible reports whether run is due for its afterscript: the owning
// program declares one, the run's FS state is a successful completion, and
// the afterscript has not already produced output.
func Eligible(prog experiment.Program, run experiment.Run, exitCode int, fsCompleted bool) bool {
	return prog.Afterscript != "" && fsCompleted && exitCode == 0 && run.AfterscriptOutput == ""
}

// Run executes prog's afterscript against run, trims and stores its stdout,
// and assigns the highest-priority matching label. It mutates a copy of run
// and returns it; callers write the result back onto the experiment.
func Run(ctx context.Context, prog experiment.Program, run experiment.Run, labels []experiment.Label, warnOnTie bool, logger *slog.Logger) (experiment.Run, error) {
	ok, err := fileops.IsExecutable(prog.Afterscript)
	if err != nil {
		return run, base.Wrap(base.KindResource, "check afterscript executable", err, "")
	}

	if !ok {
		return run, base.Wrap(base.KindResource, "check afterscript executable", fmt.Errorf("%s is not executable", prog.Afterscript), "")
	}

	cmd := exec.CommandContext(ctx, prog.Afterscript, run.StdoutPath) //nolint:gosec
	cmd.Dir = run.WorkDir

	out, err := cmd.Output()
	if err != nil {
		return run, base.Wrap(base.KindWrapper, "run afterscript", err, "")
	}

	run.AfterscriptOutput = strings.TrimSpace(string(out))

	label, warning := assignLabel(run.AfterscriptOutput, labels)
	if label != "" {
		run.Label = label
	}

	if warning != "" && warnOnTie {
		logger.Warn(warning, "run", run.ID)
	}

	return run, nil
}

// assignLabel iterates labels in descending priority and returns the first
// whose regex matches a substring of output, plus a warning naming it and
// every other (lower-priority) match, if any.
func assignLabel(output string, labels []experiment.Label) (label, warning string) {
	ordered := append([]experiment.Label(nil), labels...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}

		return ordered[i].Name < ordered[j].Name
	})

	var matches []string

	for _, l := range ordered {
		re, err := regexp.Compile(l.Regex)
		if err != nil {
			continue
		}

		if re.MatchString(output) {
			matches = append(matches, l.Name)
		}
	}

	if len(matches) == 0 {
		return "", ""
	}

	if len(matches) > 1 {
		warning = fmt.Sprintf("multiple labels matched afterscript output: %s wins over %s", matches[0], strings.Join(matches[1:], ", "))
	}

	return matches[0], warning
}
