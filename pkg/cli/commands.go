package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/version"

	"github.com/benchlab/benchlab/pkg/analysis"
	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/rerun"
	"github.com/benchlab/benchlab/pkg/runner"
	"github.com/benchlab/benchlab/pkg/slurm"
	"github.com/benchlab/benchlab/pkg/status"
)

// dispatchFunc is what registerCommands maps a parsed kingpin command string
// onto.
type dispatchFunc func(ctx context.Context, logger *slog.Logger) error

// currentUser resolves the local user name used as the Slurm query filter
// (spec §4.6 "queries jobs for the invoking user").
func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}

	return u.Username
}

// loadExperiment loads the experiment numbered seq from folder, or the
// latest one saved there when seq is 0.
func loadExperiment(folder string, seq int) (*experiment.Experiment, error) {
	if seq == 0 {
		return experiment.LoadLatest(folder)
	}

	return experiment.Load(folder, seq)
}

// registerCommands wires every benchlab sub-command (spec §6) onto app and
// returns the table Main dispatches through.
func registerCommands(app *kingpin.Application) map[string]dispatchFunc {
	cmds := map[string]dispatchFunc{}
	user := currentUser()

	// init
	{
		cmd := app.Command("init", "Load a manifest and materialize a new experiment.")
		manifestPath := cmd.Arg("manifest", "Path to the TOML manifest.").Required().String()
		slurmEnv := cmd.Flag("slurm", "Materialize for Slurm instead of local execution.").Bool()
		dryRun := cmd.Flag("dry-run", "Materialize in-memory only; write no experiment file.").Bool()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			env := experiment.EnvLocal
			if *slurmEnv {
				env = experiment.EnvSlurm
			}

			_, err := initExperiment(ctx, *manifestPath, env, *dryRun, logger)

			return err
		}
	}

	run := app.Command("run", "Dispatch pending runs.")

	// run local
	{
		cmd := run.Command("local", "Dispatch pending runs through the local runner.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()
		threads := cmd.Flag("threads", "Number of concurrent runs (0 = unbounded).").Default("0").Int()
		force := cmd.Flag("force", "Bypass the safety limit on the number of runs dispatched at once.").Bool()
		sequential := cmd.Flag("sequential", "Run one at a time, abort on first failure.").Bool()
		dryRun := cmd.Flag("dry-run", "Report what would be dispatched; spawn nothing.").Bool()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			opts := runner.Options{NumThreads: *threads, Force: *force, Sequential: *sequential}

			return runLocal(ctx, *folder, user, exp, opts, *dryRun, logger)
		}
	}

	// run slurm
	{
		cmd := run.Command("slurm", "Chunk and submit pending runs as Slurm array jobs.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()
		chunkLen := cmd.Flag("chunk-length", "Runs per array job (0 = experiment default).").Default("0").Int()
		dryRun := cmd.Flag("dry-run", "Report the chunk plan; submit nothing.").Bool()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			return runSlurm(ctx, *folder, user, exp, *chunkLen, *dryRun, logger)
		}
	}

	// status
	{
		cmd := app.Command("status", "Report the current status of every run.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			engine, err := statusEngineFor(exp, user, logger)
			if err != nil {
				return err
			}

			statuses, err := engine.Query(ctx)
			if err != nil {
				return err
			}

			return renderStatus(os.Stdout, exp, statuses)
		}
	}

	// continue
	{
		cmd := app.Command("continue", "Dispatch every run newly unblocked by a completed parent.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			if exp.Env == experiment.EnvSlurm {
				return runSlurm(ctx, *folder, user, exp, 0, false, logger)
			}

			return runLocal(ctx, *folder, user, exp, runner.Options{}, false, logger)
		}
	}

	// cancel
	{
		cmd := app.Command("cancel", "Cancel scheduled Slurm jobs for an experiment.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()
		dryRun := cmd.Flag("dry-run", "Log the Slurm job ids that would be cancelled without running scancel.").Bool()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			if exp.Env != experiment.EnvSlurm {
				return fmt.Errorf("cancel only applies to Slurm experiments")
			}

			ids := scheduledSlurmIDs(exp)
			if len(ids) == 0 {
				return nil
			}

			adapter, err := slurm.New(exp.Slurm, exp.Wrapper, logger)
			if err != nil {
				return err
			}

			return adapter.Cancel(ctx, ids, *dryRun)
		}
	}

	// rerun
	{
		cmd := app.Command("rerun", "Synthesize rerun runs for failed (or selected) runs.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()
		runIDs := cmd.Flag("run", "Run id to rerun (repeatable; default: every failed run).").Ints()
		dispatch := cmd.Flag("dispatch", "Immediately dispatch the synthesized runs.").Bool()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			engine, err := statusEngineFor(exp, user, logger)
			if err != nil {
				return err
			}

			statuses, err := engine.Query(ctx)
			if err != nil {
				return err
			}

			newIDs, err := rerun.Rerun(exp, *runIDs, statuses)
			if err != nil {
				return err
			}

			if err := experiment.Save(*folder, exp); err != nil {
				return err
			}

			logger.Info("synthesized reruns", "count", len(newIDs))

			if !*dispatch {
				return nil
			}

			if exp.Env == experiment.EnvSlurm {
				return runSlurm(ctx, *folder, user, exp, 0, false, logger)
			}

			return runLocal(ctx, *folder, user, exp, runner.Options{}, false, logger)
		}
	}

	analyse := app.Command("analyse", "Post-run reporting.")

	// analyse table
	{
		cmd := analyse.Command("table", "Render a table of every run and its measurements.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()
		csv := cmd.Flag("csv", "Render as CSV instead of a text table.").Bool()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			rows, err := buildRunViews(ctx, exp, user, logger)
			if err != nil {
				return err
			}

			t := analysis.NewTable(rows)
			for _, col := range analysis.DefaultColumns() {
				t.AppendColumn(col)
			}

			if *csv {
				t.RenderCSV(exp, os.Stdout)
			} else {
				t.Render(exp, os.Stdout)
			}

			return nil
		}
	}

	// analyse plot
	{
		cmd := analyse.Command("plot", "Emit cactus-plot points (duration, cumulative completed count) per program.")
		folder := cmd.Flag("experiments-folder", "Folder holding experiment files.").Default(".").String()
		seq := cmd.Flag("seq", "Experiment number (0 = latest).").Default("0").Int()
		maxTime := cmd.Flag("max-time-micros", "Right edge every program's line is extended to.").Default("0").Int64()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			exp, err := loadExperiment(*folder, *seq)
			if err != nil {
				return err
			}

			rows, err := buildRunViews(ctx, exp, user, logger)
			if err != nil {
				return err
			}

			points := analysis.CactusData(exp, rows, *maxTime)

			return renderCactus(os.Stdout, exp, points)
		}
	}

	// version
	{
		cmd := app.Command("version", "Print version information.")

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			fmt.Fprintln(os.Stdout, version.Print(AppName))

			return nil
		}
	}

	// wrapper is hidden: never invoked directly by a user, only by the
	// templated Slurm array script (spec §6, "wrapper" manifest field).
	{
		cmd := app.Command("wrapper", "Internal: invoked by Slurm array scripts to execute one run.").Hidden()
		chunkID := cmd.Arg("chunk-id", "Chunk id this array task belongs to.").Required().String()
		experimentPath := cmd.Arg("experiment-path", "Path to the experiment TOML file.").Required().String()
		subID := cmd.Arg("sub-id", "Index of the run within the chunk (SLURM_ARRAY_TASK_ID).").Required().Int()

		cmds[cmd.FullCommand()] = func(ctx context.Context, logger *slog.Logger) error {
			return metrics.Run(ctx, *experimentPath, *chunkID, *subID, logger)
		}
	}

	return cmds
}

// scheduledSlurmIDs collects the distinct non-empty Slurm job ids across
// every run in exp.
func scheduledSlurmIDs(exp *experiment.Experiment) []string {
	seen := map[string]bool{}

	var ids []string

	for _, r := range exp.Runs {
		if r.SlurmID == "" || r.SlurmID == "local" || seen[r.SlurmID] {
			continue
		}

		seen[r.SlurmID] = true

		ids = append(ids, r.SlurmID)
	}

	return ids
}

// buildRunViews assembles the analysis.RunView slice analyse table/plot
// render from, pulling current status and, for completed runs, the metrics
// record off disk.
func buildRunViews(ctx context.Context, exp *experiment.Experiment, user string, logger *slog.Logger) ([]analysis.RunView, error) {
	engine, err := statusEngineFor(exp, user, logger)
	if err != nil {
		return nil, err
	}

	statuses, err := engine.Query(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]analysis.RunView, 0, len(exp.Runs))

	for _, r := range exp.Runs {
		rec, _ := metrics.Load(r.MetricsPath)
		rows = append(rows, analysis.RunView{Run: r, Status: statuses[r.ID], Metrics: rec})
	}

	return rows, nil
}

// renderStatus prints one line per run: id, program, FS/Slurm state, label.
func renderStatus(w *os.File, exp *experiment.Experiment, statuses map[int]status.Status) error {
	for _, r := range exp.Runs {
		st := statuses[r.ID]

		state := st.FS.String()
		if st.Slurm != "" {
			state = st.Slurm
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, exp.Programs[r.Program].Name, state, st.Label)
	}

	return nil
}

// renderCactus prints one line per (program, point): program name, wall
// time in microseconds, cumulative completed count.
func renderCactus(w *os.File, exp *experiment.Experiment, points map[string][]analysis.CactusPoint) error {
	names := make([]string, 0, len(points))
	for name := range points {
		names = append(names, name)
	}

	for _, prog := range sortedProgramOrder(exp, names) {
		for _, p := range points[prog] {
			fmt.Fprintf(w, "%s\t%d\t%d\n", prog, p.DurationMicros, p.CumulativeCount)
		}
	}

	return nil
}

// sortedProgramOrder orders names the way they appear in exp.Programs, so
// plot output is deterministic across runs of the same experiment.
func sortedProgramOrder(exp *experiment.Experiment, names []string) []string {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	var ordered []string

	for _, p := range exp.Programs {
		if present[p.Name] {
			ordered = append(ordered, p.Name)
		}
	}

	return ordered
}
