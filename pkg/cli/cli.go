// Package cli wires the benchlab sub-commands (spec §6 "CLI surface") onto
// the pkg/config, pkg/experiment, pkg/chunk, pkg/slurm, pkg/runner,
// pkg/status, pkg/afterscript, pkg/rerun and pkg/analysis packages.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
)

// AppName is the kingpin app name and the default wrapper subcommand name
// Slurm array scripts invoke back into.
const AppName = "benchlab"

// App represents the `benchlab` CLI.
type App struct {
	App *kingpin.Application
}

// NewApp returns a new App instance.
func NewApp() *App {
	return &App{
		App: kingpin.New(AppName, "Run program/input pairings locally or on Slurm, measure resource usage, and report on the results."),
	}
}

// Main is the entry point of the `benchlab` command.
func (a *App) Main() error {
	promslogConfig := &promslog.Config{}
	flag.AddFlags(a.App, promslogConfig)
	a.App.Version(version.Print(AppName))
	a.App.UsageWriter(os.Stdout)
	a.App.HelpFlag.Short('h')

	cmds := registerCommands(a.App)

	parsedCmd, err := a.App.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to parse CLI flags: %w", err)
	}

	logger := promslog.New(promslogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatch, ok := cmds[parsedCmd]
	if !ok {
		return fmt.Errorf("unrecognized command %q", parsedCmd)
	}

	return dispatch(ctx, logger)
}

// checkErr prints err to stderr and returns the process exit code, the same
// convention the teacher's CLI tool uses.
func checkErr(err error) int {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	return 0
}
