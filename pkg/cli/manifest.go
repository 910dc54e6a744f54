package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/pkg/config"
	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/fetch"
)

// resolveManifestSources rewrites every program/input declared with a
// `fetch` or `git` source into a local path, the step materialize.go's
// resolveProgramPath requires to have already happened (spec §4.1).
func resolveManifestSources(ctx context.Context, m *config.Manifest, logger *slog.Logger) error {
	for name, spec := range m.Programs {
		if spec.Fetch == "" && spec.Git == "" {
			continue
		}

		dest := filepath.Join(m.OutputPath, "fetched", "program_"+name)

		local, err := fetch.Resolve(ctx, &fetch.Spec{URL: spec.Fetch, GitPath: spec.Git, Dest: dest, Executable: true}, logger)
		if err != nil {
			return fmt.Errorf("fetching program %q: %w", name, err)
		}

		spec.Binary = local
		m.Programs[name] = spec
	}

	for name, spec := range m.Inputs {
		if spec.Fetch == "" && spec.Git == "" {
			continue
		}

		dest := filepath.Join(m.OutputPath, "fetched", "input_"+name)

		local, err := fetch.Resolve(ctx, &fetch.Spec{URL: spec.Fetch, GitPath: spec.Git, Dest: dest}, logger)
		if err != nil {
			return fmt.Errorf("fetching input %q: %w", name, err)
		}

		spec.File = local
		m.Inputs[name] = spec
	}

	return nil
}

// initExperiment loads and validates a manifest, resolves remote sources,
// materializes the run set, and persists it as a new numbered experiment.
// In dry-run mode (testable property 10), materialization still happens
// in-memory so run counts can be reported, but no experiment file is
// written. Remote `fetch`/`git` sources are still resolved, and so written
// to their destinations, before the dry-run check.
func initExperiment(ctx context.Context, manifestPath string, env experiment.Env, dryRun bool, logger *slog.Logger) (*experiment.Experiment, error) {
	m, err := config.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	if err := resolveManifestSources(ctx, m, logger); err != nil {
		return nil, err
	}

	exp, err := experiment.Materialize(m, env)
	if err != nil {
		return nil, err
	}

	acc := fileops.New(m.ExperimentsFolder, dryRun, logger)
	if acc.DryRun {
		acc.Logger.Info("dry-run: would materialize experiment", "runs", len(exp.Runs), "env", exp.Env)

		return exp, nil
	}

	if err := experiment.Save(m.ExperimentsFolder, exp); err != nil {
		return nil, err
	}

	logger.Info("materialized experiment", "seq", exp.Seq, "runs", len(exp.Runs), "env", exp.Env)

	return exp, nil
}
