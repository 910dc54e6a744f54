// Package base holds constants and the error taxonomy shared by every
// benchlab component.
package base

import "regexp"

// Default file and directory names.
const (
	// DefaultManifestFile is the conventional name of the user-authored TOML
	// manifest. `benchlab init` takes the manifest path as a required
	// argument and does not look for this file.
	DefaultManifestFile = "benchlab.toml"

	// DefaultWrapper is a name for a standalone metrics-wrapper binary. An
	// unset manifest `wrapper` does not fall back to it; materialization
	// uses the hidden `benchlab wrapper` subcommand instead.
	DefaultWrapper = "benchlab-wrapper"

	// MetricsFileName, StdoutFileName, StderrFileName are per-run file names
	// that experiment.RunPaths does not use: it names a run's files
	// "run_<seq>_<program>_<id>" with .stdout/.stderr/.toml suffixes, next to
	// (not inside) the run's work directory.
	MetricsFileName = "metrics.toml"
	StdoutFileName  = "stdout.log"
	StderrFileName  = "stderr.log"

	// SchemaInputPrefix names the synthesized input key for schema-included inputs.
	SchemaInputPrefix = "_i_schema"

	// GlobInputSuffix names the synthesized input keys of every expanded
	// input, whether a glob or a parameter dimension produced it.
	GlobInputSuffix = "_i_glob_"

	// PathGlobPrefix, ParamPrefix, SubParamPrefix are the sentinel argument
	// prefixes recognized during materialization.
	PathGlobPrefix = "path|"
	ParamPrefix    = "param|"
	SubParamPrefix = "subparam|"
)

// InvalidIDRegex matches characters not allowed in experiment/cluster-like ids.
var InvalidIDRegex = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// DatetimezoneLayout is the layout benchlab uses for all persisted timestamps.
const DatetimezoneLayout = "2006-01-02T15:04:05-07:00"

// SafetyLimit is the built-in cap on the number of runs the Local Runner will
// dispatch in one invocation unless `force` or `sequential` is set.
const SafetyLimit = 200
