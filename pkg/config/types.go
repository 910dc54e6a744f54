// Package config parses and validates the user-authored TOML manifest,
// merging in schema-included inputs before experiment materialization.
package config

// Manifest is the top-level decoded shape of a user manifest (spec §6).
type Manifest struct {
	OutputPath        string                   `toml:"output_path"`
	MetricsPath       string                   `toml:"metrics_path"`
	ExperimentsFolder string                   `toml:"experiments_folder"`
	Wrapper           string                   `toml:"wrapper"`
	InputSchema       string                   `toml:"input_schema"`
	Programs          map[string]ProgramSpec   `toml:"program"`
	Inputs            map[string]InputSpec     `toml:"input"`
	Parameters        map[string]ParameterSpec `toml:"parameter"`
	Slurm             *SlurmSpec               `toml:"slurm"`
	ResourceLimits    *ResourceLimitsSpec      `toml:"resource_limits"`
	Labels            map[string]LabelSpec     `toml:"label"`
}

// ProgramSpec is one `[program.NAME]` table. Exactly one of Binary/Fetch/Git
// must be set.
type ProgramSpec struct {
	Binary         string              `toml:"binary"`
	Fetch          string              `toml:"fetch"`
	Git            string              `toml:"git"`
	Arguments      []string            `toml:"arguments"`
	Afterscript    string              `toml:"afterscript"`
	ResourceLimits *ResourceLimitsSpec `toml:"resource_limits"`
	Next           []string            `toml:"next"`
}

// InputSpec is one `[input.NAME]` table. At most one of File/Glob/Fetch/Git
// may be set.
type InputSpec struct {
	File      string   `toml:"file"`
	Glob      string   `toml:"glob"`
	Fetch     string   `toml:"fetch"`
	Git       string   `toml:"git"`
	Arguments []string `toml:"arguments"`
	Group     string   `toml:"group"`

	// ResourceLimits overrides the program's limits for runs synthesized
	// from this input. Supplemented from original_source/ (SPEC_FULL §8).
	ResourceLimits *ResourceLimitsSpec `toml:"resource_limits"`
}

// ParameterSpec is one `[parameter.NAME]` table: either flat Values, or a set
// of lockstep Sub values.
type ParameterSpec struct {
	Values []string                     `toml:"values"`
	Sub    map[string]SubParameterSpec  `toml:"sub"`
}

// SubParameterSpec is one `[parameter.NAME.sub.SUB]` table.
type SubParameterSpec struct {
	Values []string `toml:"values"`
}

// ResourceLimitsSpec mirrors experiment.ResourceLimits in manifest form.
type ResourceLimitsSpec struct {
	CPUs      int    `toml:"cpus"`
	MemPerCPU string `toml:"mem_per_cpu"`
	WallTime  string `toml:"wall_time"`
}

// SlurmSpec is the `[slurm]` table.
type SlurmSpec struct {
	Partition   string   `toml:"partition"`
	Account     string   `toml:"account"`
	CLIPath     string   `toml:"cli_path"`
	ChunkLength int      `toml:"chunk_length"`
	MaxArrays   int      `toml:"max_arrays"`
	BeginTime   string   `toml:"begin_time"`
	MailUser    string   `toml:"mail_user"`
	MailType    string   `toml:"mail_type"`
	ExtraArgs   []string `toml:"extra_args"`
}

// LabelSpec is one `[label.NAME]` table.
type LabelSpec struct {
	Regex          string `toml:"regex"`
	Priority       int    `toml:"priority"`
	RerunByDefault bool   `toml:"rerun_by_default"`
}

// SchemaFile is the shape of a file referenced by `input_schema`: an ordered
// list of anonymous inputs, injected under synthesized keys on merge.
type SchemaFile struct {
	Inputs []InputSpec `toml:"inputs"`
}
