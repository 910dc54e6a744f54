package config

import (
	"fmt"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/pkg/base"
)

// Load reads and validates the manifest at path, merging in any schema file
// it references.
func Load(path string) (*Manifest, error) {
	m, err := fileops.ReadTOML[Manifest](path)
	if err != nil {
		return nil, base.Wrap(base.KindConfig, "load manifest", err, "check the manifest's TOML syntax")
	}

	if err := m.mergeSchema(); err != nil {
		return nil, base.Wrap(base.KindConfig, "merge input schema", err, "check input_schema path and format")
	}

	if err := m.Validate(); err != nil {
		return nil, base.Wrap(base.KindConfig, "validate manifest", err, "")
	}

	return m, nil
}

// mergeSchema injects each anonymous input from m.InputSchema under a
// synthesized key "<idx>_i_schema" (spec §4.1 "Schema merge").
func (m *Manifest) mergeSchema() error {
	if m.InputSchema == "" {
		return nil
	}

	schema, err := fileops.ReadTOML[SchemaFile](m.InputSchema)
	if err != nil {
		return fmt.Errorf("read input schema %s: %w", m.InputSchema, err)
	}

	if m.Inputs == nil {
		m.Inputs = make(map[string]InputSpec, len(schema.Inputs))
	}

	for idx, in := range schema.Inputs {
		key := fmt.Sprintf("%d%s", idx, base.SchemaInputPrefix)
		m.Inputs[key] = in
	}

	return nil
}

// Validate checks structural invariants the materializer relies on: every
// program/input declares exactly the allowed number of sources, parameter
// sub-lists are equal length, and "next" names exist.
func (m *Manifest) Validate() error {
	if m.OutputPath == "" || m.MetricsPath == "" || m.ExperimentsFolder == "" {
		return fmt.Errorf("output_path, metrics_path and experiments_folder are required")
	}

	if len(m.Programs) == 0 {
		return fmt.Errorf("at least one [program.NAME] is required")
	}

	if len(m.Inputs) == 0 {
		return fmt.Errorf("at least one [input.NAME] is required")
	}

	for name, p := range m.Programs {
		if err := p.validate(); err != nil {
			return fmt.Errorf("program %q: %w", name, err)
		}
	}

	for name, in := range m.Inputs {
		if err := in.validate(); err != nil {
			return fmt.Errorf("input %q: %w", name, err)
		}
	}

	for name, p := range m.Parameters {
		if err := p.validate(); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}

	for name, p := range m.Programs {
		for _, next := range p.Next {
			if _, ok := m.Programs[next]; !ok {
				return fmt.Errorf("program %q: unknown next program %q", name, next)
			}
		}
	}

	return nil
}

func (p ProgramSpec) validate() error {
	sources := 0
	for _, s := range []string{p.Binary, p.Fetch, p.Git} {
		if s != "" {
			sources++
		}
	}

	if sources != 1 {
		return fmt.Errorf("exactly one of binary|fetch|git must be set, got %d", sources)
	}

	return nil
}

func (in InputSpec) validate() error {
	sources := 0
	for _, s := range []string{in.File, in.Glob, in.Fetch, in.Git} {
		if s != "" {
			sources++
		}
	}

	if sources > 1 {
		return fmt.Errorf("at most one of file|glob|fetch|git may be set, got %d", sources)
	}

	return nil
}

func (p ParameterSpec) validate() error {
	if len(p.Values) > 0 && len(p.Sub) > 0 {
		return fmt.Errorf("a parameter cannot set both values and sub")
	}

	var length = -1

	for subName, sub := range p.Sub {
		if length == -1 {
			length = len(sub.Values)
		} else if len(sub.Values) != length {
			return fmt.Errorf("sub-parameter %q has length %d, expected %d (all subs of one name must be equal length)",
				subName, len(sub.Values), length)
		}
	}

	return nil
}
