package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlab/benchlab/pkg/config"
)

func manifest(t *testing.T, mutate func(*config.Manifest)) *config.Manifest {
	t.Helper()

	dir := t.TempDir()

	binary := filepath.Join(dir, "fib")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\necho 55\n"), 0o755))

	inputFile := filepath.Join(dir, "in1.txt")
	require.NoError(t, os.WriteFile(inputFile, []byte("10"), 0o644))

	m := &config.Manifest{
		OutputPath:        filepath.Join(dir, "out"),
		MetricsPath:       filepath.Join(dir, "metrics"),
		ExperimentsFolder: filepath.Join(dir, "experiments"),
		Programs: map[string]config.ProgramSpec{
			"fib": {Binary: binary, Arguments: []string{}},
		},
		Inputs: map[string]config.InputSpec{
			"i1": {File: inputFile, Arguments: []string{}},
		},
	}

	if mutate != nil {
		mutate(m)
	}

	require.NoError(t, os.MkdirAll(dir, 0o755))

	return m
}

func TestMaterializeSingleRun(t *testing.T) {
	m := manifest(t, nil)

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	require.Len(t, exp.Runs, 1)

	r := exp.Runs[0]
	assert.Equal(t, 0, r.ID)
	assert.NotEqual(t, r.StdoutPath, r.StderrPath)
	assert.NotEqual(t, r.StdoutPath, r.MetricsPath)
	assert.NotEqual(t, r.StdoutPath, r.WorkDir)
}

func TestMaterializeDeterministic(t *testing.T) {
	m := manifest(t, nil)

	e1, err := Materialize(m, EnvLocal)
	require.NoError(t, err)

	e2, err := Materialize(m, EnvLocal)
	require.NoError(t, err)

	require.Equal(t, len(e1.Runs), len(e2.Runs))

	for i := range e1.Runs {
		assert.Equal(t, e1.Runs[i].ID, e2.Runs[i].ID)
		assert.True(t, e1.Runs[i].Input.Equal(e2.Runs[i].Input))
		assert.Equal(t, e1.Runs[i].StdoutPath, e2.Runs[i].StdoutPath)
	}
}

func TestMaterializeGlobExpansion(t *testing.T) {
	m := manifest(t, func(m *config.Manifest) {
		dir := filepath.Dir(m.OutputPath)
		dataDir := filepath.Join(dir, "data")
		_ = os.MkdirAll(dataDir, 0o755)
		_ = os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte("a"), 0o644)
		_ = os.WriteFile(filepath.Join(dataDir, "b.txt"), []byte("b"), 0o644)

		m.Inputs["i"] = config.InputSpec{Arguments: []string{"path|" + filepath.Join(dataDir, "*.txt")}}
		delete(m.Inputs, "i1")
	})

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	require.Len(t, exp.Runs, 2)

	for _, r := range exp.Runs {
		require.Len(t, r.Input.Arguments, 1)
		assert.NotContains(t, r.Input.Arguments[0], "path|")
	}

	assert.Equal(t, "i_i_glob_0", exp.Runs[0].GeneratedFromInput)
	assert.Equal(t, "i_i_glob_1", exp.Runs[1].GeneratedFromInput)
}

func TestMaterializeSubparamLockstep(t *testing.T) {
	m := manifest(t, func(m *config.Manifest) {
		m.Inputs["i1"] = config.InputSpec{Arguments: []string{"subparam|x.a", "subparam|x.b"}}
		m.Parameters = map[string]config.ParameterSpec{
			"x": {
				Sub: map[string]config.SubParameterSpec{
					"a": {Values: []string{"1", "2", "3"}},
					"b": {Values: []string{"10", "20", "30"}},
				},
			},
		}
	})

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	require.Len(t, exp.Runs, 3)

	pairs := map[string]string{}
	for _, r := range exp.Runs {
		pairs[r.Input.Arguments[0]] = r.Input.Arguments[1]
	}

	assert.Equal(t, "10", pairs["1"])
	assert.Equal(t, "20", pairs["2"])
	assert.Equal(t, "30", pairs["3"])
}

func TestMaterializeParameterGridSize(t *testing.T) {
	m := manifest(t, func(m *config.Manifest) {
		m.Inputs["i1"] = config.InputSpec{Arguments: []string{"param|n"}}
		m.Parameters = map[string]config.ParameterSpec{
			"n": {Values: []string{"1", "2", "3", "4"}},
		}
	})

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	assert.Len(t, exp.Runs, len(m.Programs)*4)
}

func TestMaterializePipelineChaining(t *testing.T) {
	m := manifest(t, func(m *config.Manifest) {
		spec := m.Programs["fib"]
		spec.Next = []string{"square"}
		m.Programs["fib"] = spec
		m.Programs["square"] = config.ProgramSpec{Binary: spec.Binary}
	})

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	require.Len(t, exp.Runs, 2)

	root, child := exp.Runs[0], exp.Runs[1]
	require.Nil(t, root.Parent)
	require.NotNil(t, child.Parent)
	assert.Equal(t, root.ID, *child.Parent)
}

func TestMaterializeDefaultsWrapper(t *testing.T) {
	m := manifest(t, nil)

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	assert.Equal(t, "benchlab wrapper", exp.Wrapper)
}

func TestMaterializeHonorsManifestWrapper(t *testing.T) {
	m := manifest(t, func(m *config.Manifest) { m.Wrapper = "/opt/benchlab/wrapper" })

	exp, err := Materialize(m, EnvLocal)
	require.NoError(t, err)
	assert.Equal(t, "/opt/benchlab/wrapper", exp.Wrapper)
}
