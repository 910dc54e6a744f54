package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalManifest = `
output_path = "out"
metrics_path = "metrics"
experiments_folder = "experiments"

[program.fib]
binary = "/bin/fib"
arguments = []

[input.i1]
file = "in1.txt"
arguments = []
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "benchlab.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadMinimalManifest(t *testing.T) {
	path := writeManifest(t, minimalManifest)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/fib", m.Programs["fib"].Binary)
}

func TestValidateRejectsMultipleProgramSources(t *testing.T) {
	body := strings.Replace(minimalManifest, "binary = \"/bin/fib\"\n", "binary = \"/bin/fib\"\nfetch = \"http://x/fib\"\n", 1)
	path := writeManifest(t, body)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsDanglingNext(t *testing.T) {
	body := strings.Replace(minimalManifest, "arguments = []\n", "arguments = []\nnext = [\"ghost\"]\n", 1)
	path := writeManifest(t, body)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsMismatchedSubParamLengths(t *testing.T) {
	body := minimalManifest + `
[parameter.x.sub.a]
values = ["1", "2", "3"]
[parameter.x.sub.b]
values = ["10", "20"]
`
	path := writeManifest(t, body)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSchemaMerge(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.toml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`
[[inputs]]
file = "a.txt"
[[inputs]]
file = "b.txt"
`), 0o644))

	body := "input_schema = \"" + schemaPath + "\"\n" + minimalManifest
	path := writeManifest(t, body)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", m.Inputs["0_i_schema"].File)
	assert.Equal(t, "b.txt", m.Inputs["1_i_schema"].File)
}
