package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSeqEmptyFolder(t *testing.T) {
	dir := t.TempDir()

	seq, err := NextSeq(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	e := &Experiment{Seq: 3, Env: EnvLocal, Home: dir, Runs: []Run{{ID: 0, Program: 0}}}
	require.NoError(t, Save(dir, e))

	loaded, err := Load(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, e.Seq, loaded.Seq)
	assert.Equal(t, e.Env, loaded.Env)
	require.Len(t, loaded.Runs, 1)
	assert.Equal(t, 0, loaded.Runs[0].ID)
}

func TestNextSeqPicksMax(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notanumber.toml"), []byte(""), 0o644))

	seq, err := NextSeq(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, seq)
}

func TestLoadLatest(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Save(dir, &Experiment{Seq: 1, Env: EnvLocal}))
	require.NoError(t, Save(dir, &Experiment{Seq: 2, Env: EnvSlurm}))

	latest, err := LoadLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Seq)
	assert.Equal(t, EnvSlurm, latest.Env)
}

func TestLoadLatestNoExperiments(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLatest(dir)
	assert.Error(t, err)
}

func TestPathMatchesSaveLocation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, &Experiment{Seq: 5, Env: EnvLocal}))

	loaded, err := LoadPath(Path(dir, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Seq)
}
