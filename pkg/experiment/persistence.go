package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/pkg/base"
)

// fileName returns the numbered TOML file name for seq.
func fileName(seq int) string {
	return strconv.Itoa(seq) + ".toml"
}

// NextSeq returns 1 + the maximum numeric basename of a .toml file present in
// folder, or 1 if folder is empty or missing (spec §4.1 "Id assignment").
func NextSeq(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if os.IsNotExist(err) {
		return 1, nil
	}

	if err != nil {
		return 0, base.Wrap(base.KindState, "list experiments folder", err, "")
	}

	max := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		name := strings.TrimSuffix(e.Name(), ".toml")
		if name == e.Name() {
			continue
		}

		if n, err := strconv.Atoi(name); err == nil && n > max {
			max = n
		}
	}

	return max + 1, nil
}

// Path returns the file path an experiment with the given seq is (or would
// be) stored at under folder, the form callers pass to LoadPath and to the
// wrapper protocol's `<experiment_path>` argument.
func Path(folder string, seq int) string {
	return filepath.Join(folder, fileName(seq))
}

// Save writes the experiment to "<seq>.toml" under folder atomically.
func Save(folder string, e *Experiment) error {
	path := filepath.Join(folder, fileName(e.Seq))
	if err := fileops.WriteTOMLAtomic(path, e); err != nil {
		return base.Wrap(base.KindState, "save experiment", err, "")
	}

	return nil
}

// Load reads the experiment with the given seq from folder.
func Load(folder string, seq int) (*Experiment, error) {
	path := filepath.Join(folder, fileName(seq))

	e, err := fileops.ReadTOML[Experiment](path)
	if err != nil {
		return nil, base.Wrap(base.KindState, "load experiment", err, fmt.Sprintf("does %s exist?", path))
	}

	return e, nil
}

// LoadPath reads the experiment at an exact file path, as addressed by the
// wrapper invocation's `<experiment_path>` argument (spec §6).
func LoadPath(path string) (*Experiment, error) {
	e, err := fileops.ReadTOML[Experiment](path)
	if err != nil {
		return nil, base.Wrap(base.KindState, "load experiment", err, fmt.Sprintf("does %s exist?", path))
	}

	return e, nil
}

// LoadLatest reads the experiment with the highest seq in folder.
func LoadLatest(folder string) (*Experiment, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, base.Wrap(base.KindState, "list experiments folder", err, "")
	}

	var seqs []int

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		name := strings.TrimSuffix(e.Name(), ".toml")
		if n, err := strconv.Atoi(name); err == nil {
			seqs = append(seqs, n)
		}
	}

	if len(seqs) == 0 {
		return nil, base.Wrap(base.KindState, "load latest experiment", fmt.Errorf("no experiments in %s", folder), "run `benchlab init` first")
	}

	sort.Sort(sort.Reverse(sort.IntSlice(seqs)))

	return Load(folder, seqs[0])
}
