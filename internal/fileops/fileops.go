// Package fileops implements the single choke point through which benchlab
// touches the filesystem: path canonicalization, dry-run-aware scoped
// reads/writes, TOML (de)serialization, and executable-bit checks.
package fileops

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/benchlab/benchlab/internal/common"
	"github.com/wneessen/go-fileperm"
)

// Canonicalize resolves path to an absolute, symlink-free form. Unlike
// filepath.EvalSymlinks alone, it tolerates a leaf that does not exist yet
// (output paths are canonicalized before they are created).
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %s: %w", path, err)
	}

	dir, base := filepath.Split(abs)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		// Parent does not exist yet (common for work dirs about to be
		// created); fall back to the unresolved absolute path.
		return abs, nil //nolint:nilerr
	}

	return filepath.Join(resolvedDir, base), nil
}

// Accessor is a root-anchored, dry-run-aware file accessor. Every write goes
// through it so `--dry-run` can make benchlab mutate nothing (testable
// property 10).
type Accessor struct {
	Root   string
	DryRun bool
	Logger *slog.Logger
}

// New returns an Accessor rooted at root.
func New(root string, dryRun bool, logger *slog.Logger) *Accessor {
	return &Accessor{Root: root, DryRun: dryRun, Logger: logger}
}

// resolve joins path under a.Root and refuses anything that escapes it.
func (a *Accessor) resolve(path string) (string, error) {
	full := filepath.Join(a.Root, path)

	rel, err := filepath.Rel(a.Root, full)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == "../" {
		return "", fmt.Errorf("path %s escapes accessor root %s", path, a.Root)
	}

	return full, nil
}

// MkdirAll creates dir (and parents) under the accessor root, or logs and
// no-ops in dry-run mode.
func (a *Accessor) MkdirAll(path string, perm os.FileMode) error {
	full, err := a.resolve(path)
	if err != nil {
		return err
	}

	if a.DryRun {
		a.Logger.Info("dry-run: would create directory", "path", full)

		return nil
	}

	return os.MkdirAll(full, perm)
}

// WriteFile writes data to path under the accessor root atomically (temp file
// + rename), or logs and no-ops in dry-run mode.
func (a *Accessor) WriteFile(path string, data []byte, perm os.FileMode) error {
	full, err := a.resolve(path)
	if err != nil {
		return err
	}

	if a.DryRun {
		a.Logger.Info("dry-run: would write file", "path", full, "bytes", len(data))

		return nil
	}

	return WriteFileAtomic(full, data, perm)
}

// WriteFileAtomic writes data to path via temp-file-and-rename so readers
// never observe a half-written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+common.TempSuffix()+".tmp")

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}

	return nil
}

// ReadTOML decodes the TOML file at path into a new *T. Unknown top-level
// keys are rejected, matching the manifest contract ("Unknown fields are
// rejected").
func ReadTOML[T any](path string) (*T, error) {
	v := new(T)

	meta, err := toml.DecodeFile(path, v)
	if err != nil {
		return nil, fmt.Errorf("decode TOML %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown fields in %s: %v", path, undecoded)
	}

	return v, nil
}

// WriteTOMLAtomic encodes v as TOML and writes it to path atomically.
func WriteTOMLAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+common.TempSuffix()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("open temp file %s: %w", tmp, err)
	}

	enc := toml.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return fmt.Errorf("encode TOML to %s: %w", tmp, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("close temp file %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}

	return nil
}

// IsExecutable reports whether path has any execute bit set for the current
// user, checked via go-fileperm the way afterscripts and program binaries are
// validated before being spawned.
func IsExecutable(path string) (bool, error) {
	perms, err := fileperm.New(path)
	if err != nil {
		return false, fmt.Errorf("stat permissions for %s: %w", path, err)
	}

	if perms.Stat.IsDir() {
		return false, fmt.Errorf("%s is a directory, not an executable", path)
	}

	if perms.UserReadExecutable() {
		return true, nil
	}

	// Fall back to "other" read+execute bits, matching how a file shared
	// from another user's checkout is still runnable.
	return perms.Stat.Mode().Perm()&fileperm.OsOthR != 0 && perms.Stat.Mode().Perm()&fileperm.OsOthX != 0, nil
}
