package slurm

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	"kernel.org/pub/linux/libs/security/libcap/cap"

	"github.com/benchlab/benchlab/internal/osexec"
	"github.com/benchlab/benchlab/internal/security"
)

// execMode names how Adapter reaches the sacct/sbatch/squeue/scancel
// binaries, mirroring the teacher's cliMode/capabilityMode/sudoMode ladder.
type execMode int

const (
	execNative execMode = iota
	execCapability
	execSudo
)

// requiredCaps are the capabilities a privileged benchlab install raises to
// run Slurm commands on behalf of a different job-submitting user.
var requiredCaps = []string{"cap_setuid", "cap_setgid"}

const securityCtxName = "slurm-cli"

// preflight resolves binDir (falling back to PATH) and picks the least
// privileged execMode the current process can get away with: native, then
// capability-raised, then sudo. It never hard-fails on the last rung — an
// Adapter that ends up execNative still works for a user who owns their own
// jobs, just can't see everyone else's.
func preflight(binDir string, logger *slog.Logger) (string, execMode, *security.SecurityContext, error) {
	resolvedDir := binDir

	if resolvedDir == "" {
		path, err := exec.LookPath("sacct")
		if err != nil {
			return "", 0, nil, fmt.Errorf("locating slurm binaries on PATH: %w", err)
		}

		resolvedDir = filepath.Dir(path)
	}

	if security.HasCaps(requiredCaps) || security.IsRoot() {
		logger.Debug("current process has the capabilities to act on behalf of other users")

		var caps []cap.Value

		for _, name := range requiredCaps {
			value, err := cap.FromName(name)
			if err != nil {
				logger.Debug("could not resolve capability name", "cap", name, "err", err)

				continue
			}

			caps = append(caps, value)
		}

		ctx, err := security.NewSecurityContext(&security.SCConfig{
			Logger: logger,
			Func:   security.ExecAsUser,
			Caps:   caps,
			Name:   securityCtxName,
		})
		if err != nil {
			return "", 0, nil, fmt.Errorf("creating slurm security context: %w", err)
		}

		return resolvedDir, execCapability, ctx, nil
	}

	sacctPath := filepath.Join(resolvedDir, "sacct")
	if _, err := osexec.ExecuteWithTimeout("sudo", []string{sacctPath, "--help"}, 5, nil); err == nil {
		logger.Info("sudo will be used to run slurm commands")

		return resolvedDir, execSudo, nil, nil
	}

	logger.Warn("slurm commands will run as the current user; jobs submitted by other users may not be visible")

	return resolvedDir, execNative, nil, nil
}

// run shells out to <binDir>/<name> args..., honoring the exec mode picked
// during preflight.
func (a *Adapter) run(ctx context.Context, name string, args []string) ([]byte, error) {
	binPath := filepath.Join(a.binDir, name)

	switch a.mode {
	case execCapability:
		cmd := append([]string{binPath}, args...)

		data := &security.ExecSecurityCtxData{
			Context: ctx,
			Cmd:     cmd,
			Environ: nil,
		}

		if err := a.securityCtx.Exec(data); err != nil {
			return nil, fmt.Errorf("running %s in security context: %w", name, err)
		}

		return data.StdOut, nil
	case execSudo:
		sudoArgs := append([]string{binPath}, args...)

		return osexec.ExecuteContext(ctx, "sudo", sudoArgs, nil)
	default:
		return osexec.ExecuteContext(ctx, binPath, args, nil)
	}
}
