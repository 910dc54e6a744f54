// Package security runs privileged subprocess calls (sacct/sbatch/squeue/scancel)
// inside a capability-scoped context so benchlab never needs to run fully as root.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchlab/benchlab/internal/osexec"
	"kernel.org/pub/linux/libs/security/libcap/cap"
)

// Custom errors.
var (
	ErrNoSecurityCtx            = errors.New("security context not found")
	ErrSecurityCtxDataAssertion = errors.New("data type cannot be asserted")
)

// SCConfig configures a SecurityContext.
type SCConfig struct {
	Logger *slog.Logger
	Func   func(any) error
	Caps   []cap.Value
	Name   string

	// ExecNatively executes Func without raising capabilities at all, the
	// escape hatch used when the current process already has the caps it
	// needs (e.g. when cap_setuid/cap_setgid were granted via setcap on the
	// benchlab binary itself).
	ExecNatively bool
}

// SecurityContext runs a function with a fixed set of Linux capabilities raised
// only for the duration of the call, on a thread locked to the OS thread.
type SecurityContext struct {
	logger       *slog.Logger
	launcher     *cap.Launcher
	f            func(any) error
	caps         []cap.Value
	capSet       *cap.Set
	execNatively bool
	Name         string
}

// NewSecurityContext returns a new SecurityContext.
func NewSecurityContext(c *SCConfig) (*SecurityContext, error) {
	s := &SecurityContext{
		logger:       c.Logger,
		caps:         c.Caps,
		Name:         c.Name,
		capSet:       cap.NewSet(),
		execNatively: c.ExecNatively,
		f:            c.Func,
	}

	s.launcher = cap.FuncLauncher(s.targetFunc)

	return s, nil
}

// Exec runs the wrapped function inside the security context.
func (s *SecurityContext) Exec(data any) error {
	if s.execNatively {
		return s.f(data)
	}

	if _, err := s.launcher.Launch(data); err != nil {
		return err
	}

	return nil
}

func (s *SecurityContext) raiseCaps() error {
	if len(s.caps) == 0 {
		return nil
	}

	if err := s.capSet.SetFlag(cap.Permitted, true, s.caps...); err != nil {
		return fmt.Errorf("raising: error setting permitted capabilities: %w", err)
	}

	if err := s.capSet.SetFlag(cap.Effective, true, s.caps...); err != nil {
		return fmt.Errorf("raising: error setting effective capabilities: %w", err)
	}

	return s.capSet.SetProc() //nolint:wrapcheck
}

func (s *SecurityContext) dropCaps() error {
	if len(s.caps) == 0 {
		return nil
	}

	if err := s.capSet.SetFlag(cap.Effective, false, s.caps...); err != nil {
		return fmt.Errorf("dropping: error setting effective capabilities: %w", err)
	}

	return s.capSet.SetProc() //nolint:wrapcheck
}

func (s *SecurityContext) targetFunc(data any) error {
	if err := s.raiseCaps(); err != nil {
		s.logger.Error("Failed to raise capabilities", "name", s.Name, "err", err)
	}

	s.logger.Debug("Executing in security context", "name", s.Name)

	err := s.f(data)

	if dropErr := s.dropCaps(); dropErr != nil {
		s.logger.Warn("Failed to drop capabilities", "name", s.Name, "err", dropErr)
	}

	return err
}

// ExecSecurityCtxData is the input/output payload for ExecAsUser.
type ExecSecurityCtxData struct {
	Context context.Context //nolint:containedctx
	Cmd     []string
	Environ []string
	UID     int
	GID     int
	StdOut  []byte
}

// ExecAsUser executes a subprocess as a given user inside a security context.
func ExecAsUser(data any) error {
	ctxData, ok := data.(*ExecSecurityCtxData)
	if !ok {
		return ErrSecurityCtxDataAssertion
	}

	ctx := ctxData.Context

	var cancel context.CancelFunc

	if ctx == nil {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	var (
		stdOut []byte
		err    error
	)

	if len(ctxData.Cmd) > 1 {
		stdOut, err = osexec.ExecuteAsContext(ctx, ctxData.Cmd[0], ctxData.Cmd[1:], ctxData.UID, ctxData.GID, ctxData.Environ)
	} else {
		stdOut, err = osexec.ExecuteAsContext(ctx, ctxData.Cmd[0], nil, ctxData.UID, ctxData.GID, ctxData.Environ)
	}

	if err != nil {
		return err
	}

	ctxData.StdOut = stdOut

	return nil
}
