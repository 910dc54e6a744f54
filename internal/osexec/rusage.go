package osexec

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Rusage is the subset of the kernel resource-usage structure benchlab persists
// per run. Durations, not raw timeval structs, so callers never touch syscall types.
type Rusage struct {
	UserTime             time.Duration
	SystemTime           time.Duration
	MaxRSSKB             int64
	SharedRSSKB          int64
	UnsharedDataKB       int64
	UnsharedStackKB      int64
	MinorFaults          int64
	MajorFaults          int64
	Swaps                int64
	BlockInputOps        int64
	BlockOutputOps       int64
	VoluntaryCtxSwitches int64
	InvolCtxSwitches     int64
	Signals              int64
	MsgsSent             int64
	MsgsReceived         int64
}

// SpawnResult is the outcome of a Spawn call: the wall-clock duration, the
// target's exit code, and rusage if the platform supports Wait4-based collection.
type SpawnResult struct {
	PID      int
	Wall     time.Duration
	ExitCode int
	Rusage   *Rusage
}

// SpawnSpec describes a single child-process invocation for the metrics wrapper.
type SpawnSpec struct {
	Path   string
	Args   []string
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	Dir    string
	Env    []string
}

// Spawn starts the target described by spec, waits for it with resource
// accounting via Wait4, and returns wall time + exit code + rusage. The clock
// starts immediately before fork/exec and stops immediately after reap, as
// required by the wrapper execution protocol.
func Spawn(ctx context.Context, spec SpawnSpec) (*SpawnResult, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var rusage unix.Rusage

	pid := cmd.Process.Pid

	var status unix.WaitStatus

	_, waitErr := unix.Wait4(pid, &status, 0, &rusage)

	wall := time.Since(start)

	result := &SpawnResult{PID: pid, Wall: wall}

	switch {
	case waitErr != nil:
		// Fall back to the standard library's reaper if Wait4 raced with it
		// (can happen when os/exec has already reaped the child).
		err := cmd.Wait()
		result.ExitCode = exitCodeFromError(err)
	case status.Exited():
		result.ExitCode = status.ExitStatus()
		result.Rusage = rusageFromUnix(&rusage)
	case status.Signaled():
		result.ExitCode = 128 + int(status.Signal())
		result.Rusage = rusageFromUnix(&rusage)
	default:
		result.ExitCode = -1
	}

	return result, nil
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}

	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if e, ok := err.(*exec.ExitError); ok { //nolint:errorlint
		*target = e

		return true
	}

	return false
}

func rusageFromUnix(r *unix.Rusage) *Rusage {
	return &Rusage{
		UserTime:             timevalToDuration(r.Utime),
		SystemTime:           timevalToDuration(r.Stime),
		MaxRSSKB:             int64(r.Maxrss),
		SharedRSSKB:          int64(r.Ixrss),
		UnsharedDataKB:       int64(r.Idrss),
		UnsharedStackKB:      int64(r.Isrss),
		MinorFaults:          int64(r.Minflt),
		MajorFaults:          int64(r.Majflt),
		Swaps:                int64(r.Nswap),
		BlockInputOps:        int64(r.Inblock),
		BlockOutputOps:       int64(r.Oublock),
		VoluntaryCtxSwitches: int64(r.Nvcsw),
		InvolCtxSwitches:     int64(r.Nivcsw),
		Signals:              int64(r.Nsignals),
		MsgsSent:             int64(r.Msgsnd),
		MsgsReceived:         int64(r.Msgrcv),
	}
}

func timevalToDuration(tv unix.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}
