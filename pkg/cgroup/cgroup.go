// Package cgroup applies a run's resource limits to a cgroup before the
// metrics wrapper spawns the target, best-effort on hosts where cgroup v2 or
// root privileges are unavailable.
package cgroup

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/containerd/cgroups/v3"
	"github.com/containerd/cgroups/v3/cgroup2"

	"github.com/benchlab/benchlab/pkg/experiment"
)

// Handle is a live (or no-op, on an unsupported host) cgroup scoped to one
// run. Callers must Close it once the run's process has exited.
type Handle struct {
	manager *cgroup2.Manager
	logger  *slog.Logger
}

// Apply creates a cgroup named for the run and sets cpu.max/memory.max from
// limits. Any failure along the way (non-Linux, cgroup v1 host, missing
// root) degrades to a no-op Handle rather than failing the run: resource
// enforcement is an optimization here, not a correctness requirement.
func Apply(runName string, limits experiment.ResourceLimits, logger *slog.Logger) *Handle {
	if cgroups.Mode() != cgroups.Unified {
		logger.Debug("cgroup v2 unavailable, continuing without enforcement", "run", runName)

		return &Handle{logger: logger}
	}

	res := &cgroup2.Resources{}

	if limits.CPUs > 0 {
		quota := int64(limits.CPUs) * 100000
		period := uint64(100000)
		res.CPU = &cgroup2.CPU{Max: cgroup2.NewCPUMax(&quota, &period)}
	}

	if mem, ok := totalMemBytes(limits); ok {
		res.Memory = &cgroup2.Memory{Max: &mem}
	}

	mgr, err := cgroup2.NewManager("/sys/fs/cgroup", "/benchlab/"+runName, res)
	if err != nil {
		logger.Debug("could not create cgroup, continuing without enforcement", "run", runName, "err", err)

		return &Handle{logger: logger}
	}

	return &Handle{manager: mgr, logger: logger}
}

// AddProc enrolls pid into the cgroup. No-op when Apply degraded.
func (h *Handle) AddProc(pid int) {
	if h.manager == nil {
		return
	}

	if err := h.manager.AddProc(uint64(pid)); err != nil {
		h.logger.Debug("could not add process to cgroup", "pid", pid, "err", err)
	}
}

// Close deletes the cgroup. No-op when Apply degraded.
func (h *Handle) Close() {
	if h.manager == nil {
		return
	}

	if err := h.manager.Delete(); err != nil {
		h.logger.Debug("could not delete cgroup", "err", err)
	}
}

func totalMemBytes(limits experiment.ResourceLimits) (int64, bool) {
	if limits.MemPerCPU == "" {
		return 0, false
	}

	perCPU, err := parseSize(limits.MemPerCPU)
	if err != nil {
		return 0, false
	}

	cpus := limits.CPUs
	if cpus < 1 {
		cpus = 1
	}

	return perCPU * int64(cpus), true
}

// parseSize parses a size like "2G", "512M", "1024K", or a bare byte count.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	suffix := s[len(s)-1]

	switch suffix {
	case 'K', 'k':
		mult = 1024
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}

	return n * mult, nil
}
