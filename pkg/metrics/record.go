// Package metrics implements the per-run metrics record format and the
// wrapper execution protocol that produces it (spec §4.3).
package metrics

import (
	"time"

	"github.com/benchlab/benchlab/internal/fileops"
	"github.com/benchlab/benchlab/internal/osexec"
	"github.com/benchlab/benchlab/pkg/base"
)

// Status tags a Record as a placeholder or a final measurement.
type Status string

// Status values.
const (
	StatusNotCompleted Status = "not_completed"
	StatusDone         Status = "done"
)

// Rusage is the on-disk counterpart of internal/osexec.Rusage: durations as
// microsecond integers so the TOML file stays simple to parse externally.
type Rusage struct {
	UserTimeMicros       int64 `toml:"utime_micros"`
	SystemTimeMicros     int64 `toml:"stime_micros"`
	MaxRSSKB             int64 `toml:"max_rss_kb"`
	SharedRSSKB          int64 `toml:"shared_rss_kb"`
	UnsharedDataKB       int64 `toml:"unshared_data_kb"`
	UnsharedStackKB      int64 `toml:"unshared_stack_kb"`
	MinorFaults          int64 `toml:"minor_faults"`
	MajorFaults          int64 `toml:"major_faults"`
	Swaps                int64 `toml:"swaps"`
	BlockInputOps        int64 `toml:"block_input_ops"`
	BlockOutputOps       int64 `toml:"block_output_ops"`
	VoluntaryCtxSwitches int64 `toml:"voluntary_ctx_switches"`
	InvolCtxSwitches     int64 `toml:"involuntary_ctx_switches"`
	Signals              int64 `toml:"signals"`
	MsgsSent             int64 `toml:"msgs_sent"`
	MsgsReceived         int64 `toml:"msgs_received"`
}

// Record is the per-run metrics file contents: either a running placeholder
// or a final measurement. Absent Rusage means the platform didn't support
// rusage collection, not that the run used none.
type Record struct {
	Status     Status  `toml:"status"`
	WallMicros int64   `toml:"wall_micros,omitempty"`
	ExitCode   int     `toml:"exit_code,omitempty"`
	Rusage     *Rusage `toml:"rusage,omitempty"`
}

// IsCompleted reports whether the record represents a final measurement
// (spec §3 "A run is completed iff a well-formed metrics record exists").
func (r *Record) IsCompleted() bool {
	return r != nil && r.Status == StatusDone
}

// WritePlaceholder marks a run observably "running" before the target is
// spawned (spec §4.3 step 3).
func WritePlaceholder(path string) error {
	if err := fileops.WriteTOMLAtomic(path, Record{Status: StatusNotCompleted}); err != nil {
		return base.Wrap(base.KindWrapper, "write placeholder metrics", err, "")
	}

	return nil
}

// WriteDone persists the final measurement atomically (spec §4.3 step 6).
func WriteDone(path string, wall time.Duration, exitCode int, ru *osexec.Rusage) error {
	rec := Record{Status: StatusDone, WallMicros: wall.Microseconds(), ExitCode: exitCode}
	if ru != nil {
		rec.Rusage = &Rusage{
			UserTimeMicros:       ru.UserTime.Microseconds(),
			SystemTimeMicros:     ru.SystemTime.Microseconds(),
			MaxRSSKB:             ru.MaxRSSKB,
			SharedRSSKB:          ru.SharedRSSKB,
			UnsharedDataKB:       ru.UnsharedDataKB,
			UnsharedStackKB:      ru.UnsharedStackKB,
			MinorFaults:          ru.MinorFaults,
			MajorFaults:          ru.MajorFaults,
			Swaps:                ru.Swaps,
			BlockInputOps:        ru.BlockInputOps,
			BlockOutputOps:       ru.BlockOutputOps,
			VoluntaryCtxSwitches: ru.VoluntaryCtxSwitches,
			InvolCtxSwitches:     ru.InvolCtxSwitches,
			Signals:              ru.Signals,
			MsgsSent:             ru.MsgsSent,
			MsgsReceived:         ru.MsgsReceived,
		}
	}

	if err := fileops.WriteTOMLAtomic(path, rec); err != nil {
		return base.Wrap(base.KindWrapper, "write metrics record", err, "")
	}

	return nil
}

// Load reads a run's metrics file. A missing file is returned as an error
// like any other read failure; pkg/status treats any load error as a
// pending run (spec §7 "missing metrics file => interpret as pending").
func Load(path string) (*Record, error) {
	rec, err := fileops.ReadTOML[Record](path)
	if err != nil {
		return nil, err
	}

	return rec, nil
}
