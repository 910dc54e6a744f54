package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
)

// Identity columns.

func ColumnProgram() ColumnGenerator {
	return ColumnGenerator{
		Header: "program",
		Value: func(exp *experiment.Experiment, rv RunView) string {
			return exp.Programs[rv.Run.Program].Name
		},
	}
}

func ColumnInputFile() ColumnGenerator {
	return ColumnGenerator{
		Header: "input",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			return rv.Run.Input.File
		},
	}
}

func ColumnArguments() ColumnGenerator {
	return ColumnGenerator{
		Header: "args",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			return strings.Join(rv.Run.Input.Arguments, " ")
		},
	}
}

func ColumnGroup() ColumnGenerator {
	return ColumnGenerator{
		Header: "group",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			return rv.Run.Group
		},
	}
}

// Status columns.

func ColumnAfterscriptLabel() ColumnGenerator {
	return ColumnGenerator{
		Header: "label",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			return rv.Run.Label
		},
	}
}

func ColumnSlurm() ColumnGenerator {
	return ColumnGenerator{
		Header: "slurm",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			return rv.Run.SlurmID
		},
	}
}

func ColumnFSStatus() ColumnGenerator {
	return ColumnGenerator{
		Header: "status",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			return rv.Status.FS.String()
		},
	}
}

func ColumnExitCode() ColumnGenerator {
	return ColumnGenerator{
		Header: "exit",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			if rv.Status.ExitCode == nil {
				return ""
			}

			return strconv.Itoa(*rv.Status.ExitCode)
		},
	}
}

// Measurement columns. Each has an averaging footer over completed runs.

func ColumnWallTimeMicros() ColumnGenerator {
	return ColumnGenerator{
		Header: "wall_us",
		Value: func(_ *experiment.Experiment, rv RunView) string {
			if rv.Metrics == nil || !rv.Metrics.IsCompleted() {
				return ""
			}

			return fmt.Sprintf("%d", rv.Metrics.WallMicros)
		},
		Footer: averageFooter(func(rv RunView) (int64, bool) {
			if rv.Metrics == nil || !rv.Metrics.IsCompleted() {
				return 0, false
			}

			return rv.Metrics.WallMicros, true
		}),
	}
}

func rusageColumn(header string, extract func(*metrics.Rusage) int64) ColumnGenerator {
	return ColumnGenerator{
		Header: header,
		Value: func(_ *experiment.Experiment, rv RunView) string {
			ru, ok := completedRusage(rv)
			if !ok || ru == nil {
				return ""
			}

			return fmt.Sprintf("%d", extract(ru))
		},
		Footer: averageFooter(func(rv RunView) (int64, bool) {
			ru, ok := completedRusage(rv)
			if !ok || ru == nil {
				return 0, false
			}

			return extract(ru), true
		}),
	}
}

func ColumnUserTimeMicros() ColumnGenerator {
	return rusageColumn("user_us", func(r *metrics.Rusage) int64 { return r.UserTimeMicros })
}

func ColumnSystemTimeMicros() ColumnGenerator {
	return rusageColumn("sys_us", func(r *metrics.Rusage) int64 { return r.SystemTimeMicros })
}

func ColumnMaxRSSKB() ColumnGenerator {
	return rusageColumn("maxrss_kb", func(r *metrics.Rusage) int64 { return r.MaxRSSKB })
}

func ColumnSharedRSSKB() ColumnGenerator {
	return rusageColumn("sharedrss_kb", func(r *metrics.Rusage) int64 { return r.SharedRSSKB })
}

func ColumnUnsharedDataKB() ColumnGenerator {
	return rusageColumn("unshared_data_kb", func(r *metrics.Rusage) int64 { return r.UnsharedDataKB })
}

func ColumnUnsharedStackKB() ColumnGenerator {
	return rusageColumn("unshared_stack_kb", func(r *metrics.Rusage) int64 { return r.UnsharedStackKB })
}

func ColumnMinorFaults() ColumnGenerator {
	return rusageColumn("minflt", func(r *metrics.Rusage) int64 { return r.MinorFaults })
}

func ColumnMajorFaults() ColumnGenerator {
	return rusageColumn("majflt", func(r *metrics.Rusage) int64 { return r.MajorFaults })
}

func ColumnSwaps() ColumnGenerator {
	return rusageColumn("swaps", func(r *metrics.Rusage) int64 { return r.Swaps })
}

func ColumnBlockInputOps() ColumnGenerator {
	return rusageColumn("block_in", func(r *metrics.Rusage) int64 { return r.BlockInputOps })
}

func ColumnBlockOutputOps() ColumnGenerator {
	return rusageColumn("block_out", func(r *metrics.Rusage) int64 { return r.BlockOutputOps })
}

func ColumnVoluntaryCtxSwitches() ColumnGenerator {
	return rusageColumn("vol_ctx", func(r *metrics.Rusage) int64 { return r.VoluntaryCtxSwitches })
}

func ColumnInvoluntaryCtxSwitches() ColumnGenerator {
	return rusageColumn("invol_ctx", func(r *metrics.Rusage) int64 { return r.InvolCtxSwitches })
}

func ColumnSignals() ColumnGenerator {
	return rusageColumn("signals", func(r *metrics.Rusage) int64 { return r.Signals })
}

func ColumnMsgsSent() ColumnGenerator {
	return rusageColumn("msgs_sent", func(r *metrics.Rusage) int64 { return r.MsgsSent })
}

func ColumnMsgsReceived() ColumnGenerator {
	return rusageColumn("msgs_received", func(r *metrics.Rusage) int64 { return r.MsgsReceived })
}

// DefaultColumns is the standard column set for `analyse table`: identity,
// status, then the full measurement block.
func DefaultColumns() []ColumnGenerator {
	return []ColumnGenerator{
		ColumnProgram(),
		ColumnInputFile(),
		ColumnArguments(),
		ColumnGroup(),
		ColumnFSStatus(),
		ColumnExitCode(),
		ColumnSlurm(),
		ColumnAfterscriptLabel(),
		ColumnWallTimeMicros(),
		ColumnUserTimeMicros(),
		ColumnSystemTimeMicros(),
		ColumnMaxRSSKB(),
		ColumnSharedRSSKB(),
		ColumnUnsharedDataKB(),
		ColumnUnsharedStackKB(),
		ColumnMinorFaults(),
		ColumnMajorFaults(),
		ColumnSwaps(),
		ColumnBlockInputOps(),
		ColumnBlockOutputOps(),
		ColumnVoluntaryCtxSwitches(),
		ColumnInvoluntaryCtxSwitches(),
		ColumnSignals(),
		ColumnMsgsSent(),
		ColumnMsgsReceived(),
	}
}
