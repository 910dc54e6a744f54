// Package analysis implements the post-run reporting layer (spec §4.9):
// a column-generator-driven table with an averaging footer, grouping by
// run attributes, and cactus-plot data extraction.
package analysis

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/benchlab/benchlab/pkg/experiment"
	"github.com/benchlab/benchlab/pkg/metrics"
	"github.com/benchlab/benchlab/pkg/status"
)

// RunView bundles one run with its current status and (if completed) its
// metrics record, the "Run-status" a ColumnGenerator is evaluated against.
type RunView struct {
	Run     experiment.Run
	Status  status.Status
	Metrics *metrics.Record
}

// ColumnGenerator is a pure projection from a run view to a table cell, plus
// an optional aggregate used to populate the footer row. Footer is nil for
// identity and status columns, which have no sensible average.
type ColumnGenerator struct {
	Header string
	Value  func(exp *experiment.Experiment, rv RunView) string
	Footer func(exp *experiment.Experiment, rows []RunView) string
}

// Table accumulates columns via AppendColumn and renders the same row data
// through go-pretty, so terminal and CSV output share one code path.
type Table struct {
	columns []ColumnGenerator
	rows    []RunView
}

// NewTable starts a table over rows; columns are added incrementally.
func NewTable(rows []RunView) *Table {
	return &Table{rows: rows}
}

// AppendColumn adds a column to the right of any already appended.
func (t *Table) AppendColumn(col ColumnGenerator) {
	t.columns = append(t.columns, col)
}

func (t *Table) writer(exp *experiment.Experiment) table.Writer {
	tw := table.NewWriter()
	tw.SuppressEmptyColumns()

	header := make(table.Row, len(t.columns))
	for i, col := range t.columns {
		header[i] = col.Header
	}

	tw.AppendHeader(header)

	for _, rv := range t.rows {
		row := make(table.Row, len(t.columns))
		for i, col := range t.columns {
			row[i] = col.Value(exp, rv)
		}

		tw.AppendRow(row)
	}

	if footer := t.footerRow(exp); footer != nil {
		tw.AppendSeparator()
		tw.AppendFooter(footer)
	}

	return tw
}

func (t *Table) footerRow(exp *experiment.Experiment) table.Row {
	var any bool

	footer := make(table.Row, len(t.columns))

	for i, col := range t.columns {
		if col.Footer == nil {
			footer[i] = ""

			continue
		}

		footer[i] = col.Footer(exp, t.rows)
		any = true
	}

	if !any {
		return nil
	}

	return footer
}

// Render writes the table as plain text to w.
func (t *Table) Render(exp *experiment.Experiment, w io.Writer) {
	tw := t.writer(exp)
	tw.SetOutputMirror(w)
	tw.Render()
}

// RenderCSV writes the table as CSV to w, reusing go-pretty's CSV writer
// rather than hand-rolling encoding/csv so terminal and CSV stay in sync.
func (t *Table) RenderCSV(exp *experiment.Experiment, w io.Writer) {
	tw := t.writer(exp)
	tw.SetOutputMirror(w)
	tw.RenderCSV()
}

// averageFooter builds a Footer func that sums extract over completed runs
// and divides by the completed count, using an integer accumulator (spec
// §4.9 "Averaging footers use integer accumulators").
func averageFooter(extract func(RunView) (int64, bool)) func(exp *experiment.Experiment, rows []RunView) string {
	return func(_ *experiment.Experiment, rows []RunView) string {
		var sum int64

		var count int64

		for _, rv := range rows {
			v, ok := extract(rv)
			if !ok {
				continue
			}

			sum += v
			count++
		}

		if count == 0 {
			return ""
		}

		return fmt.Sprintf("%d", sum/count)
	}
}

func completedRusage(rv RunView) (*metrics.Rusage, bool) {
	if rv.Metrics == nil || !rv.Metrics.IsCompleted() {
		return nil, false
	}

	return rv.Metrics.Rusage, true
}
