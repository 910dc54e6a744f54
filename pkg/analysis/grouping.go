package analysis

import "github.com/benchlab/benchlab/pkg/experiment"

// Predicate extracts the attribute a grouping level partitions on.
type Predicate func(exp *experiment.Experiment, rv RunView) string

// ByProgram groups by program name.
func ByProgram(exp *experiment.Experiment, rv RunView) string {
	return exp.Programs[rv.Run.Program].Name
}

// ByInput groups by resolved input file path.
func ByInput(_ *experiment.Experiment, rv RunView) string {
	return rv.Run.Input.File
}

// ByGroup groups by the run's declared input group.
func ByGroup(_ *experiment.Experiment, rv RunView) string {
	return rv.Run.Group
}

// Partition is one leaf of a grouping: the attribute values that produced it
// (one per predicate, in order) and the rows that share them.
type Partition struct {
	Key  []string
	Rows []RunView
}

// Group applies predicates successively (spec §4.9): each predicate splits
// every current partition on equality of the attribute it extracts. With no
// predicates, Group returns a single partition holding every row.
func Group(exp *experiment.Experiment, rows []RunView, predicates ...Predicate) []Partition {
	partitions := []Partition{{Rows: rows}}

	for _, pred := range predicates {
		var next []Partition

		for _, part := range partitions {
			buckets := map[string][]RunView{}

			var order []string

			for _, rv := range part.Rows {
				k := pred(exp, rv)
				if _, ok := buckets[k]; !ok {
					order = append(order, k)
				}

				buckets[k] = append(buckets[k], rv)
			}

			for _, k := range order {
				key := append(append([]string(nil), part.Key...), k)
				next = append(next, Partition{Key: key, Rows: buckets[k]})
			}
		}

		partitions = next
	}

	return partitions
}
