// Package stats accumulates run statistics as mergeable partials.
//
// Each worker records into its own Partial; partials are folded together
// once all rows are processed. Merge is associative and commutative, so the
// final counts are identical no matter how the row set was split across
// workers or in what order partials arrive. This keeps the row-processing
// hot path free of shared counters and locks.
package stats

import "strconv"

// Partial is a mergeable fragment of run statistics. The zero value is
// ready to use.
type Partial struct {
	Total   uint64
	Valid   uint64
	Invalid uint64

	// ColumnInvalid counts validation failures per column name.
	ColumnInvalid map[string]uint64
}

// Record folds one processed row into the partial. failedColumns lists the
// names of columns whose validation failed for this row.
func (p *Partial) Record(valid bool, failedColumns []string) {
	p.Total++
	if valid {
		p.Valid++
		return
	}
	p.Invalid++
	for _, col := range failedColumns {
		if p.ColumnInvalid == nil {
			p.ColumnInvalid = make(map[string]uint64)
		}
		p.ColumnInvalid[col]++
	}
}

// Merge combines two partials into a new one. Neither operand is mutated.
// Merge(a, b) == Merge(b, a) and Merge(Merge(a, b), c) == Merge(a, Merge(b, c)).
func Merge(a, b Partial) Partial {
	out := Partial{
		Total:   a.Total + b.Total,
		Valid:   a.Valid + b.Valid,
		Invalid: a.Invalid + b.Invalid,
	}
	if len(a.ColumnInvalid) > 0 || len(b.ColumnInvalid) > 0 {
		out.ColumnInvalid = make(map[string]uint64, len(a.ColumnInvalid)+len(b.ColumnInvalid))
		for col, n := range a.ColumnInvalid {
			out.ColumnInvalid[col] += n
		}
		for col, n := range b.ColumnInvalid {
			out.ColumnInvalid[col] += n
		}
	}
	return out
}

// Run holds the finalized statistics for one run.
type Run struct {
	TotalCount         uint64
	ValidCount         uint64
	InvalidCount       uint64
	ColumnInvalidCount map[string]uint64
}

// Finalize folds any number of partials into the run totals.
func Finalize(partials ...Partial) Run {
	var acc Partial
	for _, p := range partials {
		acc = Merge(acc, p)
	}
	counts := acc.ColumnInvalid
	if counts == nil {
		counts = map[string]uint64{}
	}
	return Run{
		TotalCount:         acc.Total,
		ValidCount:         acc.Valid,
		InvalidCount:       acc.Invalid,
		ColumnInvalidCount: counts,
	}
}

// Profile metric type names, matching the profile destination layout.
const (
	MetricTotalCount   = "TOTAL_COUNT"
	MetricValidCount   = "VALID_COUNT"
	MetricInvalidCount = "INVALID_COUNT"

	// AllColumns is the column-name placeholder for whole-run metrics.
	AllColumns = "(ALL)"
)

// ProfileRow is one (columnname, metrictype, metricvalue) triple.
type ProfileRow struct {
	Column string
	Metric string
	Value  string
}

// ProfileRows serializes the run statistics for the profile destination:
// whole-run totals first, then per-column invalid counts in the provided
// column order (columns with zero failures are included, so downstream
// consumers see every column every run).
func (r Run) ProfileRows(columns []string) []ProfileRow {
	rows := make([]ProfileRow, 0, len(columns)+3)
	rows = append(rows,
		ProfileRow{AllColumns, MetricTotalCount, strconv.FormatUint(r.TotalCount, 10)},
		ProfileRow{AllColumns, MetricValidCount, strconv.FormatUint(r.ValidCount, 10)},
		ProfileRow{AllColumns, MetricInvalidCount, strconv.FormatUint(r.InvalidCount, 10)},
	)
	for _, col := range columns {
		rows = append(rows, ProfileRow{col, MetricInvalidCount, strconv.FormatUint(r.ColumnInvalidCount[col], 10)})
	}
	return rows
}
