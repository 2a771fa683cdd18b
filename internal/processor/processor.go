// Package processor implements the per-row cleanse-and-validate engine.
//
// A Processor is built once per run from the column schema and the policy
// registry, and is then invoked independently for every input row — from as
// many goroutines as the caller likes. Process reads only the immutable
// schema/policy state and returns everything it produced (output row plus
// per-column failure flags), so there is no cross-row coordination and no
// locking on the hot path; callers merge the per-row statistics afterwards
// (see the stats package).
package processor

import (
	"fmt"

	"cleanse/internal/coltype"
	"cleanse/internal/policy"
)

// Marker values written to the valid/invalid column.
const (
	MarkerValid   = "1"
	MarkerInvalid = "0"
)

// Result is the outcome of processing one row.
type Result struct {
	// Values is the output row: cleansed values in original order with the
	// valid/invalid marker and reject-reason payload inserted before any
	// trailing partition columns.
	Values []string

	// Valid mirrors the marker column.
	Valid bool

	// ColumnFailures flags, per schema column position, whether that
	// column's validation failed. The caller folds these into run
	// statistics; the processor itself keeps no counters.
	ColumnFailures []bool
}

// Processor validates and cleanses rows against a fixed schema and policy
// set. Immutable after New; safe for concurrent use.
type Processor struct {
	schema   []coltype.Column
	types    []coltype.Descriptor
	policies []policy.FieldPolicy

	// trailing counts schema columns (from the end) that must remain last
	// in the output layout, e.g. a partition timestamp. The marker and
	// reject-reason columns are inserted immediately before them.
	trailing int

	// nullMarker, when non-empty, is an input token treated as absent
	// (e.g. `\N` in database dumps).
	nullMarker string
}

// Option configures a Processor.
type Option func(*Processor)

// WithTrailingColumns designates the last n schema columns as positional
// trailers (partition keys) that stay last in the output row. The caller
// designates trailers explicitly; the processor never infers them.
func WithTrailingColumns(n int) Option {
	return func(p *Processor) { p.trailing = n }
}

// WithNullMarker treats token as an explicit null in input rows.
func WithNullMarker(token string) Option {
	return func(p *Processor) { p.nullMarker = token }
}

// New builds a Processor for the given positional schema. Policies and type
// descriptors are resolved once, here, never per row.
func New(schema []coltype.Column, reg *policy.Registry, opts ...Option) (*Processor, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("processor: schema must not be empty")
	}
	p := &Processor{
		schema: schema,
		types:  coltype.ForSchema(schema),
	}
	p.policies = make([]policy.FieldPolicy, len(schema))
	for i, c := range schema {
		p.policies[i] = reg.Resolve(c.Name)
	}
	for _, o := range opts {
		o(p)
	}
	if p.trailing < 0 || p.trailing >= len(schema) {
		return nil, fmt.Errorf("processor: %d trailing columns out of range for %d-column schema", p.trailing, len(schema))
	}
	return p, nil
}

// Columns returns the schema column names in positional order.
func (p *Processor) Columns() []string {
	names := make([]string, len(p.schema))
	for i, c := range p.schema {
		names[i] = c.Name
	}
	return names
}

// MarkerIndex returns the output position of the valid/invalid marker; the
// reject-reason column always follows it directly.
func (p *Processor) MarkerIndex() int { return len(p.schema) - p.trailing }

// Process cleanses and validates one input row.
//
// Rows shorter than the schema are tolerated: missing fields count as
// absent. An all-empty row is forced invalid regardless of per-field
// outcomes, so blank lines in source data cannot slip through nullable
// columns. An unexpected failure while processing the row is degraded to an
// invalid row with a diagnostic reason rather than aborting the run.
func (p *Processor) Process(row []string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = p.failRow(row, fmt.Sprintf("row processing failed: %v", r))
		}
	}()

	n := len(p.schema)
	cut := n - p.trailing
	cleansed := make([]string, n)
	flags := make([]bool, n)
	var failures []ValidationResult
	empties := 0

	for idx := 0; idx < n; idx++ {
		value := p.fieldAt(row, idx)
		// Trailing partition columns always carry the partition value, so
		// they are excluded from blank-line detection.
		if value == "" && idx < cut {
			empties++
		}

		value = policy.Standardize(p.policies[idx], value)
		cleansed[idx] = value

		if result := p.validateField(idx, value); !result.IsValid() {
			flags[idx] = true
			failures = append(failures, result)
		}
	}

	// A row whose every data column is empty is a blank line, not data.
	if empties == cut {
		failures = append(failures, failRow("empty", "Row is empty"))
	}

	valid := len(failures) == 0
	return Result{
		Values:         p.outputRow(cleansed, valid, encodeReasons(failures)),
		Valid:          valid,
		ColumnFailures: flags,
	}
}

// fieldAt extracts the value at idx, mapping short rows and explicit null
// markers to the empty string.
func (p *Processor) fieldAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	v := row[idx]
	if p.nullMarker != "" && v == p.nullMarker {
		return ""
	}
	return v
}

// outputRow lays out the cleansed values plus the marker and reject-reason
// columns, keeping any designated trailing partition columns last.
func (p *Processor) outputRow(cleansed []string, valid bool, reason string) []string {
	n := len(cleansed)
	cut := n - p.trailing

	out := make([]string, 0, n+2)
	out = append(out, cleansed[:cut]...)
	if valid {
		out = append(out, MarkerValid)
	} else {
		out = append(out, MarkerInvalid)
	}
	out = append(out, reason)
	out = append(out, cleansed[cut:]...)
	return out
}

// failRow produces the Result for a row that could not be processed at all.
// The raw values are passed through untouched so the invalid destination
// still captures what arrived.
func (p *Processor) failRow(row []string, msg string) Result {
	n := len(p.schema)
	values := make([]string, n)
	for i := range values {
		values[i] = p.fieldAt(row, i)
	}
	reason := encodeReasons([]ValidationResult{failRow("error", msg)})
	return Result{
		Values:         p.outputRow(values, false, reason),
		Valid:          false,
		ColumnFailures: make([]bool, n),
	}
}
