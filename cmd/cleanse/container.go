// Package main wires the cleanse run end-to-end: CSV reading, per-row
// cleanse/validate, and batched loading of the valid, invalid, and profile
// destinations. This file keeps the CLI layer thin: it depends only on
// storage-agnostic interfaces and never imports database drivers or
// backend-specific packages directly.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cleanse/internal/coltype"
	"cleanse/internal/config"
	"cleanse/internal/metrics"
	"cleanse/internal/policy"
	"cleanse/internal/processor"
	"cleanse/internal/source"
	"cleanse/internal/stats"
	"cleanse/internal/storage"
)

const (
	thisMany = 3

	// rejectReasonColumn is the reject-reason column name in the invalid
	// destination.
	rejectReasonColumn = "dlp_reject_reason"
)

// Destination table suffixes derived from storage.db.entity.
const (
	suffixValid   = "_valid"
	suffixInvalid = "_invalid"
	suffixProfile = "_profile"
)

// counters holds cross-goroutine load statistics for the streaming run.
// Row validity statistics live in per-worker stats.Partial values instead;
// only the plumbing around the processor is counted here.
type counters struct {
	parsed          atomic.Int64 // rows leaving the parser
	parseErrors     atomic.Int64 // lines the reader could not parse
	insertedValid   atomic.Int64 // rows flushed to the valid destination
	insertedInvalid atomic.Int64 // rows flushed to the invalid destination
	batches         atomic.Int64 // COPY batches successfully flushed
}

// runtimeConfig contains the resolved concurrency and buffering configuration
// for a run. Values are derived from the run spec with optional environment
// variable overrides (12-factor style).
type runtimeConfig struct {
	workers    int
	batchSize  int
	bufferSize int
}

type Repository = storage.Repository

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (Repository, error) {
		return storage.New(ctx, cfg)
	}

	openSourceFn = openSource

	streamCSVRowsFn = source.StreamCSVRows
)

// destinations bundles the three output repositories of a run together with
// their column layouts.
type destinations struct {
	valid   Repository
	invalid Repository
	profile Repository

	validColumns   []string
	invalidColumns []string
	profileColumns []string
}

func (d *destinations) Close() {
	for _, repo := range []Repository{d.valid, d.invalid, d.profile} {
		if repo != nil {
			if err := repo.Close(); err != nil {
				log.Printf("storage close: %v", err)
			}
		}
	}
}

// run executes a full CSV → cleanse/validate → storage run in a streaming,
// batched, and concurrent fashion.
//
// Every parsed row lands exactly once, in either the valid or the invalid
// destination; only unparsable lines are dropped, and those are aggregated
// and summarized at the end. Run statistics are accumulated per worker and
// merged after the pipeline drains, then written to the profile destination.
//
// Concurrency model:
//
//	Reader (CSV; 1)
//	     → tap (counts parsed rows, appends the partition value)
//	     → N workers (cleanse + validate, own stats.Partial each)
//	     → 2 loaders (COPY in batches; one per destination)
//
// Back-pressure is enforced via bounded channels so that peak memory stays
// around O(batchSize + bufferSize). A fatal loader error cancels the group
// context, which unwinds the reader and workers.
func run(ctx context.Context, spec config.Run) error {
	rt := newRuntimeConfig(spec)

	log.Printf("runtime: workers=%d batch=%d buffer=%d", rt.workers, rt.batchSize, rt.bufferSize)

	// The policy document gates the whole run: a malformed document must
	// fail the run before any row is read or any table touched.
	t0 := time.Now()
	registry, err := loadPolicies(spec.Policy)
	metrics.RecordStep(spec.Job, "load_policies", err, time.Since(t0))
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	log.Printf("policies: %d field policies loaded", registry.Len())

	schema, trailing := runSchema(spec)

	opts := []processor.Option{processor.WithTrailingColumns(trailing)}
	if nm := spec.Parser.Options.String("null_marker", ""); nm != "" {
		opts = append(opts, processor.WithNullMarker(nm))
	}
	proc, err := processor.New(schema, registry, opts...)
	if err != nil {
		return err
	}

	dests, err := openDestinations(ctx, spec, proc)
	if err != nil {
		return err
	}
	defer dests.Close()

	var c counters
	parseAgg := newErrAgg(thisMany)

	partials := make([]stats.Partial, rt.workers)
	columnNames := proc.Columns()
	mi := proc.MarkerIndex()

	procStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	rawCh := make(chan []string, rt.bufferSize)  // parser → tap
	rowCh := make(chan []string, rt.bufferSize)  // tap → workers
	validCh := make(chan []any, rt.bufferSize)   // workers → valid loader
	invalidCh := make(chan []any, rt.bufferSize) // workers → invalid loader

	// 1) Reader: stream parsed rows from the source.
	g.Go(func() error {
		defer close(rawCh)

		onParseErr := func(line int, err error) {
			if err == nil {
				return
			}
			parseAgg.add(fmt.Sprintf("line=%d: %v", line, err))
			c.parseErrors.Add(1)
		}

		src, err := openSourceFn(gctx, spec)
		if err != nil {
			return fmt.Errorf("source open: %w", err)
		}

		switch spec.Parser.Kind {
		case "csv":
			return streamCSVRowsFn(gctx, src, spec.Parser.Options, rawCh, onParseErr)
		default:
			return fmt.Errorf("unsupported parser.kind=%s", spec.Parser.Kind)
		}
	})

	// 2) Tap: count parsed rows, align them to the declared schema and
	// stamp the partition value. The CSV layer passes width mismatches
	// through, so short rows must be padded here or the partition value
	// would land in a data column.
	dataCols := len(spec.Schema)
	g.Go(func() error {
		defer close(rowCh)

		for r := range rawCh {
			c.parsed.Add(1)
			if len(r) > dataCols {
				r = r[:dataCols]
			}
			for len(r) < dataCols {
				r = append(r, "")
			}
			if spec.Partition.Column != "" {
				r = append(r, spec.Partition.Value)
			}
			select {
			case rowCh <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// 3) Workers: cleanse and validate, each with its own stats partial.
	var wgWorkers sync.WaitGroup
	wgWorkers.Add(rt.workers)
	for i := 0; i < rt.workers; i++ {
		part := &partials[i]
		g.Go(func() error {
			defer wgWorkers.Done()

			for row := range rowCh {
				res := proc.Process(row)
				part.Record(res.Valid, failedColumns(columnNames, res.ColumnFailures))

				out := invalidCh
				vals := invalidValues(res.Values, mi)
				if res.Valid {
					out = validCh
					vals = validValues(res.Values, mi)
				}

				select {
				case out <- vals:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	// 4) Close loader inputs once every worker has drained.
	go func() {
		wgWorkers.Wait()
		close(validCh)
		close(invalidCh)
	}()

	// 5) Loaders: one writer per destination table.
	g.Go(func() error {
		return runLoader(gctx, loader{
			table:     spec.Storage.DB.Entity + suffixValid,
			repo:      dests.valid,
			columns:   dests.validColumns,
			in:        validCh,
			batchSize: rt.batchSize,
			inserted:  &c.insertedValid,
			batches:   &c.batches,
		})
	})
	g.Go(func() error {
		return runLoader(gctx, loader{
			table:     spec.Storage.DB.Entity + suffixInvalid,
			repo:      dests.invalid,
			columns:   dests.invalidColumns,
			in:        invalidCh,
			batchSize: rt.batchSize,
			inserted:  &c.insertedInvalid,
			batches:   &c.batches,
		})
	})

	err = g.Wait()
	metrics.RecordStep(spec.Job, "process", err, time.Since(procStart))
	if err != nil {
		return err
	}

	total := stats.Finalize(partials...)

	t0 = time.Now()
	err = writeProfile(ctx, spec, dests, total, columnNames)
	metrics.RecordStep(spec.Job, "profile", err, time.Since(t0))
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	metrics.RecordRows(spec.Job, "total", total.TotalCount)
	metrics.RecordRows(spec.Job, "valid", total.ValidCount)
	metrics.RecordRows(spec.Job, "invalid", total.InvalidCount)

	logParseSummary(parseAgg)
	logGlobalSummary(&c, total)

	return nil
}

// runSchema derives the positional schema for the run: the configured source
// columns plus, when a partition is configured, the trailing partition
// column. Trailing columns are text as far as this engine is concerned; the
// partition value is stamped verbatim, never coerced.
func runSchema(spec config.Run) ([]coltype.Column, int) {
	schema := spec.Schema
	trailing := 0
	if spec.Partition.Column != "" {
		schema = append(append([]coltype.Column{}, schema...), coltype.Column{
			Name: spec.Partition.Column,
			Type: "string",
		})
		trailing = 1
	}
	return schema, trailing
}

// newRuntimeConfig resolves the runtime configuration for a run using the
// run spec and environment-variable fallbacks.
func newRuntimeConfig(spec config.Run) runtimeConfig {
	return runtimeConfig{
		workers:    pickInt(spec.Runtime.Workers, getenvInt("CLEANSE_WORKERS", 4)),
		batchSize:  pickInt(spec.Runtime.BatchSize, getenvInt("CLEANSE_BATCH_SIZE", 10000)),
		bufferSize: pickInt(spec.Runtime.ChannelBuffer, getenvInt("CLEANSE_CH_BUFFER", 4096)),
	}
}

// loadPolicies resolves the policy document from the run spec. Inline wins
// over path when both are set.
func loadPolicies(p config.Policy) (*policy.Registry, error) {
	if len(p.Inline) > 0 {
		return policy.Parse(p.Inline)
	}
	return policy.Load(p.Path)
}

// openDestinations constructs the three output repositories and, when
// auto-create is enabled, ensures the destination tables exist.
//
// Column layouts:
//
//	valid:   the schema columns, cleansed values only
//	invalid: the schema columns plus the reject-reason column, inserted
//	         before any trailing partition column
//	profile: (columnname, metrictype, metricvalue) triples, plus the
//	         partition column when one is configured
func openDestinations(ctx context.Context, spec config.Run, proc *processor.Processor) (*destinations, error) {
	names := proc.Columns()
	mi := proc.MarkerIndex()

	d := &destinations{
		validColumns:   names,
		invalidColumns: insertAt(names, mi, rejectReasonColumn),
		profileColumns: []string{"columnname", "metrictype", "metricvalue"},
	}
	if spec.Partition.Column != "" {
		d.profileColumns = append(d.profileColumns, spec.Partition.Column)
	}

	for _, bind := range []struct {
		repo    *Repository
		suffix  string
		columns []string
	}{
		{&d.valid, suffixValid, d.validColumns},
		{&d.invalid, suffixInvalid, d.invalidColumns},
		{&d.profile, suffixProfile, d.profileColumns},
	} {
		table := spec.Storage.DB.Entity + bind.suffix
		repo, err := newRepositoryFn(ctx, storage.Config{
			Kind:  spec.Storage.Kind,
			DSN:   spec.Storage.DB.DSN,
			Table: table,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init repo %s: %w", table, err)
		}
		*bind.repo = repo

		if spec.Storage.DB.AutoCreateTable {
			if err := storage.EnsureTable(ctx, repo, spec.Storage.Kind, table, bind.columns); err != nil {
				d.Close()
				return nil, fmt.Errorf("apply DDL for %s: %w", table, err)
			}
		}
	}

	return d, nil
}

// loader contains all dependencies required by one loader goroutine.
type loader struct {
	table     string
	repo      Repository
	columns   []string
	in        <-chan []any
	batchSize int
	inserted  *atomic.Int64
	batches   *atomic.Int64
}

// runLoader consumes rows for one destination, batches them, and calls COPY
// via the configured repository. Any COPY error is fatal for the run.
func runLoader(ctx context.Context, l loader) error {
	start := time.Now()
	batch := make([][]any, 0, l.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		n, err := l.repo.CopyFrom(ctx, l.columns, batch)
		if err != nil {
			log.Printf("loader: COPY failed for %s (rows=%d): %v", l.table, len(batch), err)
			return fmt.Errorf("copy %s: %w", l.table, err)
		}

		l.inserted.Add(n)
		batchNum := l.batches.Add(1)
		log.Printf(
			"table=%s batch=%d inserted=%d total_inserted=%d elapsed=%s",
			l.table,
			batchNum,
			n,
			l.inserted.Load(),
			time.Since(start).Truncate(time.Millisecond),
		)

		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case row, ok := <-l.in:
			if !ok {
				// No more rows: flush the last batch and exit.
				return flush()
			}
			batch = append(batch, row)
			if len(batch) >= l.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// writeProfile serializes the merged run statistics into the profile
// destination.
func writeProfile(ctx context.Context, spec config.Run, d *destinations, total stats.Run, columns []string) error {
	profile := total.ProfileRows(columns)
	rows := make([][]any, 0, len(profile))
	for _, pr := range profile {
		row := []any{pr.Column, pr.Metric, pr.Value}
		if spec.Partition.Column != "" {
			row = append(row, spec.Partition.Value)
		}
		rows = append(rows, row)
	}

	n, err := d.profile.CopyFrom(ctx, d.profileColumns, rows)
	if err != nil {
		return err
	}
	log.Printf("table=%s%s rows=%d", spec.Storage.DB.Entity, suffixProfile, n)
	return nil
}

// validValues converts a processed row into storage values for the valid
// destination: the marker and reject-reason columns are dropped, and empty
// strings become NULLs.
func validValues(values []string, markerIdx int) []any {
	out := make([]any, 0, len(values)-2)
	for i, v := range values {
		if i == markerIdx || i == markerIdx+1 {
			continue
		}
		out = append(out, nullable(v))
	}
	return out
}

// invalidValues converts a processed row into storage values for the invalid
// destination: the marker column is dropped while the reject-reason payload
// is kept in place.
func invalidValues(values []string, markerIdx int) []any {
	out := make([]any, 0, len(values)-1)
	for i, v := range values {
		if i == markerIdx {
			continue
		}
		out = append(out, nullable(v))
	}
	return out
}

// nullable maps the empty string onto a database NULL.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// failedColumns translates positional failure flags into column names for
// the stats accumulator. Returns nil for fully valid rows, which is the
// common case.
func failedColumns(names []string, flags []bool) []string {
	var out []string
	for i, failed := range flags {
		if failed {
			out = append(out, names[i])
		}
	}
	return out
}

// insertAt returns a copy of names with extra inserted at position idx.
func insertAt(names []string, idx int, extra string) []string {
	out := make([]string, 0, len(names)+1)
	out = append(out, names[:idx]...)
	out = append(out, extra)
	out = append(out, names[idx:]...)
	return out
}

// openSource maps the source configuration onto a concrete reader.
func openSource(ctx context.Context, spec config.Run) (io.ReadCloser, error) {
	switch spec.Source.Kind {
	case "file":
		return source.NewLocal(spec.Source.File.Path).Open(ctx)
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", spec.Source.Kind)
	}
}

// logParseSummary prints aggregated parse errors. Only the first N unique
// messages (per errAgg) are shown.
func logParseSummary(parseAgg *errAgg) {
	if parseAgg.count == 0 {
		return
	}
	log.Printf("parse errors: %d (showing first %d)", parseAgg.count, len(parseAgg.first))
	for i, s := range parseAgg.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// logGlobalSummary prints final aggregated statistics for the run.
//
// Invariants for data rows (excluding headers) are:
//
//	parsed == valid + invalid
//	inserted_valid == valid, inserted_invalid == invalid
func logGlobalSummary(c *counters, total stats.Run) {
	log.Printf(
		"summary: parsed=%d parse_errors=%d valid=%d invalid=%d inserted_valid=%d inserted_invalid=%d batches=%d",
		c.parsed.Load(),
		c.parseErrors.Load(),
		total.ValidCount,
		total.InvalidCount,
		c.insertedValid.Load(),
		c.insertedInvalid.Load(),
		c.batches.Load(),
	)

	if c.parsed.Load() != int64(total.TotalCount) {
		log.Printf(
			"WARNING: row accounting mismatch: parsed=%d processed=%d",
			c.parsed.Load(),
			total.TotalCount,
		)
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// errAgg aggregates errors
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
