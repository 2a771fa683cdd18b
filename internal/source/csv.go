package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"cleanse/internal/config"
)

// StreamCSVRows reads CSV records from src and sends them to out as
// positional []string rows. Rows are passed through as parsed; width
// normalization, null handling, and validation are downstream concerns.
//
// Options (all optional):
//
//	has_header (bool, default true)  — skip the first record
//	comma (string, default ",")      — field delimiter
//	trim_space (bool, default true)  — trim each field
//	lazy_quotes (bool, default false)
//
// Per-record parse errors are reported through onErr with the 1-based line
// number and are non-fatal; the reader continues with the next record. The
// function returns when src is exhausted or the context is canceled. The
// caller owns closing out.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	out chan<- []string,
	onErr func(line int, err error),
) error {
	defer src.Close()

	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)

	cr := csv.NewReader(src)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1 // width mismatches are handled downstream
	cr.ReuseRecord = true

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	if hasHeader {
		if _, err := read(); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read header: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		// cr.ReuseRecord aliases rec to the reader's buffer; copy out.
		row := make([]string, len(rec))
		for i, v := range rec {
			if i == 0 {
				v = strings.TrimPrefix(v, "\uFEFF") // strip BOM
			}
			if trim {
				v = strings.TrimSpace(v)
			}
			row[i] = v
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
