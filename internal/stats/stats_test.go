package stats

import (
	"math/rand"
	"reflect"
	"testing"
)

// TestRecord checks per-row accounting, including multiple failed columns
// on a single row.
func TestRecord(t *testing.T) {
	t.Parallel()

	var p Partial
	p.Record(true, nil)
	p.Record(false, []string{"email"})
	p.Record(false, []string{"email", "amount"})

	if p.Total != 3 || p.Valid != 1 || p.Invalid != 2 {
		t.Fatalf("partial = %+v", p)
	}
	if p.ColumnInvalid["email"] != 2 || p.ColumnInvalid["amount"] != 1 {
		t.Fatalf("column counts = %v", p.ColumnInvalid)
	}
}

// TestMerge_Properties verifies the merge algebra: commutativity,
// associativity, the zero value as identity, and operand immutability.
func TestMerge_Properties(t *testing.T) {
	t.Parallel()

	a := Partial{Total: 5, Valid: 3, Invalid: 2, ColumnInvalid: map[string]uint64{"x": 2}}
	b := Partial{Total: 7, Valid: 7}
	c := Partial{Total: 1, Invalid: 1, ColumnInvalid: map[string]uint64{"x": 1, "y": 1}}

	if got, want := Merge(a, b), Merge(b, a); !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge not commutative: %+v vs %+v", got, want)
	}
	if got, want := Merge(Merge(a, b), c), Merge(a, Merge(b, c)); !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge not associative: %+v vs %+v", got, want)
	}

	var zero Partial
	if got := Merge(a, zero); got.Total != a.Total || !reflect.DeepEqual(got.ColumnInvalid, a.ColumnInvalid) {
		t.Fatalf("zero is not an identity: %+v", got)
	}

	// Merge must not alias or mutate its operands.
	merged := Merge(a, c)
	merged.ColumnInvalid["x"] = 99
	if a.ColumnInvalid["x"] != 2 || c.ColumnInvalid["x"] != 1 {
		t.Fatalf("Merge aliased an operand map: a=%v c=%v", a.ColumnInvalid, c.ColumnInvalid)
	}
}

// TestFinalize_PartitionIndependence processes a fixed row set under many
// random worker partitions and asserts the finalized totals never change.
func TestFinalize_PartitionIndependence(t *testing.T) {
	t.Parallel()

	// 100 rows; 7 fail on "amount", 5 on "email", 2 on both.
	type row struct {
		valid  bool
		failed []string
	}
	var rows []row
	for i := 0; i < 100; i++ {
		r := row{valid: true}
		if i < 7 {
			r.valid = false
			r.failed = append(r.failed, "amount")
		}
		if i >= 5 && i < 10 {
			r.valid = false
			r.failed = append(r.failed, "email")
		}
		rows = append(rows, r)
	}

	var want Run
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		workers := 1 + rng.Intn(8)
		partials := make([]Partial, workers)
		for _, r := range rows {
			partials[rng.Intn(workers)].Record(r.valid, r.failed)
		}
		// Fold in shuffled order.
		rng.Shuffle(len(partials), func(i, j int) {
			partials[i], partials[j] = partials[j], partials[i]
		})

		got := Finalize(partials...)
		if trial == 0 {
			want = got
			if want.TotalCount != 100 || want.ValidCount != 90 || want.InvalidCount != 10 {
				t.Fatalf("totals = %+v", want)
			}
			if want.ColumnInvalidCount["amount"] != 7 || want.ColumnInvalidCount["email"] != 5 {
				t.Fatalf("column counts = %v", want.ColumnInvalidCount)
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d (%d workers): %+v != %+v", trial, workers, got, want)
		}
	}
}

// TestFinalize_Empty ensures a run with no rows still produces usable,
// non-nil output.
func TestFinalize_Empty(t *testing.T) {
	t.Parallel()

	got := Finalize()
	if got.TotalCount != 0 || got.ColumnInvalidCount == nil {
		t.Fatalf("Finalize() = %+v", got)
	}
}

// TestProfileRows pins the profile layout: whole-run totals first, then one
// INVALID_COUNT triple per column in schema order, zeros included.
func TestProfileRows(t *testing.T) {
	t.Parallel()

	run := Run{
		TotalCount:         10,
		ValidCount:         8,
		InvalidCount:       2,
		ColumnInvalidCount: map[string]uint64{"email": 2},
	}

	got := run.ProfileRows([]string{"id", "email"})
	want := []ProfileRow{
		{AllColumns, MetricTotalCount, "10"},
		{AllColumns, MetricValidCount, "8"},
		{AllColumns, MetricInvalidCount, "2"},
		{"id", MetricInvalidCount, "0"},
		{"email", MetricInvalidCount, "2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ProfileRows =\n%v\nwant\n%v", got, want)
	}
}
