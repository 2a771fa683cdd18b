package processor

import (
	"encoding/json"
	"strings"
	"testing"

	"cleanse/internal/coltype"
	"cleanse/internal/policy"
)

// Test doubles for policy rules.

type stdFn struct {
	name         string
	acceptsEmpty bool
	fn           func(string) string
}

func (s stdFn) Name() string            { return s.name }
func (s stdFn) AcceptsEmpty() bool      { return s.acceptsEmpty }
func (s stdFn) Convert(v string) string { return s.fn(v) }

type valFn struct {
	name string
	kind policy.ParamKind
	fn   func(any) bool
}

func (v valFn) Name() string                { return v.name }
func (v valFn) ParamKind() policy.ParamKind { return v.kind }
func (v valFn) Validate(p any) bool         { return v.fn(p) }

// testSchema is the schema used across these tests: two data columns, one
// typed, plus a trailing partition column.
func testSchema() []coltype.Column {
	return []coltype.Column{
		{Name: "id", Type: "int"},
		{Name: "email", Type: "string"},
		{Name: "amount", Type: "decimal(10,2)"},
		{Name: "processing_dttm", Type: "string"},
	}
}

func testRegistry() *policy.Registry {
	return policy.NewRegistry([]policy.FieldPolicy{
		{
			Field:         "id",
			Nullable:      false,
			Standardizers: []policy.Standardizer{stdFn{name: "trim", fn: strings.TrimSpace}},
		},
		{
			Field:    "email",
			Nullable: false,
			Standardizers: []policy.Standardizer{
				stdFn{name: "trim", fn: strings.TrimSpace},
				stdFn{name: "lowercase", fn: strings.ToLower},
			},
			Validators: []policy.Validator{
				valFn{name: "pattern", kind: policy.ParamString, fn: func(v any) bool {
					s, _ := v.(string)
					return strings.Contains(s, "@")
				}},
			},
		},
		{
			Field:    "amount",
			Nullable: true,
			Validators: []policy.Validator{
				valFn{name: "range", kind: policy.ParamNative, fn: func(v any) bool {
					f, ok := v.(float64)
					return ok && f >= 0
				}},
			},
		},
	})
}

func newTestProcessor(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	p, err := New(testSchema(), testRegistry(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// decodeReasons unpacks the reject-reason payload of an output row.
func decodeReasons(t *testing.T, payload string) []ValidationResult {
	t.Helper()
	if payload == "" {
		return nil
	}
	var out []ValidationResult
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("reject reason payload %q: %v", payload, err)
	}
	return out
}

// TestProcess_ValidRow checks the happy path: standardized values in
// original order, marker "1", empty reason payload, trailing column last.
func TestProcess_ValidRow(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, WithTrailingColumns(1))

	res := p.Process([]string{" 42 ", " Ada@Example.ORG ", "99.50", "20260829"})
	if !res.Valid {
		t.Fatalf("row invalid: %v", res.Values)
	}

	want := []string{"42", "ada@example.org", "99.50", MarkerValid, "", "20260829"}
	if len(res.Values) != len(want) {
		t.Fatalf("output = %v, want %v", res.Values, want)
	}
	for i := range want {
		if res.Values[i] != want[i] {
			t.Fatalf("output[%d] = %q, want %q (row %v)", i, res.Values[i], want[i], res.Values)
		}
	}
	for i, f := range res.ColumnFailures {
		if f {
			t.Fatalf("column %d flagged on a valid row", i)
		}
	}
}

// TestProcess_MarkerReasonConsistency asserts the core contract: the reason
// payload is empty exactly when the marker says valid, for a spread of rows.
func TestProcess_MarkerReasonConsistency(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, WithTrailingColumns(1))
	mi := p.MarkerIndex()

	rows := [][]string{
		{"1", "a@b.c", "10.00", "d"},
		{"", "a@b.c", "10.00", "d"},      // null id
		{"x", "a@b.c", "10.00", "d"},     // unconvertible id
		{"1", "nomail", "10.00", "d"},    // rule violation
		{"1", "a@b.c", "-5", "d"},        // negative amount
		{"", "", "", "d"},                // blank line
		{"1", "a@b.c"},                   // short row
	}

	for _, row := range rows {
		res := p.Process(row)
		marker, reason := res.Values[mi], res.Values[mi+1]

		if res.Valid != (marker == MarkerValid) {
			t.Fatalf("row %v: Valid=%v but marker=%q", row, res.Valid, marker)
		}
		if res.Valid != (reason == "") {
			t.Fatalf("row %v: marker %q with reason %q", row, marker, reason)
		}
		if !res.Valid && len(decodeReasons(t, reason)) == 0 {
			t.Fatalf("row %v: invalid but reason payload decodes empty", row)
		}
	}
}

// TestProcess_FailureCodes pins the reject codes for each failure class and
// the per-column failure flags that feed the stats.
func TestProcess_FailureCodes(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, WithTrailingColumns(1))
	mi := p.MarkerIndex()

	cases := []struct {
		name      string
		row       []string
		wantCode  string
		wantField string
		wantRule  string
		wantFlag  int // flagged column index, -1 for row-level
	}{
		{"null violation", []string{"", "a@b.c", "1", "d"}, "null", "id", "", 0},
		{"not convertible", []string{"abc", "a@b.c", "1", "d"}, "incompatible", "id", "", 0},
		{"string rule", []string{"1", "nomail", "1", "d"}, "rule", "email", "pattern", 1},
		{"native rule", []string{"1", "a@b.c", "-1", "d"}, "rule", "amount", "range", 2},
		{"native coercion", []string{"1", "a@b.c", "cheap", "d"}, "incompatible", "amount", "", 2},
		{"blank line", []string{"", "", "", "d"}, "", "", "", -1},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := p.Process(tc.row)
			if res.Valid {
				t.Fatalf("row accepted: %v", res.Values)
			}
			reasons := decodeReasons(t, res.Values[mi+1])

			if tc.wantFlag < 0 {
				// Blank line: the row-level "empty" reason is appended after
				// any per-field failures.
				last := reasons[len(reasons)-1]
				if last.Scope != "row" || last.Code != "empty" {
					t.Fatalf("blank line reasons = %+v", reasons)
				}
				return
			}

			r := reasons[0]
			if r.Code != tc.wantCode || r.Field != tc.wantField || r.Rule != tc.wantRule {
				t.Fatalf("reason = %+v, want code=%q field=%q rule=%q", r, tc.wantCode, tc.wantField, tc.wantRule)
			}
			for i, f := range res.ColumnFailures {
				if f != (i == tc.wantFlag) {
					t.Fatalf("ColumnFailures = %v, want only index %d", res.ColumnFailures, tc.wantFlag)
				}
			}
		})
	}
}

// TestProcess_BlankLineDetection verifies that a row is forced invalid only
// when every data column is empty; the ever-present partition value in the
// trailing column must not defeat the check.
func TestProcess_BlankLineDetection(t *testing.T) {
	t.Parallel()

	reg := policy.NewRegistry(nil) // all columns passthrough-nullable
	p, err := New(testSchema(), reg, WithTrailingColumns(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blank := p.Process([]string{"", "", "", "20260829"})
	if blank.Valid {
		t.Fatalf("blank line accepted")
	}

	// One populated data column is a real (and here fully valid) row.
	partial := p.Process([]string{"", "x", "", "20260829"})
	if !partial.Valid {
		t.Fatalf("partially empty row rejected: %v", partial.Values)
	}
}

// TestProcess_NullMarker checks that a configured null token reads as
// absent: triggering null checks and mapping to the empty output value.
func TestProcess_NullMarker(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, WithTrailingColumns(1), WithNullMarker(`\N`))

	res := p.Process([]string{`\N`, "a@b.c", "1", "d"})
	if res.Valid {
		t.Fatalf("null-marked id accepted")
	}
	reasons := decodeReasons(t, res.Values[p.MarkerIndex()+1])
	if reasons[0].Code != "null" || reasons[0].Field != "id" {
		t.Fatalf("reasons = %+v, want null id", reasons)
	}
	if got := res.Values[0]; got != "" {
		t.Fatalf("output id = %q, want empty", got)
	}
}

// TestProcess_SkipSchemaValidation ensures exempted columns bypass the
// convertibility check but still run their rule validators.
func TestProcess_SkipSchemaValidation(t *testing.T) {
	t.Parallel()

	reg := policy.NewRegistry([]policy.FieldPolicy{
		{
			Field:                "id",
			Nullable:             true,
			SkipSchemaValidation: true,
			Validators: []policy.Validator{
				valFn{name: "length", kind: policy.ParamString, fn: func(v any) bool {
					s, _ := v.(string)
					return len(s) <= 4
				}},
			},
		},
	})
	p, err := New(testSchema(), reg, WithTrailingColumns(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// "abc" is not an int, but schema validation is skipped for id.
	if res := p.Process([]string{"abc", "", "", "d"}); !res.Valid {
		t.Fatalf("exempt column rejected: %v", res.Values)
	}
	// The rule validator still applies.
	if res := p.Process([]string{"toolong", "", "", "d"}); res.Valid {
		t.Fatalf("rule bypassed on exempt column")
	}
}

// TestProcess_PanickingValidator confirms a misbehaving rule rejects the
// row instead of taking down the run.
func TestProcess_PanickingValidator(t *testing.T) {
	t.Parallel()

	reg := policy.NewRegistry([]policy.FieldPolicy{
		{
			Field:    "email",
			Nullable: true,
			Validators: []policy.Validator{
				valFn{name: "boom", kind: policy.ParamString, fn: func(any) bool {
					panic("rule bug")
				}},
			},
		},
	})
	p, err := New(testSchema(), reg, WithTrailingColumns(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := p.Process([]string{"1", "x", "1", "d"})
	if res.Valid {
		t.Fatalf("row accepted despite panicking validator")
	}
	reasons := decodeReasons(t, res.Values[p.MarkerIndex()+1])
	if reasons[0].Code != "rule" || reasons[0].Rule != "boom" {
		t.Fatalf("reasons = %+v", reasons)
	}
}

// TestProcess_NoTrailingColumns checks the layout without a designated
// partition column: marker and reason are simply appended.
func TestProcess_NoTrailingColumns(t *testing.T) {
	t.Parallel()

	schema := []coltype.Column{
		{Name: "id", Type: "int"},
		{Name: "name", Type: "string"},
	}
	p, err := New(schema, policy.NewRegistry(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.MarkerIndex(); got != 2 {
		t.Fatalf("MarkerIndex = %d, want 2", got)
	}

	res := p.Process([]string{"7", "ada"})
	want := []string{"7", "ada", MarkerValid, ""}
	for i := range want {
		if res.Values[i] != want[i] {
			t.Fatalf("output = %v, want %v", res.Values, want)
		}
	}
}

// TestNew_Errors covers constructor validation.
func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, policy.NewRegistry(nil)); err == nil {
		t.Fatalf("empty schema accepted")
	}
	if _, err := New(testSchema(), testRegistry(), WithTrailingColumns(4)); err == nil {
		t.Fatalf("all-trailing schema accepted")
	}
	if _, err := New(testSchema(), testRegistry(), WithTrailingColumns(-1)); err == nil {
		t.Fatalf("negative trailing count accepted")
	}
}
