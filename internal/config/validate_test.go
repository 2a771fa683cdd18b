package config

import (
	"encoding/json"
	"testing"

	"cleanse/internal/coltype"
)

// goodRun returns a run spec that passes validation cleanly; tests mutate
// single fields to provoke specific issues.
func goodRun() Run {
	return Run{
		Job:    "orders",
		Source: Source{Kind: "file", File: SourceFile{Path: "orders.csv"}},
		Parser: Parser{Kind: "csv"},
		Schema: []coltype.Column{
			{Name: "id", Type: "int"},
			{Name: "amount", Type: "decimal(10,2)"},
		},
		Partition: Partition{Column: "processing_dttm", Value: "20260829"},
		Policy:    Policy{Path: "policies/orders.json"},
		Storage: Storage{
			Kind: "postgres",
			DB:   DBConfig{DSN: "postgresql://localhost/db", Entity: "orders"},
		},
	}
}

func issueAt(issues []Issue, path string) *Issue {
	for i := range issues {
		if issues[i].Path == path {
			return &issues[i]
		}
	}
	return nil
}

// TestValidateRun_Clean verifies the reference spec produces no issues.
func TestValidateRun_Clean(t *testing.T) {
	t.Parallel()

	if issues := ValidateRun(goodRun()); len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

// TestValidateRun_Errors provokes each blocking error individually.
func TestValidateRun_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		mutate   func(*Run)
		wantPath string
	}{
		{"empty job", func(r *Run) { r.Job = " " }, "job"},
		{"empty source kind", func(r *Run) { r.Source.Kind = "" }, "source.kind"},
		{"file without path", func(r *Run) { r.Source.File.Path = "" }, "source.file.path"},
		{"empty parser kind", func(r *Run) { r.Parser.Kind = "" }, "parser.kind"},
		{"empty schema", func(r *Run) { r.Schema = nil }, "schema"},
		{"blank column name", func(r *Run) { r.Schema[1].Name = "" }, "schema[1].name"},
		{"duplicate column", func(r *Run) { r.Schema[1].Name = "id" }, "schema[1].name"},
		{"partition duplicates schema", func(r *Run) { r.Partition.Column = "id" }, "partition.column"},
		{"partition without value", func(r *Run) { r.Partition.Value = "" }, "partition.value"},
		{"no policy source", func(r *Run) { r.Policy = Policy{} }, "policy"},
		{"empty storage kind", func(r *Run) { r.Storage.Kind = "" }, "storage.kind"},
		{"empty dsn", func(r *Run) { r.Storage.DB.DSN = "" }, "storage.db.dsn"},
		{"empty entity", func(r *Run) { r.Storage.DB.Entity = "" }, "storage.db.entity"},
		{"negative workers", func(r *Run) { r.Runtime.Workers = -1 }, "runtime.workers"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := goodRun()
			tc.mutate(&r)
			iss := issueAt(ValidateRun(r), tc.wantPath)
			if iss == nil {
				t.Fatalf("no issue at %s: %v", tc.wantPath, ValidateRun(r))
			}
			if iss.Severity != SeverityError {
				t.Fatalf("issue at %s is %s, want error", tc.wantPath, iss.Severity)
			}
		})
	}
}

// TestValidateRun_Warnings checks that unknown-but-plausible values warn
// instead of blocking, preserving forward compatibility.
func TestValidateRun_Warnings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		mutate   func(*Run)
		wantPath string
	}{
		{"unknown source kind", func(r *Run) { r.Source.Kind = "s3" }, "source.kind"},
		{"unknown parser kind", func(r *Run) { r.Parser.Kind = "parquet" }, "parser.kind"},
		{"unknown column type", func(r *Run) { r.Schema[0].Type = "geometry" }, "schema[0].type"},
		{"unknown storage kind", func(r *Run) { r.Storage.Kind = "mysql" }, "storage.kind"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := goodRun()
			tc.mutate(&r)
			issues := ValidateRun(r)
			iss := issueAt(issues, tc.wantPath)
			if iss == nil {
				t.Fatalf("no issue at %s: %v", tc.wantPath, issues)
			}
			if iss.Severity != SeverityWarning {
				t.Fatalf("issue at %s is %s, want warning", tc.wantPath, iss.Severity)
			}
			for _, other := range issues {
				if other.Severity == SeverityError {
					t.Fatalf("warning case produced error: %v", other)
				}
			}
		})
	}
}

// TestOptions_Decode covers the Options helper, including the null/missing
// normalization to an empty, non-nil map.
func TestOptions_Decode(t *testing.T) {
	t.Parallel()

	var p Parser
	if err := json.Unmarshal([]byte(`{"kind":"csv","options":{"has_header":false,"comma":";","max":3.5,"values":["a","b"]}}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if p.Options.Bool("has_header", true) {
		t.Fatalf("has_header should decode false")
	}
	if got := p.Options.Rune("comma", ','); got != ';' {
		t.Fatalf("comma = %q", got)
	}
	if got := p.Options.Float("max", 0); got != 3.5 {
		t.Fatalf("max = %v", got)
	}
	if got := p.Options.StringSlice("values"); len(got) != 2 || got[0] != "a" {
		t.Fatalf("values = %v", got)
	}
	if !p.Options.Has("comma") || p.Options.Has("absent") {
		t.Fatalf("Has misreports key presence")
	}

	var q Parser
	if err := json.Unmarshal([]byte(`{"kind":"csv","options":null}`), &q); err != nil {
		t.Fatalf("unmarshal null options: %v", err)
	}
	if q.Options == nil {
		t.Fatalf("null options should decode to empty map")
	}
	if got := q.Options.Int("missing", 7); got != 7 {
		t.Fatalf("default = %d", got)
	}
}
