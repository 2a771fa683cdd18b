package policy

import (
	"strings"
	"testing"
)

// Test doubles. The builtin subpackage carries the real rules; these stay
// local so the package test has no import cycle and no registration side
// effects.

type fakeStandardizer struct {
	name         string
	acceptsEmpty bool
	fn           func(string) string
}

func (f fakeStandardizer) Name() string            { return f.name }
func (f fakeStandardizer) AcceptsEmpty() bool      { return f.acceptsEmpty }
func (f fakeStandardizer) Convert(s string) string { return f.fn(s) }

// TestStandardize_ChainOrder verifies standardizers run in declared order,
// each receiving the previous step's output.
func TestStandardize_ChainOrder(t *testing.T) {
	t.Parallel()

	fp := FieldPolicy{
		Field: "name",
		Standardizers: []Standardizer{
			fakeStandardizer{name: "trim", fn: strings.TrimSpace},
			fakeStandardizer{name: "upper", fn: strings.ToUpper},
		},
	}

	if got := Standardize(fp, "  ada  "); got != "ADA" {
		t.Fatalf("Standardize = %q, want %q", got, "ADA")
	}
}

// TestStandardize_EmptySkipping checks the empty-value contract: steps that
// do not accept empty input are skipped while the running value is empty,
// and re-engage once an accepting step (a default) fills the value in.
func TestStandardize_EmptySkipping(t *testing.T) {
	t.Parallel()

	upper := fakeStandardizer{name: "upper", fn: strings.ToUpper}
	fill := fakeStandardizer{name: "default", acceptsEmpty: true, fn: func(s string) string {
		if s == "" {
			return "fallback"
		}
		return s
	}}

	cases := []struct {
		name  string
		steps []Standardizer
		in    string
		want  string
	}{
		{"skipped while empty", []Standardizer{upper}, "", ""},
		{"default fills then later steps run", []Standardizer{fill, upper}, "", "FALLBACK"},
		{"default after skipped step", []Standardizer{upper, fill}, "", "fallback"},
		{"non-empty input runs everything", []Standardizer{fill, upper}, "x", "X"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fp := FieldPolicy{Field: "f", Standardizers: tc.steps}
			if got := Standardize(fp, tc.in); got != tc.want {
				t.Fatalf("Standardize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestRegistry_ResolveDefault ensures unconfigured columns fall back to the
// passthrough policy: nullable and exempt from schema validation.
func TestRegistry_ResolveDefault(t *testing.T) {
	t.Parallel()

	reg := NewRegistry([]FieldPolicy{{Field: "email", Nullable: false}})

	if got := reg.Resolve("email"); got.Nullable {
		t.Fatalf("explicit policy lost: %+v", got)
	}

	def := reg.Resolve("unconfigured")
	if !def.Nullable || !def.SkipSchemaValidation {
		t.Fatalf("default policy = %+v, want nullable passthrough", def)
	}
	if len(def.Standardizers) != 0 || len(def.Validators) != 0 {
		t.Fatalf("default policy must carry no rules: %+v", def)
	}

	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
}
