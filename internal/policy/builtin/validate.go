package builtin

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"cleanse/internal/config"
	"cleanse/internal/policy"
)

func init() {
	policy.RegisterValidator("pattern", newPattern)
	policy.RegisterValidator("range", newRange)
	policy.RegisterValidator("lookup", newLookup)
	policy.RegisterValidator("length", newLength)
	policy.RegisterValidator("timestamp", newTimestamp)
}

// Pattern accepts values matching a regular expression. It operates on the
// cleansed text, regardless of the column's declared type.
type Pattern struct {
	re *regexp.Regexp
}

func newPattern(opts config.Options) (policy.Validator, error) {
	pat := opts.String("regex", "")
	if pat == "" {
		return nil, fmt.Errorf(`"pattern" requires a "regex" option`)
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", pat, err)
	}
	return Pattern{re: re}, nil
}

func (Pattern) Name() string                { return "pattern" }
func (Pattern) ParamKind() policy.ParamKind { return policy.ParamString }
func (p Pattern) Validate(v any) bool {
	s, ok := v.(string)
	return ok && p.re.MatchString(s)
}

// Range accepts numeric values within [min, max]. Missing bounds are open.
// It declares ParamNative so the engine hands it the coerced value; int64,
// float64 and time.Time (compared as Unix seconds) are understood.
type Range struct {
	Min, Max float64
}

func newRange(opts config.Options) (policy.Validator, error) {
	r := Range{Min: math.Inf(-1), Max: math.Inf(1)}
	if opts.Has("min") {
		r.Min = opts.Float("min", 0)
	}
	if opts.Has("max") {
		r.Max = opts.Float("max", 0)
	}
	if !opts.Has("min") && !opts.Has("max") {
		return nil, fmt.Errorf(`"range" requires a "min" and/or "max" option`)
	}
	if r.Min > r.Max {
		return nil, fmt.Errorf(`"range" min %v exceeds max %v`, r.Min, r.Max)
	}
	return r, nil
}

func (Range) Name() string                { return "range" }
func (Range) ParamKind() policy.ParamKind { return policy.ParamNative }
func (r Range) Validate(v any) bool {
	var f float64
	switch t := v.(type) {
	case int64:
		f = float64(t)
	case float64:
		f = t
	case time.Time:
		f = float64(t.Unix())
	default:
		return false
	}
	return f >= r.Min && f <= r.Max
}

// Lookup accepts values contained in a fixed set (an enum check). Matching
// is on the exact cleansed string form.
type Lookup struct {
	set map[string]struct{}
}

func newLookup(opts config.Options) (policy.Validator, error) {
	values := opts.StringSlice("values")
	if len(values) == 0 {
		return nil, fmt.Errorf(`"lookup" requires a non-empty "values" option`)
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return Lookup{set: set}, nil
}

func (Lookup) Name() string                { return "lookup" }
func (Lookup) ParamKind() policy.ParamKind { return policy.ParamString }
func (l Lookup) Validate(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, hit := l.set[s]
	return hit
}

// Length bounds the rune length of the cleansed text.
type Length struct {
	Min, Max int
}

func newLength(opts config.Options) (policy.Validator, error) {
	l := Length{Min: 0, Max: opts.Int("max", 0)}
	l.Min = opts.Int("min", 0)
	if l.Max == 0 && l.Min == 0 {
		return nil, fmt.Errorf(`"length" requires a "min" and/or "max" option`)
	}
	if l.Max > 0 && l.Min > l.Max {
		return nil, fmt.Errorf(`"length" min %d exceeds max %d`, l.Min, l.Max)
	}
	return l, nil
}

func (Length) Name() string                { return "length" }
func (Length) ParamKind() policy.ParamKind { return policy.ParamString }
func (l Length) Validate(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	n := len([]rune(s))
	if n < l.Min {
		return false
	}
	return l.Max == 0 || n <= l.Max
}

// Timestamp accepts text that parses with the configured reference layout.
// Stricter than the schema check, which tries every layout it knows.
type Timestamp struct {
	Layout string
}

func newTimestamp(opts config.Options) (policy.Validator, error) {
	layout := opts.String("layout", "")
	if layout == "" {
		return nil, fmt.Errorf(`"timestamp" requires a "layout" option`)
	}
	return Timestamp{Layout: layout}, nil
}

func (Timestamp) Name() string                { return "timestamp" }
func (Timestamp) ParamKind() policy.ParamKind { return policy.ParamString }
func (t Timestamp) Validate(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := time.Parse(t.Layout, s)
	return err == nil
}
