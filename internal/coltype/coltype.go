// Package coltype resolves declared column type names (as found in a table
// schema) into descriptors that can test whether a textual field value is
// convertible to the column's native type, and perform that conversion.
//
// Resolution is deterministic and total: every declared name yields a
// descriptor. Names outside the known vocabulary produce a fail-closed
// descriptor that treats no value as convertible; unknown types are
// intentionally strict rather than an error, so a typo in a schema surfaces
// as invalid rows instead of a crash mid-run.
//
// Descriptors are immutable and safe to share across concurrent readers.
package coltype

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the native target types a column can declare.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindString
	KindInt
	KindBigint
	KindFloat
	KindDouble
	KindDecimal
	KindBool
	KindDate
	KindTimestamp
	KindBinary
)

// Column is one schema column: a name plus its declared type, positionally
// ordered by the caller.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Descriptor is the resolved form of a declared type name.
type Descriptor struct {
	declared string
	kind     Kind

	// decimal(p,s) bounds; zero when the declaration carries none.
	precision int
	scale     int

	// integer parse width in bits (8/16/32/64).
	intBits int
}

// ConversionError reports a value that could not be coerced to a native type.
type ConversionError struct {
	Value  string
	Native string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("value %q is not convertible to %s", e.Value, e.Native)
}

// Resolve maps a declared type name onto a Descriptor. Matching is
// case-insensitive and tolerant of length/precision suffixes such as
// "varchar(255)" or "decimal(10,2)".
func Resolve(declared string) Descriptor {
	d := Descriptor{declared: declared}
	base, args := splitDeclared(declared)

	switch base {
	case "string", "text", "varchar", "char":
		d.kind = KindString
	case "tinyint":
		d.kind = KindInt
		d.intBits = 8
	case "smallint", "int2":
		d.kind = KindInt
		d.intBits = 16
	case "int", "integer", "int4":
		d.kind = KindInt
		d.intBits = 32
	case "bigint", "int8", "long":
		d.kind = KindBigint
		d.intBits = 64
	case "float", "real":
		d.kind = KindFloat
	case "double":
		d.kind = KindDouble
	case "decimal", "numeric":
		d.kind = KindDecimal
		d.precision, d.scale = parseDecimalArgs(args)
	case "boolean", "bool":
		d.kind = KindBool
	case "date":
		d.kind = KindDate
	case "timestamp", "timestamptz", "datetime":
		d.kind = KindTimestamp
	case "binary", "bytes", "blob":
		d.kind = KindBinary
	default:
		d.kind = KindUnknown
	}
	return d
}

// ForSchema resolves every column of a schema into a positional descriptor
// slice aligned with the input order.
func ForSchema(cols []Column) []Descriptor {
	out := make([]Descriptor, len(cols))
	for i, c := range cols {
		out[i] = Resolve(c.Type)
	}
	return out
}

// Declared returns the type name the descriptor was resolved from.
func (d Descriptor) Declared() string { return d.declared }

// Kind returns the resolved native kind.
func (d Descriptor) Kind() Kind { return d.kind }

// Native names the Go-side target type, for use in reject messages.
func (d Descriptor) Native() string {
	switch d.kind {
	case KindString:
		return "string"
	case KindInt, KindBigint:
		return "int64"
	case KindFloat, KindDouble, KindDecimal:
		return "float64"
	case KindBool:
		return "bool"
	case KindDate, KindTimestamp:
		return "time.Time"
	case KindBinary:
		return "[]byte"
	default:
		return d.declared
	}
}

// IsConvertible reports whether value can be coerced to the native type.
// It never mutates state; Coerce on the same value fails exactly when
// IsConvertible returns false.
func (d Descriptor) IsConvertible(value string) bool {
	_, err := d.Coerce(value)
	return err == nil
}

// Coerce parses value into the native representation, or returns a
// *ConversionError when it cannot.
func (d Descriptor) Coerce(value string) (any, error) {
	switch d.kind {
	case KindString:
		return value, nil

	case KindInt, KindBigint:
		if v, ok := parseIntLoose(value, d.intBits); ok {
			return v, nil
		}

	case KindFloat, KindDouble:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f, nil
		}

	case KindDecimal:
		if f, ok := d.parseDecimal(value); ok {
			return f, nil
		}

	case KindBool:
		if b, ok := parseBool(value); ok {
			return b, nil
		}

	case KindDate:
		if t, ok := parseDate(value); ok {
			return t, nil
		}

	case KindTimestamp:
		if t, ok := parseTimestamp(value); ok {
			return t, nil
		}

	case KindBinary:
		return []byte(value), nil
	}
	return nil, &ConversionError{Value: value, Native: d.Native()}
}

// splitDeclared lowercases a declaration and splits "decimal(10,2)" into
// base "decimal" and args "10,2".
func splitDeclared(declared string) (base, args string) {
	s := strings.ToLower(strings.TrimSpace(declared))
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, ""
	}
	close := strings.LastIndexByte(s, ')')
	if close <= open {
		return strings.TrimSpace(s[:open]), ""
	}
	return strings.TrimSpace(s[:open]), s[open+1 : close]
}

func parseDecimalArgs(args string) (precision, scale int) {
	if args == "" {
		return 0, 0
	}
	parts := strings.SplitN(args, ",", 2)
	precision, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		scale, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return precision, scale
}

// parseIntLoose parses integers at the given bit width and accepts the
// "42.0" form produced by spreadsheet exports, as long as the fractional
// part is zero.
func parseIntLoose(s string, bits int) (int64, bool) {
	if bits == 0 {
		bits = 64
	}
	if i, err := strconv.ParseInt(s, 10, bits); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			if i, err := strconv.ParseInt(strconv.FormatInt(int64(f), 10), 10, bits); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// parseDecimal validates against the declared precision/scale when present.
func (d Descriptor) parseDecimal(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if d.precision == 0 {
		return f, true
	}
	digits := 0
	frac := 0
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			if seenDot {
				frac++
			}
		case r == '.':
			if seenDot {
				return 0, false
			}
			seenDot = true
		case r == '-' || r == '+':
			// sign does not count toward precision
		default:
			return 0, false
		}
	}
	if digits > d.precision || frac > d.scale {
		return 0, false
	}
	return f, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// Date layouts tried in order: ISO first, then the common DD.MM.YYYY form.
var dateLayouts = []string{"2006-01-02", "02.01.2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
