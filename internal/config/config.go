// Package config defines the canonical, JSON-serializable run specification
// for the cleanse/validate engine. It is intentionally small and explicit so
// that runs can be loaded from disk and passed through the program without
// additional glue code.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: field names in Go mirror the JSON structure of run files.
//  3. Minimalism: decoding is performed by the standard library, with a
//     light Options helper for typed access to free-form option bags.
//
// Example (trimmed):
//
//	{
//	  "job":    "orders",
//	  "source": { "kind": "file", "file": { "path": "orders.csv" } },
//	  "parser": { "kind": "csv", "options": { "has_header": true } },
//	  "schema": [ { "name": "id", "type": "int" }, { "name": "amount", "type": "decimal(10,2)" } ],
//	  "partition": { "column": "processing_dttm", "value": "20260829" },
//	  "policy": { "path": "policies/orders.json" },
//	  "storage": { "kind": "postgres", "db": { "dsn": "...", "entity": "orders" } }
//	}
package config

import (
	"encoding/json"

	"cleanse/internal/coltype"
)

// Run describes one end-to-end execution: where rows come from, the schema
// they align to, the policy document governing them, and where the valid,
// invalid, and profile outputs land.
type Run struct {
	// Job names the run for logging and metrics labeling.
	Job string `json:"job"`

	// Source describes where input rows come from.
	Source Source `json:"source"`

	// Parser configures how raw bytes are turned into positional rows.
	Parser Parser `json:"parser"`

	// Schema lists the source columns in positional order. Order is
	// significant: it must match the row layout produced by the parser.
	Schema []coltype.Column `json:"schema"`

	// Partition optionally designates a trailing partition column. When set,
	// the column is appended after the schema columns, every row carries
	// Value in it, and the engine keeps it last in the output layout.
	Partition Partition `json:"partition"`

	// Policy locates the field-policy document.
	Policy Policy `json:"policy"`

	// Storage describes the destination repositories.
	Storage Storage `json:"storage"`

	// Runtime controls concurrency, batching, and channel buffer sizes.
	Runtime RuntimeConfig `json:"runtime"`
}

// Source identifies the data source. Additional kinds can be added over time.
type Source struct {
	// Kind selects the source implementation. Current value: "file".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// Parser selects how to parse the raw source into positional rows.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys include: has_header (bool), comma (string),
	// trim_space (bool), lazy_quotes (bool), null_marker (string).
	Options Options `json:"options"`
}

// Partition designates the trailing partition column, when one exists.
type Partition struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Policy locates the field-policy document. Exactly one of Path or Inline
// should be set; Inline wins when both are.
type Policy struct {
	Path   string          `json:"path"`
	Inline json.RawMessage `json:"inline,omitempty"`
}

// Storage selects the sinks used to persist processed rows and statistics.
type Storage struct {
	// Kind selects the storage implementation ("postgres", "sqlite", "mssql").
	Kind string `json:"kind"`

	DB DBConfig `json:"db"`
}

// DBConfig configures the destination database.
type DBConfig struct {
	// DSN is the backend connection string.
	DSN string `json:"dsn"`

	// Entity is the base table name; outputs land in <entity>_valid,
	// <entity>_invalid, and <entity>_profile.
	Entity string `json:"entity"`

	// AutoCreateTable creates the destination tables when missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// RuntimeConfig controls concurrency, batching, and channel buffer sizes.
type RuntimeConfig struct {
	Workers       int `json:"workers"`
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Float returns the float64 value for key or def. Integer JSON values are
// accepted and widened.
func (o Options) Float(key string, def float64) float64 {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

// Has reports whether key is present at all, regardless of its type.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Useful for single-character parser settings such as a
// CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings (or an array of interface values containing strings). Returns nil
// when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null
// "options" object decodes to a non-nil, empty Options map. This simplifies
// call sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
