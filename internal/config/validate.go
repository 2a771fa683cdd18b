// Package config provides configuration models and helpers for cleanse runs.
//
// This file adds a lightweight linter/validator for Run values. It performs
// static checks over a decoded Run and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"

	"cleanse/internal/coltype"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be
	// surfaced to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Run.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "schema[1].type"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidateRun performs static validation / linting of a Run.
//
// It does not mutate the run. Instead it returns a slice of Issue values;
// callers may decide whether to treat warnings as fatal or not.
func ValidateRun(r Run) []Issue {
	var issues []Issue

	if strings.TrimSpace(r.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(r.Source)...)
	issues = append(issues, validateParser(r.Parser)...)
	issues = append(issues, validateSchema(r.Schema, r.Partition)...)
	issues = append(issues, validatePolicy(r.Policy)...)
	issues = append(issues, validateStorage(r.Storage)...)
	issues = append(issues, validateRuntime(r.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	// Known source kinds. Unknown kinds are warnings (forward compatibility).
	known := map[string]struct{}{
		"file": {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation exists", s.Kind),
		})
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  "parser.kind must not be empty",
		})
		return issues
	}
	if p.Kind != "csv" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q; ensure a matching implementation exists", p.Kind),
		})
	}
	return issues
}

func validateSchema(cols []coltype.Column, part Partition) []Issue {
	var issues []Issue

	if len(cols) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "schema",
			Message:  "schema must list at least one column",
		})
		return issues
	}

	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		path := fmt.Sprintf("schema[%d]", i)
		if strings.TrimSpace(c.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  "column name must not be empty",
			})
			continue
		}
		if _, dup := seen[c.Name]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("duplicate column name %q", c.Name),
			})
		}
		seen[c.Name] = struct{}{}

		// Unknown types are legal (they fail closed at runtime) but almost
		// always a typo, so surface them.
		if coltype.Resolve(c.Type).Kind() == coltype.KindUnknown {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".type",
				Message:  fmt.Sprintf("unrecognized type %q; no value will be considered convertible", c.Type),
			})
		}
	}

	if part.Column != "" {
		if _, dup := seen[part.Column]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "partition.column",
				Message:  fmt.Sprintf("partition column %q duplicates a schema column; it is appended automatically", part.Column),
			})
		}
		if strings.TrimSpace(part.Value) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "partition.value",
				Message:  "partition.value must not be empty when partition.column is set",
			})
		}
	}

	return issues
}

func validatePolicy(p Policy) []Issue {
	if strings.TrimSpace(p.Path) == "" && len(p.Inline) == 0 {
		return []Issue{{
			Severity: SeverityError,
			Path:     "policy",
			Message:  "either policy.path or policy.inline must be set",
		}}
	}
	return nil
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}
	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
		"mssql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(s.DB.Entity) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.entity",
			Message:  "storage.db.entity must not be empty; destination tables derive from it",
		})
	}
	return issues
}

func validateRuntime(rt RuntimeConfig) []Issue {
	var issues []Issue
	if rt.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must be >= 0 (0 selects the default)",
		})
	}
	if rt.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must be >= 0 (0 selects the default)",
		})
	}
	if rt.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must be >= 0 (0 selects the default)",
		})
	}
	return issues
}
