package processor

import "encoding/json"

// ValidationResult is the outcome of validating one field (or, for row-level
// failures such as an all-empty row, the row itself). The zero value is the
// shared valid result.
type ValidationResult struct {
	// Scope is "field" or "row".
	Scope string `json:"scope,omitempty"`
	// Code classifies the failure: "null", "incompatible", "rule", "empty",
	// or "error" for an unexpected per-row failure.
	Code string `json:"code,omitempty"`
	// Field names the failing column; empty for row-level failures.
	Field string `json:"field,omitempty"`
	// Rule names the violated validator for "rule" failures.
	Rule string `json:"rule,omitempty"`
	// Message is the human-readable reject reason.
	Message string `json:"message,omitempty"`
}

// Valid is the singleton success result.
var Valid = ValidationResult{}

// IsValid reports whether the result represents success.
func (r ValidationResult) IsValid() bool { return r.Code == "" }

func failField(code, field, message string) ValidationResult {
	return ValidationResult{Scope: "field", Code: code, Field: field, Message: message}
}

func failFieldRule(field, rule, message string) ValidationResult {
	return ValidationResult{Scope: "field", Code: "rule", Field: field, Rule: rule, Message: message}
}

func failRow(code, message string) ValidationResult {
	return ValidationResult{Scope: "row", Code: code, Message: message}
}

// encodeReasons serializes accumulated failures as a JSON array for the
// reject-reason column. An empty list encodes to the empty string, keeping
// the invariant that the payload is empty exactly when the row is valid.
func encodeReasons(results []ValidationResult) string {
	if len(results) == 0 {
		return ""
	}
	b, err := json.Marshal(results)
	if err != nil {
		// Results contain only strings; Marshal cannot fail on them.
		return `[{"scope":"row","code":"error","message":"reject reason encoding failed"}]`
	}
	return string(b)
}
