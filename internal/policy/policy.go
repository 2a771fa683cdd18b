// Package policy defines per-column field policies: nullability, schema-type
// checking, and the ordered standardization and validation chains applied to
// a column's values.
//
// A Registry holds one resolved FieldPolicy per configured column and hands
// out a permissive passthrough policy for columns that have none. Policies
// are built once at run start (see Parse/Load) and are immutable afterwards,
// so they can be shared read-only across concurrent row processors.
package policy

// ParamKind declares the value representation a Validator expects. It is a
// static capability of each validator implementation, declared at
// registration time instead of probed at runtime.
type ParamKind uint8

const (
	// ParamString validators receive the cleansed textual value as-is.
	ParamString ParamKind = iota
	// ParamNative validators receive the value coerced to the column's
	// declared native type.
	ParamNative
)

// Standardizer is a single value transform applied before validation.
// Implementations must be stateless or internally immutable; the same
// instance is invoked concurrently from many row processors.
type Standardizer interface {
	// Name identifies the standardizer kind (for diagnostics).
	Name() string
	// AcceptsEmpty reports whether the step runs on empty input. Steps that
	// do not are skipped while the running value is empty, so a
	// legitimately-missing value is not mutated or trips a rule.
	AcceptsEmpty() bool
	// Convert returns the transformed value. Convert never fails; a step
	// that cannot improve a value returns it unchanged.
	Convert(value string) string
}

// Validator is a predicate over a field's (possibly coerced) value.
type Validator interface {
	// Name identifies the validator kind; it is carried in reject reasons.
	Name() string
	// ParamKind declares the representation Validate expects.
	ParamKind() ParamKind
	// Validate reports whether the value passes. The value is a string for
	// ParamString validators, otherwise the column's native representation.
	Validate(value any) bool
}

// FieldPolicy is the complete rule set for one column. Immutable after load.
type FieldPolicy struct {
	Field                string
	Nullable             bool
	SkipSchemaValidation bool
	Standardizers        []Standardizer
	Validators           []Validator
}

// Passthrough returns the default policy for a column with no configured
// entry: nullable, schema validation skipped, no rules.
func Passthrough(field string) FieldPolicy {
	return FieldPolicy{Field: field, Nullable: true, SkipSchemaValidation: true}
}

// Registry resolves column names to their field policies.
type Registry struct {
	policies map[string]FieldPolicy
}

// NewRegistry builds a Registry from explicit policies, keyed by field name.
func NewRegistry(policies []FieldPolicy) *Registry {
	m := make(map[string]FieldPolicy, len(policies))
	for _, p := range policies {
		m[p.Field] = p
	}
	return &Registry{policies: m}
}

// Resolve returns the explicit policy for column, or the passthrough
// default when none is configured.
func (r *Registry) Resolve(column string) FieldPolicy {
	if p, ok := r.policies[column]; ok {
		return p
	}
	return Passthrough(column)
}

// Len reports the number of explicitly configured policies.
func (r *Registry) Len() int { return len(r.policies) }

// Standardize applies the policy's standardization chain in declared order.
// Each step receives the previous step's output. Steps that do not accept
// empty values are skipped while the running value is empty, so a filled-in
// default from an earlier step still flows through later ones. The chain
// never fails; the final value is always returned.
func Standardize(fp FieldPolicy, value string) string {
	for _, s := range fp.Standardizers {
		if value == "" && !s.AcceptsEmpty() {
			continue
		}
		value = s.Convert(value)
	}
	return value
}
