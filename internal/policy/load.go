// Policy document loading.
//
// The policy source is a JSON array of per-column policy objects:
//
//	[
//	  {
//	    "fieldName": "email",
//	    "nullable": false,
//	    "skipSchemaValidation": false,
//	    "standardizers": [ { "kind": "trim" } ],
//	    "validators":    [ { "kind": "pattern", "options": { "regex": "@" } } ]
//	  }
//	]
//
// Parsing is strict: malformed JSON, duplicate fields, and unknown rule
// kinds are load errors, and a load error is fatal to the run. No partial
// policy set is ever returned — proceeding with incomplete policies risks
// silently admitting invalid data.
//
// Rule implementations register themselves by kind (typically from an init
// function, see the builtin subpackage) before Parse is called.
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"cleanse/internal/config"
)

// StandardizerFactory builds a Standardizer from its options bag.
type StandardizerFactory func(opts config.Options) (Standardizer, error)

// ValidatorFactory builds a Validator from its options bag.
type ValidatorFactory func(opts config.Options) (Validator, error)

var (
	standardizerFactories = map[string]StandardizerFactory{}
	validatorFactories    = map[string]ValidatorFactory{}
)

// RegisterStandardizer registers a standardizer kind. Registering the same
// kind twice panics: kinds form a closed set wired at program start.
func RegisterStandardizer(kind string, f StandardizerFactory) {
	if _, dup := standardizerFactories[kind]; dup {
		panic("policy: duplicate standardizer kind " + kind)
	}
	standardizerFactories[kind] = f
}

// RegisterValidator registers a validator kind.
func RegisterValidator(kind string, f ValidatorFactory) {
	if _, dup := validatorFactories[kind]; dup {
		panic("policy: duplicate validator kind " + kind)
	}
	validatorFactories[kind] = f
}

// ruleSpec is one standardizer or validator entry in the policy document.
type ruleSpec struct {
	Kind    string         `json:"kind"`
	Options config.Options `json:"options"`
}

// fieldSpec is one per-column policy object in the policy document.
type fieldSpec struct {
	FieldName            string     `json:"fieldName"`
	Nullable             bool       `json:"nullable"`
	SkipSchemaValidation bool       `json:"skipSchemaValidation"`
	Standardizers        []ruleSpec `json:"standardizers"`
	Validators           []ruleSpec `json:"validators"`
}

// Parse decodes a policy document and resolves every rule spec against the
// registered kinds. Any error aborts the load; there is no partial result.
func Parse(raw []byte) (*Registry, error) {
	var specs []fieldSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("policy: decode document: %w", err)
	}

	policies := make([]FieldPolicy, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		if spec.FieldName == "" {
			return nil, fmt.Errorf("policy: entry %d: fieldName must not be empty", i)
		}
		if _, dup := seen[spec.FieldName]; dup {
			return nil, fmt.Errorf("policy: duplicate entry for field %q", spec.FieldName)
		}
		seen[spec.FieldName] = struct{}{}

		fp := FieldPolicy{
			Field:                spec.FieldName,
			Nullable:             spec.Nullable,
			SkipSchemaValidation: spec.SkipSchemaValidation,
		}
		for _, rs := range spec.Standardizers {
			f, ok := standardizerFactories[rs.Kind]
			if !ok {
				return nil, fmt.Errorf("policy: field %q: unknown standardizer kind %q", spec.FieldName, rs.Kind)
			}
			s, err := f(rs.Options)
			if err != nil {
				return nil, fmt.Errorf("policy: field %q: standardizer %q: %w", spec.FieldName, rs.Kind, err)
			}
			fp.Standardizers = append(fp.Standardizers, s)
		}
		for _, rs := range spec.Validators {
			f, ok := validatorFactories[rs.Kind]
			if !ok {
				return nil, fmt.Errorf("policy: field %q: unknown validator kind %q", spec.FieldName, rs.Kind)
			}
			v, err := f(rs.Options)
			if err != nil {
				return nil, fmt.Errorf("policy: field %q: validator %q: %w", spec.FieldName, rs.Kind, err)
			}
			fp.Validators = append(fp.Validators, v)
		}
		policies = append(policies, fp)
	}
	return NewRegistry(policies), nil
}

// Load reads and parses a policy document from disk.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(raw)
}
