package processor

import "cleanse/internal/policy"

// validateField runs the ordered validation chain for one column. Checks
// are strictly ordered cheap-to-expensive and short-circuit on the first
// failure: a value that is not even schema-convertible cannot meaningfully
// reach a rule validator expecting the coerced native form.
func (p *Processor) validateField(idx int, value string) ValidationResult {
	fp := p.policies[idx]
	desc := p.types[idx]
	name := p.schema[idx].Name

	if value == "" {
		if !fp.Nullable {
			return failField("null", name, "Cannot be null")
		}
		return Valid
	}

	if !fp.SkipSchemaValidation && !desc.IsConvertible(value) {
		return failField("incompatible", name, "Not convertible to "+desc.Native())
	}

	for _, v := range fp.Validators {
		if result := p.validateValue(v, idx, value); !result.IsValid() {
			return result
		}
	}
	return Valid
}

// validateValue invokes a single rule validator, coercing the value to the
// validator's declared parameter kind first. A coercion failure degrades to
// an "incompatible" result; a validator panic is treated like any other
// negative verdict — a misbehaving rule rejects a row, it never aborts the
// run.
func (p *Processor) validateValue(v policy.Validator, idx int, value string) ValidationResult {
	desc := p.types[idx]
	name := p.schema[idx].Name

	var param any = value
	if v.ParamKind() == policy.ParamNative {
		native, err := desc.Coerce(value)
		if err != nil {
			return failField("incompatible", name, "Not convertible to "+desc.Native())
		}
		param = native
	}

	if !safeValidate(v, param) {
		return failFieldRule(name, v.Name(), "Rule violation")
	}
	return Valid
}

func safeValidate(v policy.Validator, param any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.Validate(param)
}
