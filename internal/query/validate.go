package query

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pitabwire/formbase/model"
)

// identifierRE is the charset rule for form and column identifiers. The
// length bound also guards the trusted-interpolation path in the schema
// builders: only values passing this check are ever spliced into SQL text.
var identifierRE = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// IdentifierValid reports whether s satisfies the identifier rule.
func IdentifierValid(s string) bool {
	return identifierRE.MatchString(s)
}

// NotEmpty fails when the parameter value is null or an empty string.
func NotEmpty(what string) func(*Parameter) bool {
	return func(p *Parameter) bool {
		if p.Value.IsEmpty() {
			return p.Fail(model.FieldRequired, fmt.Sprintf("%s cannot be empty", what))
		}
		return true
	}
}

// IsString fails when the parameter value is present but not a string.
// Distinct from NotEmpty: callers must be able to tell "missing" from
// "wrong type".
func IsString(what string) func(*Parameter) bool {
	return func(p *Parameter) bool {
		if p.Value.IsNull() {
			return true
		}
		if _, ok := p.Value.AsString(); !ok {
			return p.Fail(model.FieldType, fmt.Sprintf("%s must be a string", what))
		}
		return true
	}
}

// MinLen fails when the rendered value is shorter than n characters.
func MinLen(what string, n int) func(*Parameter) bool {
	return func(p *Parameter) bool {
		if len(p.Value.String()) < n {
			return p.Fail(model.FieldInvalid,
				fmt.Sprintf("%s must be at least %d characters", what, n))
		}
		return true
	}
}

// Identifier enforces the full identifier rule: non-empty, 3-64 characters,
// charset [A-Za-z0-9_-].
func Identifier(what string) func(*Parameter) bool {
	return func(p *Parameter) bool {
		s := p.Value.String()
		if s == "" {
			return p.Fail(model.FieldRequired, fmt.Sprintf("%s cannot be empty", what))
		}
		if len(s) < 3 {
			return p.Fail(model.FieldInvalid,
				fmt.Sprintf("%s must be at least 3 characters", what))
		}
		if !IdentifierValid(s) {
			return p.Fail(model.FieldInvalid,
				fmt.Sprintf("%s may only contain a-z, A-Z, 0-9, \"-\" and \"_\"", what))
		}
		return true
	}
}

// FieldSpec carries the per-column validation metadata of a dynamic form
// column: declared type, required flag, default value, and maximum length.
type FieldSpec struct {
	Type     string
	Required bool
	Default  model.Value
	Length   int64
}

// VerifyField returns the condition applied to every dynamic record
// parameter. Empty values fall back to the column default when one exists;
// a required column with no default rejects empty input; present values are
// checked against the declared column type. "required but empty" and "wrong
// type" remain distinguishable error kinds.
func VerifyField(name string, spec FieldSpec) func(*Parameter) bool {
	return func(p *Parameter) bool {
		if p.Value.IsEmpty() {
			if !spec.Default.IsEmpty() {
				p.Value = spec.Default
				return true
			}
			if spec.Required {
				return p.Fail(model.FieldRequired,
					fmt.Sprintf("field %s is required", name))
			}
			return true
		}

		if !matchesType(p.Value, spec.Type) {
			return p.Fail(model.FieldType,
				fmt.Sprintf("field %s must be of type %s", name, spec.Type))
		}

		if spec.Length > 0 && int64(len(p.Value.String())) > spec.Length {
			return p.Fail(model.FieldInvalid,
				fmt.Sprintf("field %s exceeds maximum length %d", name, spec.Length))
		}
		return true
	}
}

// matchesType checks a present value against a declared column type.
// Form input arrives as strings, so parseable text is accepted for the
// numeric and boolean types.
func matchesType(v model.Value, columnType string) bool {
	switch columnType {
	case "integer", "link":
		if _, ok := v.AsInt(); ok {
			return true
		}
		s, ok := v.AsString()
		if !ok {
			return false
		}
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	case "decimal":
		if _, ok := v.AsFloat(); ok {
			return true
		}
		s, ok := v.AsString()
		if !ok {
			return false
		}
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	case "boolean":
		if _, ok := v.AsBool(); ok {
			return true
		}
		s, ok := v.AsString()
		if !ok {
			return false
		}
		_, err := strconv.ParseBool(s)
		return err == nil
	default:
		// text, date, image, file accept any scalar; String() is total.
		return true
	}
}
