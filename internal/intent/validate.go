package intent

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/procureflow/agent/internal/domain"
)

// ValidateSlots checks adapter-extracted slots against an intent's schema.
// The adapter's output is untrusted: values are type-coerced first, then the
// per-field rule is applied. It returns the coerced slots alongside the
// required fields that are absent and the fields that failed their rule.
// Unknown slot names are dropped rather than rejected; the adapter routinely
// invents extras.
func (r *Registry) ValidateSlots(def domain.IntentDefinition, raw map[string]any) (map[string]any, []string, []domain.FieldError) {
	coerced := make(map[string]any, len(raw))
	var missing []string
	var fieldErrs []domain.FieldError

	for _, spec := range def.Fields {
		val, ok := raw[spec.Name]
		if !ok || val == nil {
			if spec.Required {
				missing = append(missing, spec.Name)
			}
			continue
		}

		cv, err := coerce(spec.Type, val)
		if err != nil {
			fieldErrs = append(fieldErrs, domain.FieldError{Field: spec.Name, Message: err.Error()})
			continue
		}
		if err := r.checkRule(def.Name, spec, cv); err != nil {
			fieldErrs = append(fieldErrs, domain.FieldError{Field: spec.Name, Message: err.Error()})
			continue
		}
		coerced[spec.Name] = cv
	}
	return coerced, missing, fieldErrs
}

// coerce converts a raw slot value to the schema type. JSON decoding hands us
// float64 for every number, and models frequently quote numbers or return
// numeric document ids, so both directions are accepted.
func coerce(t domain.FieldType, val any) (any, error) {
	switch t {
	case domain.FieldTypeString:
		switch v := val.(type) {
		case string:
			return strings.TrimSpace(v), nil
		case float64:
			if v == math.Trunc(v) {
				return strconv.FormatInt(int64(v), 10), nil
			}
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		}
	case domain.FieldTypeInt:
		switch v := val.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected a whole number, got %v", v)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expected a whole number, got %q", v)
			}
			return n, nil
		}
	case domain.FieldTypeNumber:
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", v)
			}
			return n, nil
		}
	case domain.FieldTypeBool:
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected true or false, got %q", v)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, val)
}

// checkRule applies the post-coercion validation rule for one field.
func (r *Registry) checkRule(intentName string, spec domain.FieldSpec, val any) error {
	if s, ok := val.(string); ok {
		if re := r.pattern(intentName, spec.Name); re != nil && !re.MatchString(s) {
			return fmt.Errorf("%q does not match the expected format", s)
		}
		if len(spec.Enum) > 0 {
			for _, allowed := range spec.Enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("%q is not one of %s", s, strings.Join(spec.Enum, ", "))
		}
		return nil
	}

	var n float64
	switch v := val.(type) {
	case int64:
		n = float64(v)
	case float64:
		n = v
	default:
		return nil
	}
	if spec.Min != nil && n < *spec.Min {
		return fmt.Errorf("must be at least %v", *spec.Min)
	}
	if spec.Max != nil && n > *spec.Max {
		return fmt.Errorf("must be at most %v", *spec.Max)
	}
	return nil
}
