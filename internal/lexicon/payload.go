package lexicon

import (
	"fmt"

	"github.com/rivo/uniseg"
)

// PayloadError reports a record payload or XRPC input that violates its
// declared schema. Field names the offending property when known.
type PayloadError struct {
	Field   string
	Message string
}

func (e *PayloadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func payloadErr(field, format string, args ...any) *PayloadError {
	return &PayloadError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateRecordPayload checks a record payload against an object schema.
// Required properties must be present and non-null (unless also listed in
// nullable); present properties must match their declared primitive type
// and constraints. Properties not declared in the schema are ignored here;
// the save path filters them out before persisting.
//
// refs and unions are accepted without resolution: cross-lexicon ref
// resolution is handled at registry level and open unions admit values
// this validator cannot enumerate.
func ValidateRecordPayload(schema, payload map[string]any) error {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)
	nullable := stringSet(schema["nullable"])

	if required, ok := schema["required"].([]any); ok {
		for _, raw := range required {
			name, ok := raw.(string)
			if !ok {
				continue
			}
			v, present := payload[name]
			if !present {
				return payloadErr(name, "missing required field")
			}
			if v == nil && !nullable[name] {
				return payloadErr(name, "required field is null")
			}
		}
	}

	for name, v := range payload {
		def, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if v == nil {
			if nullable[name] {
				continue
			}
			return payloadErr(name, "field is null but not declared nullable")
		}
		if err := validateValue(name, def, v); err != nil {
			return err
		}
	}
	return nil
}

// validateValue checks a single value against its property def.
func validateValue(field string, def map[string]any, v any) error {
	switch kind, _ := def["type"].(string); kind {
	case "string":
		s, ok := v.(string)
		if !ok {
			return payloadErr(field, "expected a string, got %T", v)
		}
		return validateString(field, def, s)
	case "integer":
		n, ok := asInt(v)
		if !ok {
			return payloadErr(field, "expected an integer, got %v", v)
		}
		return validateInteger(field, def, n)
	case "boolean":
		if _, ok := v.(bool); !ok {
			return payloadErr(field, "expected a boolean, got %T", v)
		}
		if c, ok := def["const"].(bool); ok && v != c {
			return payloadErr(field, "must equal the constant %v", c)
		}
		return nil
	case "array":
		list, ok := v.([]any)
		if !ok {
			return payloadErr(field, "expected an array, got %T", v)
		}
		return validateArray(field, def, list)
	case "unknown", "ref", "union", "bytes", "cid-link", "blob":
		// Accepted without inspection. See ValidateRecordPayload doc.
		return nil
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return payloadErr(field, "expected an object, got %T", v)
		}
		return ValidateRecordPayload(def, obj)
	default:
		return payloadErr(field, "cannot validate against def type %q", kind)
	}
}

func validateString(field string, def map[string]any, s string) error {
	if c, ok := def["const"].(string); ok && s != c {
		return payloadErr(field, "must equal the constant %q", c)
	}
	if raw, ok := def["enum"].([]any); ok {
		found := false
		for _, e := range raw {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			return payloadErr(field, "%q is not in the enum", s)
		}
	}
	// Length limits are in UTF-8 bytes per the Lexicon spec.
	if min, ok := numberField(def, "minLength"); ok && int64(len(s)) < min {
		return payloadErr(field, "shorter than minLength %d", min)
	}
	if max, ok := numberField(def, "maxLength"); ok && int64(len(s)) > max {
		return payloadErr(field, "longer than maxLength %d", max)
	}
	if _, ok := def["minGraphemes"]; ok {
		if min, ok := numberField(def, "minGraphemes"); ok && int64(uniseg.GraphemeClusterCount(s)) < min {
			return payloadErr(field, "fewer than minGraphemes %d", min)
		}
	}
	if _, ok := def["maxGraphemes"]; ok {
		if max, ok := numberField(def, "maxGraphemes"); ok && int64(uniseg.GraphemeClusterCount(s)) > max {
			return payloadErr(field, "more than maxGraphemes %d", max)
		}
	}
	return nil
}

func validateInteger(field string, def map[string]any, n int64) error {
	if c, ok := numberField(def, "const"); ok && n != c {
		return payloadErr(field, "must equal the constant %d", c)
	}
	if min, ok := numberField(def, "minimum"); ok && n < min {
		return payloadErr(field, "below minimum %d", min)
	}
	if max, ok := numberField(def, "maximum"); ok && n > max {
		return payloadErr(field, "above maximum %d", max)
	}
	if raw, ok := def["enum"].([]any); ok {
		found := false
		for _, e := range raw {
			if ev, ok := asInt(e); ok && ev == n {
				found = true
				break
			}
		}
		if !found {
			return payloadErr(field, "%d is not in the enum", n)
		}
	}
	return nil
}

func validateArray(field string, def map[string]any, list []any) error {
	if min, ok := numberField(def, "minLength"); ok && int64(len(list)) < min {
		return payloadErr(field, "fewer than minLength %d items", min)
	}
	if max, ok := numberField(def, "maxLength"); ok && int64(len(list)) > max {
		return payloadErr(field, "more than maxLength %d items", max)
	}
	items, ok := def["items"].(map[string]any)
	if !ok {
		return nil
	}
	for i, elem := range list {
		if err := validateValue(fmt.Sprintf("%s[%d]", field, i), items, elem); err != nil {
			return err
		}
	}
	return nil
}
