package lexicon

import (
	"strconv"
	"strings"
)

// CoerceParams validates raw query-string parameters against a params def
// and coerces them to their declared types. Unknown parameters and missing
// required parameters are rejected; integers and booleans arrive as
// strings on the wire and are converted. Array parameters accept
// comma-separated values.
//
// A nil params def accepts only an empty parameter set.
func CoerceParams(def map[string]any, raw map[string]string) (map[string]any, error) {
	props, _ := def["properties"].(map[string]any)

	for name := range raw {
		if _, declared := props[name]; !declared {
			return nil, payloadErr(name, "unknown parameter")
		}
	}
	if def != nil {
		if required, ok := def["required"].([]any); ok {
			for _, r := range required {
				name, ok := r.(string)
				if !ok {
					continue
				}
				if _, present := raw[name]; !present {
					return nil, payloadErr(name, "missing required parameter")
				}
			}
		}
	}

	out := make(map[string]any, len(raw))
	for name, val := range raw {
		prop, _ := props[name].(map[string]any)
		coerced, err := coerceParam(name, prop, val)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

func coerceParam(name string, def map[string]any, val string) (any, error) {
	switch kind, _ := def["type"].(string); kind {
	case "integer":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, payloadErr(name, "expected an integer, got %q", val)
		}
		if err := validateInteger(name, def, n); err != nil {
			return nil, err
		}
		return n, nil
	case "boolean":
		switch val {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, payloadErr(name, "expected true or false, got %q", val)
	case "array":
		items, _ := def["items"].(map[string]any)
		parts := strings.Split(val, ",")
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			v, err := coerceParam(name, items, part)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case "string":
		if err := validateString(name, def, val); err != nil {
			return nil, err
		}
		return val, nil
	default:
		// unknown passes through as-is.
		return val, nil
	}
}
