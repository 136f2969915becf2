package lexicon

import "sort"

// Property describes one declared property of a record or params schema.
type Property struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Nullable    bool
}

// Properties returns the declared properties of an object schema in
// name order, with their primitive type, description, and whether they
// appear in the schema's required/nullable subsets. Used to build script
// completion metadata and the admin lexicon detail view.
func Properties(schema map[string]any) []Property {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := stringSet(schema["required"])
	nullable := stringSet(schema["nullable"])

	out := make([]Property, 0, len(props))
	for name, raw := range props {
		p := Property{Name: name, Required: required[name], Nullable: nullable[name]}
		if def, ok := raw.(map[string]any); ok {
			p.Type, _ = def["type"].(string)
			p.Description, _ = def["description"].(string)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Defaults returns the declared default values of an object schema's
// properties. Properties without a default are absent from the result.
func Defaults(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	out := map[string]any{}
	for name, raw := range props {
		def, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := def["default"]; ok {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringSet(raw any) map[string]bool {
	list, _ := raw.([]any)
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]bool, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			set[s] = true
		}
	}
	return set
}
