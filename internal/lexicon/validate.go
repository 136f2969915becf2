package lexicon

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation error codes (L100-L199).
const (
	ErrBadVersion   = "L100" // lexicon field missing or not 1
	ErrBadID        = "L101" // id missing or not a valid NSID
	ErrBadDefs      = "L102" // defs missing, empty, or not an object
	ErrBadDefKind   = "L103" // unknown or misplaced def type
	ErrBadField     = "L104" // def field has the wrong shape
	ErrBadKey       = "L105" // record key not tid/any/nsid/literal:*
	ErrBadSubset    = "L106" // required/nullable name not in properties
	ErrBadRef       = "L107" // empty or malformed ref
	ErrUnknownField = "L108" // field not allowed on this def kind
	ErrMissingField = "L109" // required field absent from a def
)

// ValidationError reports a structural violation in a lexicon document.
// Path points at the offending node, e.g. "defs.main.record.required[1]".
type ValidationError struct {
	Code    string
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
}

func errAt(code, path, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// NSID pattern: minimum 3 dot-separated segments, domain-name-shaped
// authority, alpha-led final name segment.
var nsidRe = regexp.MustCompile(
	`^[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+(\.[a-zA-Z]([a-zA-Z0-9]{0,62})?)$`)

// IsNSID reports whether s is a syntactically valid NSID.
func IsNSID(s string) bool {
	return len(s) <= 317 && strings.Count(s, ".") >= 2 && nsidRe.MatchString(s)
}

// Primary def types — only valid under defs.main.
var primaryKinds = map[string]bool{
	"record": true, "query": true, "procedure": true, "subscription": true,
}

// Non-primary def types — valid under any defs key.
var fieldKinds = map[string]bool{
	"object": true, "array": true, "token": true, "boolean": true,
	"integer": true, "string": true, "unknown": true, "bytes": true,
	"cid-link": true, "blob": true,
}

// Validate checks a candidate lexicon document against the type grammar.
// It returns the first structural violation found as a *ValidationError;
// a document is never partially accepted. Pure: no side effects.
func Validate(doc map[string]any) error {
	ver, ok := numberField(doc, "lexicon")
	if !ok || ver != 1 {
		return errAt(ErrBadVersion, "lexicon", "must be the integer 1")
	}

	id, ok := doc["id"].(string)
	if !ok || !IsNSID(id) {
		return errAt(ErrBadID, "id", "must be an NSID with at least 3 dot-separated segments")
	}

	defs, ok := doc["defs"].(map[string]any)
	if !ok || len(defs) == 0 {
		return errAt(ErrBadDefs, "defs", "must be a non-empty object")
	}

	for name, raw := range defs {
		path := "defs." + name
		def, ok := raw.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path, "def must be an object")
		}
		kind, _ := def["type"].(string)
		switch {
		case name == "main" && primaryKinds[kind]:
			if err := validatePrimaryDef(path, kind, def); err != nil {
				return err
			}
		case fieldKinds[kind]:
			if err := validateFieldDef(path, def, fieldContextDef); err != nil {
				return err
			}
		case primaryKinds[kind]:
			return errAt(ErrBadDefKind, path, "primary type %q is only allowed under the 'main' key", kind)
		default:
			return errAt(ErrBadDefKind, path, "unknown def type %q", kind)
		}
	}
	return nil
}

// validatePrimaryDef handles record/query/procedure/subscription defs.
func validatePrimaryDef(path, kind string, def map[string]any) error {
	switch kind {
	case "record":
		return validateRecordDef(path, def)
	case "query":
		return validateEndpointDef(path, def, false)
	case "procedure":
		return validateEndpointDef(path, def, true)
	case "subscription":
		return validateSubscriptionDef(path, def)
	}
	return errAt(ErrBadDefKind, path, "unknown primary type %q", kind)
}

func validateRecordDef(path string, def map[string]any) error {
	rec, ok := def["record"].(map[string]any)
	if !ok {
		return errAt(ErrMissingField, path+".record", "record def requires a 'record' object schema")
	}
	key, ok := def["key"].(string)
	if !ok {
		return errAt(ErrMissingField, path+".key", "record def requires a 'key' type")
	}
	if !ValidKeyType(key) {
		return errAt(ErrBadKey, path+".key", "invalid key type %q: expected tid, any, nsid, or literal:<value>", key)
	}
	if kind, _ := rec["type"].(string); kind != "object" {
		return errAt(ErrBadField, path+".record.type", "record schema must be an object def")
	}
	return validateObjectDef(path+".record", rec)
}

// validateEndpointDef handles query and procedure defs.
// Procedures may additionally declare an input body.
func validateEndpointDef(path string, def map[string]any, allowInput bool) error {
	if params, ok := def["parameters"]; ok {
		p, ok := params.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".parameters", "parameters must be an object")
		}
		if err := validateParamsDef(path+".parameters", p); err != nil {
			return err
		}
	}
	if input, ok := def["input"]; ok {
		if !allowInput {
			return errAt(ErrUnknownField, path+".input", "queries cannot declare an input body")
		}
		b, ok := input.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".input", "input must be an object")
		}
		if err := validateBodyDef(path+".input", b); err != nil {
			return err
		}
	}
	if output, ok := def["output"]; ok {
		b, ok := output.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".output", "output must be an object")
		}
		if err := validateBodyDef(path+".output", b); err != nil {
			return err
		}
	}
	if errs, ok := def["errors"]; ok {
		if err := validateErrorsDef(path+".errors", errs); err != nil {
			return err
		}
	}
	return nil
}

func validateSubscriptionDef(path string, def map[string]any) error {
	if params, ok := def["parameters"]; ok {
		p, ok := params.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".parameters", "parameters must be an object")
		}
		if err := validateParamsDef(path+".parameters", p); err != nil {
			return err
		}
	}
	if msg, ok := def["message"]; ok {
		m, ok := msg.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".message", "message must be an object")
		}
		schema, ok := m["schema"].(map[string]any)
		if !ok {
			return errAt(ErrMissingField, path+".message.schema", "subscription message requires a schema")
		}
		if kind, _ := schema["type"].(string); kind != "union" {
			return errAt(ErrBadField, path+".message.schema", "subscription message schema must be a union")
		}
		if err := validateUnionDef(path+".message.schema", schema); err != nil {
			return err
		}
	}
	if errs, ok := def["errors"]; ok {
		if err := validateErrorsDef(path+".errors", errs); err != nil {
			return err
		}
	}
	return nil
}

// validateBodyDef handles an XRPC input/output body: requires an encoding,
// with an optional object/ref/union schema.
func validateBodyDef(path string, body map[string]any) error {
	if _, ok := body["encoding"].(string); !ok {
		return errAt(ErrMissingField, path+".encoding", "body requires a MIME encoding")
	}
	schema, ok := body["schema"]
	if !ok {
		return nil
	}
	s, ok := schema.(map[string]any)
	if !ok {
		return errAt(ErrBadField, path+".schema", "schema must be an object")
	}
	switch kind, _ := s["type"].(string); kind {
	case "object":
		return validateObjectDef(path+".schema", s)
	case "ref":
		return validateRefDef(path+".schema", s)
	case "union":
		return validateUnionDef(path+".schema", s)
	default:
		return errAt(ErrBadField, path+".schema", "body schema must be an object, ref, or union")
	}
}

func validateErrorsDef(path string, errs any) error {
	list, ok := errs.([]any)
	if !ok {
		return errAt(ErrBadField, path, "errors must be an array")
	}
	for i, raw := range list {
		e, ok := raw.(map[string]any)
		if !ok {
			return errAt(ErrBadField, fmt.Sprintf("%s[%d]", path, i), "error entry must be an object")
		}
		name, ok := e["name"].(string)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return errAt(ErrBadField, fmt.Sprintf("%s[%d].name", path, i), "error name must be a non-empty string with no whitespace")
		}
	}
	return nil
}

// Contexts restrict which field kinds are valid in a position.
type fieldContext int

const (
	fieldContextDef      fieldContext = iota // a named non-main def
	fieldContextProperty                     // an object property
	fieldContextItem                         // an array item
	fieldContextParam                        // an XRPC parameter
)

// validateFieldDef dispatches a non-primary def by its type tag.
// The switch is exhaustive over the closed kind set.
func validateFieldDef(path string, def map[string]any, ctx fieldContext) error {
	kind, _ := def["type"].(string)
	switch kind {
	case "object":
		if ctx == fieldContextProperty || ctx == fieldContextItem || ctx == fieldContextParam {
			return errAt(ErrBadDefKind, path, "inline objects are not allowed here, use a ref")
		}
		return validateObjectDef(path, def)
	case "array":
		if ctx == fieldContextItem {
			return errAt(ErrBadDefKind, path, "nested arrays are not allowed")
		}
		return validateArrayDef(path, def, ctx)
	case "token":
		if ctx != fieldContextDef {
			return errAt(ErrBadDefKind, path, "tokens are only valid as named defs")
		}
		return nil
	case "boolean", "integer", "string", "unknown":
		return validatePrimitiveDef(path, kind, def)
	case "bytes", "cid-link":
		if ctx == fieldContextParam {
			return errAt(ErrBadDefKind, path, "%s is not allowed in parameters", kind)
		}
		return nil
	case "blob":
		if ctx == fieldContextParam {
			return errAt(ErrBadDefKind, path, "blobs are not allowed in parameters")
		}
		return nil
	case "ref":
		if ctx == fieldContextParam {
			return errAt(ErrBadDefKind, path, "refs are not allowed in parameters")
		}
		return validateRefDef(path, def)
	case "union":
		if ctx == fieldContextParam {
			return errAt(ErrBadDefKind, path, "unions are not allowed in parameters")
		}
		return validateUnionDef(path, def)
	default:
		return errAt(ErrBadDefKind, path, "unknown def type %q", kind)
	}
}

func validateObjectDef(path string, def map[string]any) error {
	props, ok := def["properties"].(map[string]any)
	if !ok {
		return errAt(ErrMissingField, path+".properties", "object def requires a 'properties' map")
	}
	for name, raw := range props {
		p, ok := raw.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".properties."+name, "property must be an object")
		}
		if err := validateFieldDef(path+".properties."+name, p, fieldContextProperty); err != nil {
			return err
		}
	}
	for _, subset := range []string{"required", "nullable"} {
		raw, ok := def[subset]
		if !ok {
			continue
		}
		names, ok := raw.([]any)
		if !ok {
			return errAt(ErrBadField, path+"."+subset, "%s must be an array of property names", subset)
		}
		for i, n := range names {
			name, ok := n.(string)
			if !ok {
				return errAt(ErrBadField, fmt.Sprintf("%s.%s[%d]", path, subset, i), "entry must be a string")
			}
			if _, declared := props[name]; !declared {
				return errAt(ErrBadSubset, fmt.Sprintf("%s.%s[%d]", path, subset, i),
					"%q is not a declared property", name)
			}
		}
	}
	return nil
}

func validateArrayDef(path string, def map[string]any, ctx fieldContext) error {
	items, ok := def["items"].(map[string]any)
	if !ok {
		return errAt(ErrMissingField, path+".items", "array def requires an 'items' schema")
	}
	itemCtx := fieldContextItem
	if ctx == fieldContextParam {
		// Parameter arrays are restricted to primitive items.
		itemCtx = fieldContextParam
	}
	return validateFieldDef(path+".items", items, itemCtx)
}

func validatePrimitiveDef(path, kind string, def map[string]any) error {
	switch kind {
	case "string":
		for _, f := range []string{"minLength", "maxLength", "minGraphemes", "maxGraphemes"} {
			if raw, ok := def[f]; ok {
				if n, ok := asInt(raw); !ok || n < 0 {
					return errAt(ErrBadField, path+"."+f, "must be a non-negative integer")
				}
			}
		}
	case "integer":
		for _, f := range []string{"minimum", "maximum", "default", "const"} {
			if raw, ok := def[f]; ok {
				if _, ok := asInt(raw); !ok {
					return errAt(ErrBadField, path+"."+f, "must be an integer")
				}
			}
		}
	case "boolean":
		for _, f := range []string{"default", "const"} {
			if raw, ok := def[f]; ok {
				if _, isBool := raw.(bool); !isBool {
					return errAt(ErrBadField, path+"."+f, "must be a boolean")
				}
			}
		}
	}
	return nil
}

func validateRefDef(path string, def map[string]any) error {
	ref, ok := def["ref"].(string)
	if !ok || ref == "" {
		return errAt(ErrBadRef, path+".ref", "ref def requires a non-empty 'ref' string")
	}
	return nil
}

func validateUnionDef(path string, def map[string]any) error {
	refs, ok := def["refs"].([]any)
	if !ok || len(refs) == 0 {
		return errAt(ErrBadRef, path+".refs", "union def requires a non-empty 'refs' array")
	}
	for i, raw := range refs {
		if ref, ok := raw.(string); !ok || ref == "" {
			return errAt(ErrBadRef, fmt.Sprintf("%s.refs[%d]", path, i), "must be a non-empty string")
		}
	}
	return nil
}

// validateParamsDef handles an XRPC parameters block: only primitives and
// primitive arrays are allowed, and required names must be declared.
func validateParamsDef(path string, def map[string]any) error {
	props, ok := def["properties"].(map[string]any)
	if !ok {
		return errAt(ErrMissingField, path+".properties", "params def requires a 'properties' map")
	}
	for name, raw := range props {
		p, ok := raw.(map[string]any)
		if !ok {
			return errAt(ErrBadField, path+".properties."+name, "parameter must be an object")
		}
		if err := validateFieldDef(path+".properties."+name, p, fieldContextParam); err != nil {
			return err
		}
	}
	if raw, ok := def["required"]; ok {
		names, ok := raw.([]any)
		if !ok {
			return errAt(ErrBadField, path+".required", "required must be an array of parameter names")
		}
		for i, n := range names {
			name, ok := n.(string)
			if !ok {
				return errAt(ErrBadField, fmt.Sprintf("%s.required[%d]", path, i), "entry must be a string")
			}
			if _, declared := props[name]; !declared {
				return errAt(ErrBadSubset, fmt.Sprintf("%s.required[%d]", path, i),
					"%q is not a declared parameter", name)
			}
		}
	}
	return nil
}

// ValidKeyType reports whether a record key type is one of
// tid, any, nsid, or literal:<value>.
func ValidKeyType(key string) bool {
	switch key {
	case "tid", "any", "nsid":
		return true
	}
	return strings.HasPrefix(key, "literal:") && len(key) > len("literal:")
}

// numberField reads an integral numeric field from a decoded JSON object.
func numberField(m map[string]any, key string) (int64, bool) {
	return asInt(m[key])
}

// asInt converts a value that may have been decoded as float64
// (encoding/json), int, or int64 to an integer.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
