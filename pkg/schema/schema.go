// Package schema holds JSON Schema documents used both to describe tool
// parameters to agents and to validate the arguments agents send back.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// Schema is an immutable, compiled JSON Schema. The zero value accepts any
// JSON object.
type Schema struct {
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

var (
	emptyObject = json.RawMessage(`{"type":"object","properties":{}}`)
	noParams    = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
)

// Empty returns a schema for a tool that takes no parameters.
func Empty() Schema {
	s, err := FromJSON(noParams)
	if err != nil {
		panic(err)
	}
	return s
}

// For reflects a schema from the Go type T. Field names follow json tags and
// fields without omitempty are required. Descriptions are read from the
// `jsonschema:"description=..."` tag.
func For[T any]() (Schema, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	reflected := r.Reflect(new(T))
	reflected.Version = ""
	raw, err := json.Marshal(reflected)
	if err != nil {
		return Schema{}, fmt.Errorf("marshal reflected schema: %w", err)
	}
	return FromJSON(raw)
}

// MustFor is like For but panics on error. Intended for package level tool
// definitions.
func MustFor[T any]() Schema {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// FromJSON compiles a raw schema document.
func FromJSON(raw []byte) (Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Schema{}, errors.New("schema document is empty")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	// Draft identifiers emitted by reflection are not understood by the
	// validator; the keywords we use are common to every draft.
	delete(doc, "$schema")
	delete(doc, "$id")
	if _, ok := doc["type"]; !ok {
		doc["type"] = "object"
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return Schema{}, fmt.Errorf("encode schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(normalized))
	if err != nil {
		return Schema{}, fmt.Errorf("compile schema: %w", err)
	}
	return Schema{raw: normalized, compiled: compiled}, nil
}

// Property describes one scalar member of an Object schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
}

// Object builds an object schema from a property table. Unknown properties
// are rejected.
func Object(properties map[string]Property, required ...string) (Schema, error) {
	for _, name := range required {
		if _, ok := properties[name]; !ok {
			return Schema{}, fmt.Errorf("required property %q is not declared", name)
		}
	}
	if properties == nil {
		properties = map[string]Property{}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Schema{}, err
	}
	return FromJSON(raw)
}

// IsZero reports whether s was never compiled.
func (s Schema) IsZero() bool { return s.compiled == nil }

// JSON returns the schema document.
func (s Schema) JSON() json.RawMessage {
	if s.IsZero() {
		return append(json.RawMessage(nil), emptyObject...)
	}
	return append(json.RawMessage(nil), s.raw...)
}

// Map returns the schema document decoded into a generic map.
func (s Schema) Map() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(s.JSON(), &out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s Schema) MarshalJSON() ([]byte, error) { return s.JSON(), nil }

// Validate checks raw against the schema. Empty input is treated as an empty
// object. Any failure, including malformed JSON, is reported as a
// *ValidationError.
func (s Schema) Validate(raw json.RawMessage) error {
	doc := normalizeInput(raw)
	if !json.Valid(doc) {
		return &ValidationError{Errors: []FieldError{{Message: "arguments are not valid JSON"}}}
	}
	if s.IsZero() {
		var obj map[string]any
		if err := json.Unmarshal(doc, &obj); err != nil {
			return &ValidationError{Errors: []FieldError{{Message: "arguments must be a JSON object"}}}
		}
		return nil
	}
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ValidationError{Errors: []FieldError{{Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Errors = append(verr.Errors, FieldError{Field: fieldOf(re), Message: re.Description()})
	}
	sort.SliceStable(verr.Errors, func(i, j int) bool { return verr.Errors[i].Field < verr.Errors[j].Field })
	return verr
}

func normalizeInput(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}")
	}
	return trimmed
}

func fieldOf(re gojsonschema.ResultError) string {
	field := re.Field()
	switch re.Type() {
	case "required", "additional_property_not_allowed":
		if prop, ok := re.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_CONTEXT_ROOT {
				return prop
			}
			return field + "." + prop
		}
	}
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		return ""
	}
	return field
}

// FieldError is a single validation failure.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + ": " + f.Message
}

// ValidationError lists every reason an argument document was rejected.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
