// Package schema parses node input, output and config schemas into a typed
// tree and validates payloads against them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Kind is the JSON type a schema node describes.
type Kind string

const (
	KindAny     Kind = "any"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindNull    Kind = "null"
)

var ErrInvalidSchema = errors.New("invalid schema")

// Schema is a parsed JSON schema document restricted to the subset node
// definitions use.
type Schema struct {
	Kind        Kind               `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Default     any                `json:"default,omitempty"`

	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

// Any returns a schema that accepts every value.
func Any() *Schema {
	return &Schema{Kind: KindAny}
}

// Parse decodes and checks a schema document. An empty document yields Any.
func Parse(doc json.RawMessage) (*Schema, error) {
	if len(strings.TrimSpace(string(doc))) == 0 || string(doc) == "null" {
		return Any(), nil
	}

	var tree map[string]any

	err := json.Unmarshal(doc, &tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	s, err := parseNode(tree, "$")
	if err != nil {
		return nil, err
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	s.raw = slices.Clone(doc)
	s.compiled = compiled

	return s, nil
}

// MustParse is Parse for statically known documents.
func MustParse(doc string) *Schema {
	s, err := Parse(json.RawMessage(doc))
	if err != nil {
		panic(err)
	}

	return s
}

func parseNode(tree map[string]any, path string) (*Schema, error) {
	s := &Schema{Kind: KindAny}

	switch t := tree["type"].(type) {
	case nil:
	case string:
		kind := Kind(t)
		if !kind.valid() {
			return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidSchema, path, t)
		}

		s.Kind = kind
	case []any:
		// Type unions are accepted but treated as any.
		for _, member := range t {
			name, ok := member.(string)
			if !ok || !Kind(name).valid() {
				return nil, fmt.Errorf("%w: %s has invalid type union", ErrInvalidSchema, path)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s type must be a string", ErrInvalidSchema, path)
	}

	if description, ok := tree["description"].(string); ok {
		s.Description = description
	}

	if rawProps, ok := tree["properties"]; ok {
		props, ok := rawProps.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.properties must be an object", ErrInvalidSchema, path)
		}

		s.Properties = make(map[string]*Schema, len(props))

		for name, rawProp := range props {
			prop, ok := rawProp.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s.properties.%s must be an object", ErrInvalidSchema, path, name)
			}

			child, err := parseNode(prop, path+"."+name)
			if err != nil {
				return nil, err
			}

			s.Properties[name] = child
		}
	}

	if rawRequired, ok := tree["required"]; ok {
		required, ok := rawRequired.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.required must be an array", ErrInvalidSchema, path)
		}

		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.required must contain strings", ErrInvalidSchema, path)
			}

			s.Required = append(s.Required, name)
		}
	}

	if rawItems, ok := tree["items"]; ok {
		items, ok := rawItems.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.items must be an object", ErrInvalidSchema, path)
		}

		child, err := parseNode(items, path+"[]")
		if err != nil {
			return nil, err
		}

		s.Items = child
	}

	if rawEnum, ok := tree["enum"]; ok {
		enum, ok := rawEnum.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.enum must be an array", ErrInvalidSchema, path)
		}

		s.Enum = enum
	}

	s.Default = tree["default"]

	return s, nil
}

func (k Kind) valid() bool {
	switch k {
	case KindString, KindNumber, KindInteger, KindBoolean, KindObject, KindArray, KindNull:
		return true
	default:
		return false
	}
}

// Raw returns the source document, or nil for Any.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Fields returns the sorted top-level property names.
func (s *Schema) Fields() []string {
	fields := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		fields = append(fields, name)
	}

	sort.Strings(fields)

	return fields
}

// Validate checks value against the schema. The subject names the payload in
// the returned error.
func (s *Schema) Validate(subject string, value any) error {
	if s == nil || s.compiled == nil {
		return nil
	}

	if value == nil {
		value = map[string]any{}
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return &ValidationError{Subject: subject, Details: []string{err.Error()}}
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.String())
	}

	return &ValidationError{Subject: subject, Details: details}
}

// ValidationError lists every violation found in a payload.
type ValidationError struct {
	Subject string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is invalid: %s", e.Subject, strings.Join(e.Details, "; "))
}
