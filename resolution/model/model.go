// Package model holds entity models: the attributes of an entity type, the
// resolvers that decide when documents describe the same entity, the matchers
// that compare values, and the indices whose fields carry attribute values.
//
// A model is parsed once and is read-only afterwards, so it is safe to share
// between concurrent jobs.
package model

import (
	"encoding/json"
	"regexp"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/clause"
)

// AttributeType is the value type of an attribute
type AttributeType string

const (
	TypeString  AttributeType = "string"
	TypeNumber  AttributeType = "number"
	TypeBoolean AttributeType = "boolean"
	TypeDate    AttributeType = "date"
)

// Attribute is a named, typed property of an entity
type Attribute struct {
	Name   string
	Type   AttributeType
	Params Params
}

// Resolver decides that a document matches when every attribute of at least
// one of its sets matches
type Resolver struct {
	Name string
	Sets [][]string
}

// MatcherDef is a named matcher declared by the model
type MatcherDef struct {
	Name   string
	Kind   string
	Params Params
}

// Field maps a document field path in an index to an attribute and the matcher
// used to query it. The matcher is resolved against the attribute type at load.
type Field struct {
	Path      string
	Attribute *Attribute
	Matcher   *MatcherDef

	compiled Matcher
}

// Params merges matcher params, attribute params, then input params
func (f *Field) Params(input Params) Params {
	return MergeParams(f.Matcher.Params, f.Attribute.Params, input)
}

// Clause builds the clause matching v on this field
func (f *Field) Clause(v Value, input Params) (clause.Clause, error) {
	c, err := f.compiled.Clause(f.Path, v, f.Params(input))
	if err != nil {
		return clause.Clause{}, errors.Wrapf(err, "field %q", f.Path)
	}
	return c, nil
}

// Matches reports whether the document's value at this field matches v
func (f *Field) Matches(id string, source map[string]any, v Value, input Params) (bool, error) {
	c, err := f.Clause(v, input)
	if err != nil {
		return false, err
	}
	return c.Matches(id, source), nil
}

// Values extracts the attribute values a document holds at this field.
// Values that do not parse for the attribute type are skipped.
func (f *Field) Values(source map[string]any, input Params) []Value {
	raws := clause.FieldValues(source, f.Path)
	if len(raws) == 0 {
		return nil
	}
	p := f.Params(input)
	out := make([]Value, 0, len(raws))
	for _, raw := range raws {
		if v, err := ParseValue(f.Attribute, raw, p); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Index is a document collection and its attribute-bearing fields
type Index struct {
	Name   string
	Fields []*Field
}

// FieldsFor returns the fields mapped to attr, in declared order
func (ix *Index) FieldsFor(attr string) []*Field {
	var out []*Field
	for _, f := range ix.Fields {
		if f.Attribute.Name == attr {
			out = append(out, f)
		}
	}
	return out
}

// Model is a parsed, validated entity model. Every section keeps its declared order.
type Model struct {
	Attributes []*Attribute
	Resolvers  []*Resolver
	Matchers   []*MatcherDef
	Indices    []*Index

	attributes map[string]*Attribute
	resolvers  map[string]*Resolver
	matchers   map[string]*MatcherDef
	indices    map[string]*Index

	source json.RawMessage
}

// Attribute looks up an attribute by name
func (m *Model) Attribute(name string) (*Attribute, bool) {
	a, ok := m.attributes[name]
	return a, ok
}

// Resolver looks up a resolver by name
func (m *Model) Resolver(name string) (*Resolver, bool) {
	r, ok := m.resolvers[name]
	return r, ok
}

// Matcher looks up a matcher definition by name
func (m *Model) Matcher(name string) (*MatcherDef, bool) {
	d, ok := m.matchers[name]
	return d, ok
}

// Index looks up an index by name
func (m *Model) Index(name string) (*Index, bool) {
	ix, ok := m.indices[name]
	return ix, ok
}

// MarshalJSON returns the model document as it was parsed (YAML models as JSON)
func (m *Model) MarshalJSON() ([]byte, error) {
	return m.source, nil
}

var entityTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,254}$`)

// ValidateEntityType checks an entity type name: lowercase letters, digits, '_' and '-'
func ValidateEntityType(name string) error {
	if name == "" {
		return errors.NewInvalidRequestError("entity type is empty")
	}
	if !entityTypePattern.MatchString(name) {
		return errors.NewInvalidRequestError("invalid entity type %q: use lowercase letters, digits, '_' and '-'", name)
	}
	return nil
}
