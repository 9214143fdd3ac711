package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/internal/util"
)

// Value is an attribute value: the attribute it belongs to and a typed value.
// Values are immutable; two values are the same value when their Keys are equal.
type Value struct {
	attribute string
	typ       AttributeType
	raw       any
	native    any
	canonical string
}

// ParseValue converts a JSON value into a Value of attr's type. p supplies the
// date layout ("format") for date attributes.
func ParseValue(attr *Attribute, raw any, p Params) (Value, error) {
	if n, ok := raw.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return Value{}, errors.NewInvalidRequestError("attribute %q: %q is not a number", attr.Name, n)
		}
		raw = f
	}

	v := Value{attribute: attr.Name, typ: attr.Type, raw: raw}
	switch attr.Type {
	case TypeString:
		switch s := raw.(type) {
		case string:
			if s == "" {
				return Value{}, errors.NewInvalidRequestError("attribute %q: empty string", attr.Name)
			}
			v.native, v.canonical = s, s
		case float64:
			v.canonical = strconv.FormatFloat(s, 'f', -1, 64)
			v.native, v.raw = v.canonical, v.canonical
		default:
			return Value{}, errors.NewInvalidRequestError("attribute %q expects a string, got %T", attr.Name, raw)
		}

	case TypeNumber:
		var f float64
		switch n := raw.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return Value{}, errors.NewInvalidRequestError("attribute %q: %q is not a number", attr.Name, n)
			}
			f = parsed
		default:
			return Value{}, errors.NewInvalidRequestError("attribute %q expects a number, got %T", attr.Name, raw)
		}
		v.native, v.raw = f, f
		v.canonical = strconv.FormatFloat(f, 'f', -1, 64)

	case TypeBoolean:
		var b bool
		switch x := raw.(type) {
		case bool:
			b = x
		case string:
			parsed, err := strconv.ParseBool(x)
			if err != nil {
				return Value{}, errors.NewInvalidRequestError("attribute %q: %q is not a boolean", attr.Name, x)
			}
			b = parsed
		default:
			return Value{}, errors.NewInvalidRequestError("attribute %q expects a boolean, got %T", attr.Name, raw)
		}
		v.native, v.raw = b, b
		v.canonical = strconv.FormatBool(b)

	case TypeDate:
		layout, err := p.String("format", "")
		if err != nil {
			return Value{}, err
		}
		t, ok := util.ParseTime(raw, layout)
		if !ok {
			return Value{}, errors.NewInvalidRequestError("attribute %q: %v is not a date", attr.Name, raw)
		}
		v.native = t
		v.canonical = t.Format(time.RFC3339Nano)

	default:
		return Value{}, errors.NewInvalidRequestError("attribute %q has unsupported type %q", attr.Name, attr.Type)
	}
	return v, nil
}

// Attribute is the name of the attribute v belongs to
func (v Value) Attribute() string { return v.attribute }

// Type is the attribute type of v
func (v Value) Type() AttributeType { return v.typ }

// Raw is the JSON form v was first seen in
func (v Value) Raw() any { return v.raw }

// Native is v as a Go value: string, float64, bool, or time.Time
func (v Value) Native() any { return v.native }

// String is the canonical text form, used for identity and date clauses
func (v Value) String() string { return v.canonical }

// Key identifies v across hops
func (v Value) Key() string { return v.attribute + "\x1f" + v.canonical }

// ValueSet is an insertion-ordered set of values grouped by attribute
type ValueSet struct {
	attrs  []string
	byAttr map[string][]Value
	keys   map[string]struct{}
}

// NewValueSet returns an empty set
func NewValueSet() *ValueSet {
	return &ValueSet{byAttr: map[string][]Value{}, keys: map[string]struct{}{}}
}

// Add inserts v and reports whether it was new
func (s *ValueSet) Add(v Value) bool {
	if _, ok := s.keys[v.Key()]; ok {
		return false
	}
	s.keys[v.Key()] = struct{}{}
	if _, ok := s.byAttr[v.attribute]; !ok {
		s.attrs = append(s.attrs, v.attribute)
	}
	s.byAttr[v.attribute] = append(s.byAttr[v.attribute], v)
	return true
}

// Has reports whether v is in the set
func (s *ValueSet) Has(v Value) bool {
	_, ok := s.keys[v.Key()]
	return ok
}

// Values returns attr's values in insertion order
func (s *ValueSet) Values(attr string) []Value {
	return s.byAttr[attr]
}

// Attributes returns the attributes with values, in first-seen order
func (s *ValueSet) Attributes() []string {
	return s.attrs
}

// Len counts all values
func (s *ValueSet) Len() int {
	return len(s.keys)
}

// All returns every value, grouped by attribute in first-seen order
func (s *ValueSet) All() []Value {
	out := make([]Value, 0, len(s.keys))
	for _, a := range s.attrs {
		out = append(out, s.byAttr[a]...)
	}
	return out
}

// Union returns a new set holding s's values followed by other's
func (s *ValueSet) Union(other *ValueSet) *ValueSet {
	out := NewValueSet()
	for _, v := range s.All() {
		out.Add(v)
	}
	for _, v := range other.All() {
		out.Add(v)
	}
	return out
}
