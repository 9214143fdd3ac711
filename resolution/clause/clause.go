// Package clause is the backend-neutral boolean query language produced by the
// query builder and understood by every document store adapter.
//
// A Clause is a flat struct discriminated by Type. Leaf clauses (term, match,
// fuzzy, prefix, range) address a document field by dot path; ids addresses the
// document id; bool composes other clauses. Clauses marshal to JSON as-is, which
// is also the format accepted for raw input clauses.
package clause

import (
	"bytes"
	"encoding/json"

	"github.com/teranos/entres/errors"
)

// Type discriminates clause kinds
type Type string

const (
	TypeBool     Type = "bool"
	TypeTerm     Type = "term"
	TypeMatch    Type = "match"
	TypeFuzzy    Type = "fuzzy"
	TypePrefix   Type = "prefix"
	TypeRange    Type = "range"
	TypeIDs      Type = "ids"
	TypeMatchAll Type = "match_all"
)

// ValueType says how a leaf compares document values
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueDate    ValueType = "date"
)

// Clause is one node of a query tree
type Clause struct {
	Type Type `json:"type"`

	// Leaf fields
	Field     string    `json:"field,omitempty"`
	Value     any       `json:"value,omitempty"`
	ValueType ValueType `json:"value_type,omitempty"`
	Fuzziness int       `json:"fuzziness,omitempty"`
	Gte       any       `json:"gte,omitempty"`
	Lte       any       `json:"lte,omitempty"`
	Format    string    `json:"format,omitempty"` // Go time layout for date values stored in documents

	// ids
	Values []string `json:"values,omitempty"`

	// bool
	Must               []Clause `json:"must,omitempty"`
	Filter             []Clause `json:"filter,omitempty"`
	Should             []Clause `json:"should,omitempty"`
	MustNot            []Clause `json:"must_not,omitempty"`
	MinimumShouldMatch int      `json:"minimum_should_match,omitempty"`

	// Name tags a clause so explanations can refer to it
	Name string `json:"_name,omitempty"`
}

// Term matches documents whose field holds exactly value
func Term(field string, vt ValueType, value any) Clause {
	return Clause{Type: TypeTerm, Field: field, ValueType: vt, Value: value}
}

// Match matches string fields equal to value ignoring case
func Match(field, value string) Clause {
	return Clause{Type: TypeMatch, Field: field, ValueType: ValueString, Value: value}
}

// Fuzzy matches string fields within fuzziness edits of value
func Fuzzy(field, value string, fuzziness int) Clause {
	return Clause{Type: TypeFuzzy, Field: field, ValueType: ValueString, Value: value, Fuzziness: fuzziness}
}

// Prefix matches string fields starting with value, ignoring case
func Prefix(field, value string) Clause {
	return Clause{Type: TypePrefix, Field: field, ValueType: ValueString, Value: value}
}

// Range matches number or date fields within [gte, lte]. Either bound may be nil.
func Range(field string, vt ValueType, gte, lte any) Clause {
	return Clause{Type: TypeRange, Field: field, ValueType: vt, Gte: gte, Lte: lte}
}

// IDs matches documents by id
func IDs(ids ...string) Clause {
	return Clause{Type: TypeIDs, Values: ids}
}

// MatchAll matches every document
func MatchAll() Clause {
	return Clause{Type: TypeMatchAll}
}

// AnyOf is a bool clause satisfied by at least one of clauses.
// A single clause is returned unwrapped.
func AnyOf(clauses ...Clause) Clause {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return Clause{Type: TypeBool, Should: clauses, MinimumShouldMatch: 1}
}

// AllOf is a bool clause satisfied when every clause is.
// A single clause is returned unwrapped.
func AllOf(clauses ...Clause) Clause {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return Clause{Type: TypeBool, Must: clauses}
}

// IsLeaf reports whether c matches on its own rather than composing other clauses
func (c Clause) IsLeaf() bool {
	return c.Type != TypeBool
}

// LeafCount counts the leaf clauses in the tree rooted at c
func (c Clause) LeafCount() int {
	if c.IsLeaf() {
		return 1
	}
	n := 0
	for _, group := range [][]Clause{c.Must, c.Filter, c.Should, c.MustNot} {
		for _, child := range group {
			n += child.LeafCount()
		}
	}
	return n
}

// EffectiveMinimumShouldMatch returns how many should clauses must hold.
// Without must or filter clauses at least one should clause is required.
func (c Clause) EffectiveMinimumShouldMatch() int {
	if c.MinimumShouldMatch > 0 {
		return c.MinimumShouldMatch
	}
	if len(c.Should) > 0 && len(c.Must) == 0 && len(c.Filter) == 0 {
		return 1
	}
	return 0
}

// Validate checks that c and all of its children are well formed
func (c Clause) Validate() error {
	switch c.Type {
	case TypeBool:
		if len(c.Must)+len(c.Filter)+len(c.Should)+len(c.MustNot) == 0 {
			return errors.NewInvalidRequestError("bool clause has no children")
		}
		if c.MinimumShouldMatch < 0 || c.MinimumShouldMatch > len(c.Should) {
			return errors.NewInvalidRequestError("bool clause minimum_should_match %d is out of range for %d should clauses",
				c.MinimumShouldMatch, len(c.Should))
		}
		for _, group := range [][]Clause{c.Must, c.Filter, c.Should, c.MustNot} {
			for _, child := range group {
				if err := child.Validate(); err != nil {
					return err
				}
			}
		}
		return nil

	case TypeTerm:
		if err := c.requireField(); err != nil {
			return err
		}
		if c.Value == nil {
			return errors.NewInvalidRequestError("term clause on %q has no value", c.Field)
		}
		return c.validateValueType()

	case TypeMatch, TypeFuzzy, TypePrefix:
		if err := c.requireField(); err != nil {
			return err
		}
		if _, ok := c.Value.(string); !ok {
			return errors.NewInvalidRequestError("%s clause on %q needs a string value", c.Type, c.Field)
		}
		if c.Fuzziness < 0 {
			return errors.NewInvalidRequestError("fuzzy clause on %q has negative fuzziness", c.Field)
		}
		return nil

	case TypeRange:
		if err := c.requireField(); err != nil {
			return err
		}
		if c.Gte == nil && c.Lte == nil {
			return errors.NewInvalidRequestError("range clause on %q has no bounds", c.Field)
		}
		if c.ValueType != ValueNumber && c.ValueType != ValueDate {
			return errors.NewInvalidRequestError("range clause on %q needs value_type number or date", c.Field)
		}
		return nil

	case TypeIDs:
		if len(c.Values) == 0 {
			return errors.NewInvalidRequestError("ids clause has no values")
		}
		return nil

	case TypeMatchAll:
		return nil

	case "":
		return errors.NewInvalidRequestError("clause is missing \"type\"")

	default:
		return errors.NewInvalidRequestError("unknown clause type %q", c.Type)
	}
}

func (c Clause) requireField() error {
	if c.Field == "" {
		return errors.NewInvalidRequestError("%s clause is missing \"field\"", c.Type)
	}
	return nil
}

func (c Clause) validateValueType() error {
	switch c.ValueType {
	case "", ValueString, ValueNumber, ValueBoolean, ValueDate:
		return nil
	default:
		return errors.NewInvalidRequestError("unknown value_type %q on %q", c.ValueType, c.Field)
	}
}

// Parse decodes and validates a clause from JSON. Unknown keys are rejected.
// A term clause without value_type infers it from the JSON value.
func Parse(data []byte) (Clause, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var c Clause
	if err := dec.Decode(&c); err != nil {
		return Clause{}, errors.WrapInvalidRequest(err, "failed to parse clause")
	}
	c.inferValueTypes()
	if err := c.Validate(); err != nil {
		return Clause{}, err
	}
	return c, nil
}

func (c *Clause) inferValueTypes() {
	if c.Type == TypeTerm && c.ValueType == "" {
		switch c.Value.(type) {
		case float64:
			c.ValueType = ValueNumber
		case bool:
			c.ValueType = ValueBoolean
		default:
			c.ValueType = ValueString
		}
	}
	for _, group := range [][]Clause{c.Must, c.Filter, c.Should, c.MustNot} {
		for i := range group {
			group[i].inferValueTypes()
		}
	}
}
