// Package input parses resolution requests and validates them against an entity model.
package input

import (
	"bytes"
	"encoding/json"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/clause"
	"github.com/teranos/entres/resolution/model"
)

// ErrMissingBody is returned for an empty request body
var ErrMissingBody = errors.Wrap(errors.ErrInvalidRequest, "Request body is missing.")

// Attribute is an input attribute: its values and the params overriding the model's
type Attribute struct {
	Name   string
	Values []model.Value
	Params model.Params
}

// CollectionIDs are document ids to fetch from one collection on the first hop
type CollectionIDs struct {
	Collection string
	IDs        []string
}

// CollectionClauses are raw clauses to run against one collection on the first hop
type CollectionClauses struct {
	Collection string
	Clauses    []clause.Clause
}

// ScopeSet narrows a job to attribute values, indices, and resolvers
type ScopeSet struct {
	Attributes []Attribute
	Indices    []string
	Resolvers  []string
}

// Scope restricts every query of a job
type Scope struct {
	Include ScopeSet
	Exclude ScopeSet
}

// Input is a validated resolution request
type Input struct {
	Attributes []Attribute
	Terms      []any
	IDs        []CollectionIDs
	Clauses    []CollectionClauses
	Scope      Scope

	// Model is the model the input was validated against. It is the embedded
	// model when the request carried one.
	Model *model.Model
}

// Params returns the input params for an attribute, or nil
func (in *Input) Params(attr string) model.Params {
	for _, a := range in.Attributes {
		if a.Name == attr {
			return a.Params
		}
	}
	return nil
}

// IDsFor returns the explicit ids for a collection
func (in *Input) IDsFor(collection string) []string {
	for _, c := range in.IDs {
		if c.Collection == collection {
			return c.IDs
		}
	}
	return nil
}

// ClausesFor returns the raw clauses for a collection
func (in *Input) ClausesFor(collection string) []clause.Clause {
	for _, c := range in.Clauses {
		if c.Collection == collection {
			return c.Clauses
		}
	}
	return nil
}

// ActiveIndices returns the model indices left after scope include/exclude, in model order
func (in *Input) ActiveIndices() []*model.Index {
	var out []*model.Index
	for _, ix := range in.Model.Indices {
		if inScope(ix.Name, in.Scope.Include.Indices, in.Scope.Exclude.Indices) {
			out = append(out, ix)
		}
	}
	return out
}

// ActiveResolvers returns the model resolvers left after scope include/exclude, in model order
func (in *Input) ActiveResolvers() []*model.Resolver {
	var out []*model.Resolver
	for _, r := range in.Model.Resolvers {
		if inScope(r.Name, in.Scope.Include.Resolvers, in.Scope.Exclude.Resolvers) {
			out = append(out, r)
		}
	}
	return out
}

func inScope(name string, include, exclude []string) bool {
	if len(include) > 0 && !contains(include, name) {
		return false
	}
	return !contains(exclude, name)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// HasCriteria reports whether the input names anything to search for
func (in *Input) HasCriteria() bool {
	for _, a := range in.Attributes {
		if len(a.Values) > 0 {
			return true
		}
	}
	return len(in.Terms) > 0 || len(in.IDs) > 0 || len(in.Clauses) > 0
}

// Parse parses a request body. m is the model of the requested entity type, or
// nil when the body must embed its own model.
func Parse(data []byte, m *model.Model) (*Input, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrMissingBody
	}
	members, err := model.DecodeObject(data)
	if err != nil {
		return nil, errors.Wrap(err, "input")
	}

	sections := map[string]json.RawMessage{}
	for _, mem := range members {
		switch mem.Key {
		case "attributes", "terms", "ids", "clauses", "scope", "model":
			sections[mem.Key] = mem.Value
		default:
			return nil, errors.NewInvalidRequestError("input has unknown field %q", mem.Key)
		}
	}

	in := &Input{Model: m}
	if raw, ok := sections["model"]; ok {
		if m != nil {
			return nil, errors.NewInvalidRequestError("specify either an entity type or an embedded model, not both")
		}
		if in.Model, err = model.Parse(raw); err != nil {
			return nil, err
		}
	}
	if in.Model == nil {
		return nil, errors.NewInvalidRequestError("input must embed a \"model\" when no entity type is given")
	}

	if in.Attributes, err = parseAttributes(in.Model, sections["attributes"], "attributes"); err != nil {
		return nil, err
	}
	if in.Terms, err = parseTerms(sections["terms"]); err != nil {
		return nil, err
	}
	if in.IDs, err = parseIDs(in.Model, sections["ids"]); err != nil {
		return nil, err
	}
	if in.Clauses, err = parseClauses(in.Model, sections["clauses"]); err != nil {
		return nil, err
	}
	if in.Scope, err = parseScope(in.Model, sections["scope"]); err != nil {
		return nil, err
	}

	if !in.HasCriteria() {
		return nil, errors.NewInvalidRequestError("input has no attributes, terms, ids, or clauses")
	}
	return in, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

type attributeDoc struct {
	Values json.RawMessage `json:"values"`
	Params model.Params    `json:"params"`
}

// parseAttributes accepts {attr: [v...]}, {attr: v}, or {attr: {values, params}}
func parseAttributes(m *model.Model, raw json.RawMessage, section string) ([]Attribute, error) {
	if isNull(raw) {
		return nil, nil
	}
	members, err := model.DecodeObject(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "input %q", section)
	}

	out := make([]Attribute, 0, len(members))
	for _, mem := range members {
		attr, ok := m.Attribute(mem.Key)
		if !ok {
			return nil, errors.NewInvalidRequestError("input %q names unknown attribute %q", section, mem.Key)
		}

		valuesRaw := mem.Value
		var params model.Params
		if trimmed := bytes.TrimSpace(mem.Value); len(trimmed) > 0 && trimmed[0] == '{' {
			var doc attributeDoc
			if err := model.DecodeStrict(mem.Value, &doc); err != nil {
				return nil, errors.Wrapf(err, "input attribute %q", mem.Key)
			}
			valuesRaw, params = doc.Values, doc.Params
		}

		raws, err := decodeValues(valuesRaw)
		if err != nil {
			return nil, errors.Wrapf(err, "input attribute %q", mem.Key)
		}

		p := model.MergeParams(attr.Params, params)
		a := Attribute{Name: attr.Name, Params: params}
		seen := model.NewValueSet()
		for _, r := range raws {
			v, err := model.ParseValue(attr, r, p)
			if err != nil {
				return nil, err
			}
			if seen.Add(v) {
				a.Values = append(a.Values, v)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// decodeValues reads a list of values or a single value; numbers keep full precision
func decodeValues(raw json.RawMessage) ([]any, error) {
	if isNull(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.WrapInvalidRequest(err, "malformed values")
	}
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			switch e.(type) {
			case map[string]any, []any:
				return nil, errors.NewInvalidRequestError("values must be scalars")
			}
		}
		return x, nil
	case map[string]any:
		return nil, errors.NewInvalidRequestError("values must be scalars")
	default:
		return []any{x}, nil
	}
}

func parseTerms(raw json.RawMessage) ([]any, error) {
	terms, err := decodeValues(raw)
	if err != nil {
		return nil, errors.Wrap(err, "input \"terms\"")
	}
	return terms, nil
}

func parseIDs(m *model.Model, raw json.RawMessage) ([]CollectionIDs, error) {
	if isNull(raw) {
		return nil, nil
	}
	members, err := model.DecodeObject(raw)
	if err != nil {
		return nil, errors.Wrap(err, "input \"ids\"")
	}
	var out []CollectionIDs
	for _, mem := range members {
		if _, ok := m.Index(mem.Key); !ok {
			return nil, errors.NewInvalidRequestError("input \"ids\" names unknown index %q", mem.Key)
		}
		var ids []string
		if err := json.Unmarshal(mem.Value, &ids); err != nil {
			return nil, errors.NewInvalidRequestError("input \"ids\" for %q must be a list of strings", mem.Key)
		}
		if len(ids) > 0 {
			out = append(out, CollectionIDs{Collection: mem.Key, IDs: ids})
		}
	}
	return out, nil
}

func parseClauses(m *model.Model, raw json.RawMessage) ([]CollectionClauses, error) {
	if isNull(raw) {
		return nil, nil
	}
	members, err := model.DecodeObject(raw)
	if err != nil {
		return nil, errors.Wrap(err, "input \"clauses\"")
	}
	var out []CollectionClauses
	for _, mem := range members {
		if _, ok := m.Index(mem.Key); !ok {
			return nil, errors.NewInvalidRequestError("input \"clauses\" names unknown index %q", mem.Key)
		}
		var raws []json.RawMessage
		if err := json.Unmarshal(mem.Value, &raws); err != nil {
			return nil, errors.NewInvalidRequestError("input \"clauses\" for %q must be a list", mem.Key)
		}
		cc := CollectionClauses{Collection: mem.Key}
		for i, r := range raws {
			c, err := clause.Parse(r)
			if err != nil {
				return nil, errors.Wrapf(err, "input clause %d for %q", i, mem.Key)
			}
			cc.Clauses = append(cc.Clauses, c)
		}
		if len(cc.Clauses) > 0 {
			out = append(out, cc)
		}
	}
	return out, nil
}

type scopeDoc struct {
	Include *scopeSetDoc `json:"include"`
	Exclude *scopeSetDoc `json:"exclude"`
}

type scopeSetDoc struct {
	Attributes json.RawMessage `json:"attributes"`
	Indices    []string        `json:"indices"`
	Resolvers  []string        `json:"resolvers"`
}

func parseScope(m *model.Model, raw json.RawMessage) (Scope, error) {
	var scope Scope
	if isNull(raw) {
		return scope, nil
	}
	var doc scopeDoc
	if err := model.DecodeStrict(raw, &doc); err != nil {
		return scope, errors.Wrap(err, "input \"scope\"")
	}
	var err error
	if doc.Include != nil {
		if scope.Include, err = parseScopeSet(m, doc.Include, "include"); err != nil {
			return scope, err
		}
	}
	if doc.Exclude != nil {
		if scope.Exclude, err = parseScopeSet(m, doc.Exclude, "exclude"); err != nil {
			return scope, err
		}
	}
	return scope, nil
}

func parseScopeSet(m *model.Model, doc *scopeSetDoc, which string) (ScopeSet, error) {
	var set ScopeSet
	for _, name := range doc.Indices {
		if _, ok := m.Index(name); !ok {
			return set, errors.NewInvalidRequestError("scope.%s names unknown index %q", which, name)
		}
	}
	for _, name := range doc.Resolvers {
		if _, ok := m.Resolver(name); !ok {
			return set, errors.NewInvalidRequestError("scope.%s names unknown resolver %q", which, name)
		}
	}
	attrs, err := parseAttributes(m, doc.Attributes, "scope."+which+".attributes")
	if err != nil {
		return set, err
	}
	set.Attributes = attrs
	set.Indices = doc.Indices
	set.Resolvers = doc.Resolvers
	return set, nil
}
