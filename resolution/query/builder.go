// Package query builds the search queries of one resolution hop.
//
// For every active resolver attribute set that the known values cover and the
// frontier touches, the builder emits one unit per frontier-bearing ("pivot")
// attribute: a conjunction where the pivot is restricted to frontier values and
// every other attribute of the set may take any known value. Units of one
// collection are OR-ed together and packed into as few queries as the clause
// limit allows.
package query

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/clause"
	"github.com/teranos/entres/resolution/input"
	"github.com/teranos/entres/resolution/model"
)

// Defaults
const (
	DefaultMaxClausesPerQuery = 1024
	DefaultMaxDocsPerQuery    = 1000
)

// Options bound the queries a builder produces
type Options struct {
	MaxClausesPerQuery int
	MaxDocsPerQuery    int
}

// Query is one search request of a hop
type Query struct {
	Hop        int
	Index      int // position within the hop
	Collection string
	Clause     clause.Clause
	Size       int
}

// Builder builds hop queries for one job. It holds no per-hop state.
type Builder struct {
	input     *input.Input
	opts      Options
	indices   []*model.Index
	resolvers []*model.Resolver
	scopes    map[string]scopeClauses
}

type scopeClauses struct {
	filter  []clause.Clause
	mustNot []clause.Clause
}

// unit is one OR-able piece of a query and the leaf clauses it costs
type unit struct {
	clause clause.Clause
	leaves int
}

// NewBuilder prepares a builder for a validated input
func NewBuilder(in *input.Input, opts Options) (*Builder, error) {
	if in == nil || in.Model == nil {
		return nil, errors.NewInvalidRequestError("query builder needs an input with a model")
	}
	if opts.MaxClausesPerQuery <= 0 {
		opts.MaxClausesPerQuery = DefaultMaxClausesPerQuery
	}
	if opts.MaxDocsPerQuery <= 0 {
		opts.MaxDocsPerQuery = DefaultMaxDocsPerQuery
	}

	b := &Builder{
		input:     in,
		opts:      opts,
		indices:   in.ActiveIndices(),
		resolvers: in.ActiveResolvers(),
		scopes:    map[string]scopeClauses{},
	}
	if len(b.indices) == 0 {
		return nil, errors.NewInvalidRequestError("scope leaves no indices to search")
	}

	for _, ix := range b.indices {
		var sc scopeClauses
		for _, a := range in.Scope.Include.Attributes {
			c, _, err := b.attributeClause(ix, a.Name, a.Values, a.Params)
			if err != nil {
				return nil, errors.Wrap(err, "scope.include")
			}
			if c != nil {
				sc.filter = append(sc.filter, *c)
			}
		}
		for _, a := range in.Scope.Exclude.Attributes {
			c, _, err := b.attributeClause(ix, a.Name, a.Values, a.Params)
			if err != nil {
				return nil, errors.Wrap(err, "scope.exclude")
			}
			if c != nil {
				sc.mustNot = append(sc.mustNot, *c)
			}
		}
		b.scopes[ix.Name] = sc
	}
	return b, nil
}

// Indices are the collections the builder may query, in model order
func (b *Builder) Indices() []*model.Index {
	return b.indices
}

// Resolvers are the resolvers the builder uses, in model order
func (b *Builder) Resolvers() []*model.Resolver {
	return b.resolvers
}

// Build returns the queries of a hop. known holds every value discovered so
// far including the frontier; visited lists the ids already seen per collection.
// The first hop also carries the input's explicit ids and clauses.
func (b *Builder) Build(hop int, frontier, known *model.ValueSet, visited map[string][]string) ([]Query, error) {
	var queries []Query
	for _, ix := range b.indices {
		units, err := b.resolverUnits(ix, frontier, known)
		if err != nil {
			return nil, err
		}
		if hop == 1 {
			if ids := b.input.IDsFor(ix.Name); len(ids) > 0 {
				units = append(units, unit{clause: clause.IDs(ids...), leaves: 1})
			}
			for _, c := range b.input.ClausesFor(ix.Name) {
				units = append(units, unit{clause: c, leaves: c.LeafCount()})
			}
		}
		units = dedupe(units)
		if len(units) == 0 {
			continue
		}

		for _, pack := range b.pack(units) {
			queries = append(queries, Query{
				Hop:        hop,
				Index:      len(queries),
				Collection: ix.Name,
				Clause:     b.wrap(ix.Name, pack, visited[ix.Name]),
				Size:       b.opts.MaxDocsPerQuery,
			})
		}
	}
	return queries, nil
}

func (b *Builder) resolverUnits(ix *model.Index, frontier, known *model.ValueSet) ([]unit, error) {
	var units []unit
	seen := map[string]bool{}

	for _, r := range b.resolvers {
		for _, set := range r.Sets {
			if !b.applies(ix, set, known) {
				continue
			}
			for _, pivot := range set {
				if len(frontier.Values(pivot)) == 0 {
					continue
				}
				sig := signature(set, pivot)
				if seen[sig] {
					continue
				}
				seen[sig] = true

				built, err := b.pivotUnits(ix, set, pivot, frontier, known)
				if err != nil {
					return nil, errors.Wrapf(err, "resolver %q", r.Name)
				}
				units = append(units, built...)
			}
		}
	}
	return units, nil
}

// applies reports whether every attribute of set has a field in ix and a known value
func (b *Builder) applies(ix *model.Index, set []string, known *model.ValueSet) bool {
	for _, attr := range set {
		if len(ix.FieldsFor(attr)) == 0 || len(known.Values(attr)) == 0 {
			return false
		}
	}
	return true
}

// signature identifies a (set, pivot) pair independent of resolver and set order
func signature(set []string, pivot string) string {
	sorted := append([]string(nil), set...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f") + "\x1e" + pivot
}

// pivotUnits builds the unit for one pivot, chunking the pivot's frontier values
// when a single unit would exceed the clause limit
func (b *Builder) pivotUnits(ix *model.Index, set []string, pivot string, frontier, known *model.ValueSet) ([]unit, error) {
	otherLeaves := 0
	others := map[string]clause.Clause{}
	for _, attr := range set {
		if attr == pivot {
			continue
		}
		c, n, err := b.attributeClause(ix, attr, known.Values(attr), b.input.Params(attr))
		if err != nil {
			return nil, err
		}
		others[attr] = *c
		otherLeaves += n
	}

	values := frontier.Values(pivot)
	perValue := len(ix.FieldsFor(pivot))
	chunk := len(values)
	if otherLeaves+perValue*len(values) > b.opts.MaxClausesPerQuery {
		chunk = (b.opts.MaxClausesPerQuery - otherLeaves) / perValue
		if chunk < 1 {
			chunk = 1
		}
	}

	var units []unit
	for start := 0; start < len(values); start += chunk {
		end := start + chunk
		if end > len(values) {
			end = len(values)
		}
		pc, n, err := b.attributeClause(ix, pivot, values[start:end], b.input.Params(pivot))
		if err != nil {
			return nil, err
		}

		parts := make([]clause.Clause, 0, len(set))
		for _, attr := range set {
			if attr == pivot {
				parts = append(parts, *pc)
			} else {
				parts = append(parts, others[attr])
			}
		}
		units = append(units, unit{clause: clause.AllOf(parts...), leaves: n + otherLeaves})
	}
	return units, nil
}

// attributeClause ORs every (field, value) pair of attr in ix. It returns nil
// when ix has no field for attr or there are no values.
func (b *Builder) attributeClause(ix *model.Index, attr string, values []model.Value, params model.Params) (*clause.Clause, int, error) {
	fields := ix.FieldsFor(attr)
	if len(fields) == 0 || len(values) == 0 {
		return nil, 0, nil
	}
	leaves := make([]clause.Clause, 0, len(fields)*len(values))
	for _, f := range fields {
		for _, v := range values {
			c, err := f.Clause(v, params)
			if err != nil {
				return nil, 0, err
			}
			leaves = append(leaves, c)
		}
	}
	c := clause.AnyOf(leaves...)
	return &c, len(leaves), nil
}

// dedupe drops units identical to an earlier one. A set whose attributes are
// all in the frontier yields the same unit for every pivot.
func dedupe(units []unit) []unit {
	seen := make(map[string]bool, len(units))
	out := units[:0]
	for _, u := range units {
		key, err := json.Marshal(u.clause)
		if err == nil {
			if seen[string(key)] {
				continue
			}
			seen[string(key)] = true
		}
		out = append(out, u)
	}
	return out
}

// pack groups units greedily, in order, so no group exceeds the clause limit.
// A unit larger than the limit on its own gets a group of its own.
func (b *Builder) pack(units []unit) [][]unit {
	var packs [][]unit
	var cur []unit
	curLeaves := 0
	for _, u := range units {
		if len(cur) > 0 && curLeaves+u.leaves > b.opts.MaxClausesPerQuery {
			packs = append(packs, cur)
			cur, curLeaves = nil, 0
		}
		cur = append(cur, u)
		curLeaves += u.leaves
	}
	if len(cur) > 0 {
		packs = append(packs, cur)
	}
	return packs
}

// wrap turns a group of units into the full query for a collection
func (b *Builder) wrap(collection string, units []unit, visited []string) clause.Clause {
	should := make([]clause.Clause, len(units))
	for i, u := range units {
		should[i] = u.clause
	}

	sc := b.scopes[collection]
	q := clause.Clause{
		Type:               clause.TypeBool,
		Should:             should,
		MinimumShouldMatch: 1,
		Filter:             sc.filter,
	}
	q.MustNot = append(q.MustNot, sc.mustNot...)
	if len(visited) > 0 {
		q.MustNot = append(q.MustNot, clause.IDs(append([]string(nil), visited...)...))
	}
	return q
}
