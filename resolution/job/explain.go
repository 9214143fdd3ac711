package job

import (
	"github.com/teranos/entres/resolution/clause"
	"github.com/teranos/entres/resolution/model"
)

// Explanation says why a document was resolved
type Explanation struct {
	Resolvers []ResolverMatch
	Matches   []FieldMatch
	Chain     []Link
}

// ResolverMatch is a resolver the document satisfies and the attribute set that did it
type ResolverMatch struct {
	Name       string
	Attributes []string
}

// FieldMatch is one document field matching one known value
type FieldMatch struct {
	Attribute     string
	Field         string
	FieldValue    any
	InputValue    any
	Matcher       string
	MatcherParams model.Params
}

// Link is one step of a discovery chain: a document, the value that led to it,
// and the resolver that value satisfied. The last link of a complete chain names its seed.
type Link struct {
	Index     string
	ID        string
	Hop       int
	Resolver  string
	Attribute string
	Value     any
	Seed      string
}

// via is the value through which a document was first reached
type via struct {
	resolver  string
	attribute string
	value     any
	origin    *Hit
	seed      string
}

// candidate is a known value matching a field of a new hit
type candidate struct {
	attribute string
	value     model.Value
	prov      provenance
}

// explain matches a new hit against the values known when its hop started.
// The hit is linked through a matched value of a satisfied resolver, preferring
// values of the hop's frontier since only those could have queried it.
func (j *Job) explain(h *Hit, ix *model.Index, hop int, known *model.ValueSet) {
	exp := &Explanation{}
	matched := map[string]bool{}
	var candidates []candidate

	for _, f := range ix.Fields {
		attr := f.Attribute.Name
		params := j.in.Params(attr)
		for _, v := range known.Values(attr) {
			ok, err := f.Matches(h.ID, h.Source, v, params)
			if err != nil || !ok {
				continue
			}
			matched[attr] = true
			exp.Matches = append(exp.Matches, FieldMatch{
				Attribute:     attr,
				Field:         f.Path,
				FieldValue:    fieldValue(h.Source, f.Path),
				InputValue:    v.Raw(),
				Matcher:       f.Matcher.Name,
				MatcherParams: f.Params(params),
			})
			candidates = append(candidates, candidate{attribute: attr, value: v, prov: j.st.prov[v.Key()]})
		}
	}

	for _, r := range j.builder.Resolvers() {
		for _, set := range r.Sets {
			if covers(matched, set) {
				exp.Resolvers = append(exp.Resolvers, ResolverMatch{Name: r.Name, Attributes: set})
				break
			}
		}
	}

	best := cause(candidates, exp.Resolvers, hop)
	if best == nil && hop == 1 {
		best = j.explicitSeed(h)
	}
	h.via = best
	h.Explanation = exp
	exp.Chain = chain(h)
}

// cause picks the value a hit was reached through: the first candidate of the
// previous hop's harvest in a satisfied resolver, else the earliest one
func cause(candidates []candidate, resolvers []ResolverMatch, hop int) *via {
	var best *candidate
	resolver := ""
	for i := range candidates {
		c := &candidates[i]
		name := resolverFor(resolvers, c.attribute)
		if name == "" || c.prov.hop >= hop {
			continue
		}
		if c.prov.hop == hop-1 {
			best, resolver = c, name
			break
		}
		if best == nil || c.prov.hop < best.prov.hop {
			best, resolver = c, name
		}
	}
	if best == nil {
		return nil
	}
	return &via{
		resolver:  resolver,
		attribute: best.attribute,
		value:     best.value.Raw(),
		origin:    best.prov.origin,
		seed:      best.prov.seed,
	}
}

// resolverFor names the first satisfied resolver whose attribute set holds attr
func resolverFor(resolvers []ResolverMatch, attr string) string {
	for _, r := range resolvers {
		for _, a := range r.Attributes {
			if a == attr {
				return r.Name
			}
		}
	}
	return ""
}

// explicitSeed finds the input ids or clauses that reached a first-hop document
func (j *Job) explicitSeed(h *Hit) *via {
	for _, id := range j.in.IDsFor(h.Index) {
		if id == h.ID {
			return &via{seed: SeedIDs}
		}
	}
	for _, c := range j.in.ClausesFor(h.Index) {
		if c.Matches(h.ID, h.Source) {
			return &via{seed: SeedClause}
		}
	}
	return nil
}

func covers(matched map[string]bool, set []string) bool {
	for _, attr := range set {
		if !matched[attr] {
			return false
		}
	}
	return true
}

func fieldValue(source map[string]any, path string) any {
	values := clause.FieldValues(source, path)
	if len(values) == 1 {
		return values[0]
	}
	return values
}

// chain walks from h back to its seed. Every origin was found in an earlier hop.
func chain(h *Hit) []Link {
	var links []Link
	for cur := h; cur != nil; {
		link := Link{Index: cur.Index, ID: cur.ID, Hop: cur.Hop}
		next := (*Hit)(nil)
		if cur.via != nil {
			link.Resolver = cur.via.resolver
			link.Attribute = cur.via.attribute
			link.Value = cur.via.value
			link.Seed = cur.via.seed
			if o := cur.via.origin; o != nil && o.Hop < cur.Hop {
				next = o
			}
		}
		links = append(links, link)
		cur = next
	}
	return links
}
