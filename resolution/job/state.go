package job

import (
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/input"
	"github.com/teranos/entres/resolution/model"
)

// Seed kinds name where a chain of discovery starts
const (
	SeedAttribute = "attribute"
	SeedTerm      = "term"
	SeedIDs       = "ids"
	SeedClause    = "clause"
)

// provenance records where a value was first seen
type provenance struct {
	hop    int  // 0 for input values
	origin *Hit // document the value was harvested from, nil for input values
	seed   string
}

// state is the resolution state of one job. Only the hop loop touches it.
type state struct {
	known    *model.ValueSet
	frontier *model.ValueSet
	prov     map[string]provenance
	visited  map[string][]string
	seen     map[resolution.DocKey]*Hit
	hits     []*Hit
	queries  []QueryRecord
	warnings []string
}

func newState() *state {
	return &state{
		known:    model.NewValueSet(),
		frontier: model.NewValueSet(),
		prov:     map[string]provenance{},
		visited:  map[string][]string{},
		seen:     map[resolution.DocKey]*Hit{},
	}
}

// seedState loads the input attribute values, then every term under each
// attribute whose type parses it
func seedState(in *input.Input) *state {
	st := newState()
	for _, a := range in.Attributes {
		for _, v := range a.Values {
			st.seed(v, SeedAttribute)
		}
	}
	for _, term := range in.Terms {
		for _, attr := range in.Model.Attributes {
			v, err := model.ParseValue(attr, term, attr.Params)
			if err != nil {
				continue
			}
			st.seed(v, SeedTerm)
		}
	}
	return st
}

func (s *state) seed(v model.Value, kind string) {
	if s.known.Add(v) {
		s.frontier.Add(v)
		s.prov[v.Key()] = provenance{seed: kind}
	}
}

// visit records a document the first time it is seen and reports whether it was new
func (s *state) visit(h *Hit) bool {
	key := resolution.DocKey{Collection: h.Index, ID: h.ID}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = h
	s.visited[h.Index] = append(s.visited[h.Index], h.ID)
	s.hits = append(s.hits, h)
	return true
}

// advance makes the values first observed in the last hop the new frontier
func (s *state) advance(next *model.ValueSet) {
	for _, v := range next.All() {
		s.known.Add(v)
	}
	s.frontier = next
}
