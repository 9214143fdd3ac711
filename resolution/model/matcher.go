package model

import (
	"math"
	"sort"
	"time"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/clause"
)

// Matcher kinds
const (
	KindTerm   = "term"
	KindMatch  = "match"
	KindFuzzy  = "fuzzy"
	KindPrefix = "prefix"
	KindRange  = "range"
)

// Default matcher parameters
const (
	DefaultFuzziness = 2
	DefaultWindow    = 24 * time.Hour
)

// Matcher turns an attribute value into a clause on one document field.
// Implementations are pure.
type Matcher interface {
	Kind() string
	Clause(field string, v Value, p Params) (clause.Clause, error)
}

type matcherFunc struct {
	kind string
	fn   func(field string, v Value, p Params) (clause.Clause, error)
}

func (m matcherFunc) Kind() string { return m.kind }

func (m matcherFunc) Clause(field string, v Value, p Params) (clause.Clause, error) {
	return m.fn(field, v, p)
}

// registry is the closed set of matchers, keyed by attribute type then kind
var registry = map[AttributeType]map[string]Matcher{
	TypeString: {
		KindTerm: matcherFunc{KindTerm, func(field string, v Value, _ Params) (clause.Clause, error) {
			return clause.Term(field, clause.ValueString, v.String()), nil
		}},
		KindMatch: matcherFunc{KindMatch, func(field string, v Value, _ Params) (clause.Clause, error) {
			return clause.Match(field, v.String()), nil
		}},
		KindFuzzy: matcherFunc{KindFuzzy, func(field string, v Value, p Params) (clause.Clause, error) {
			fuzziness, err := p.Int("fuzziness", DefaultFuzziness)
			if err != nil {
				return clause.Clause{}, err
			}
			if fuzziness < 0 {
				return clause.Clause{}, errors.NewInvalidRequestError("param \"fuzziness\" must be >= 0, got %d", fuzziness)
			}
			return clause.Fuzzy(field, v.String(), fuzziness), nil
		}},
		KindPrefix: matcherFunc{KindPrefix, func(field string, v Value, _ Params) (clause.Clause, error) {
			return clause.Prefix(field, v.String()), nil
		}},
	},
	TypeNumber: {
		KindTerm: matcherFunc{KindTerm, func(field string, v Value, _ Params) (clause.Clause, error) {
			return clause.Term(field, clause.ValueNumber, v.Native()), nil
		}},
		KindRange: matcherFunc{KindRange, func(field string, v Value, p Params) (clause.Clause, error) {
			tolerance, err := p.Float("tolerance", 0)
			if err != nil {
				return clause.Clause{}, err
			}
			tolerance = math.Abs(tolerance)
			n := v.Native().(float64)
			return clause.Range(field, clause.ValueNumber, n-tolerance, n+tolerance), nil
		}},
	},
	TypeBoolean: {
		KindTerm: matcherFunc{KindTerm, func(field string, v Value, _ Params) (clause.Clause, error) {
			return clause.Term(field, clause.ValueBoolean, v.Native()), nil
		}},
	},
	TypeDate: {
		KindTerm: matcherFunc{KindTerm, func(field string, v Value, p Params) (clause.Clause, error) {
			layout, err := p.String("format", "")
			if err != nil {
				return clause.Clause{}, err
			}
			c := clause.Term(field, clause.ValueDate, v.String())
			c.Format = layout
			return c, nil
		}},
		KindRange: matcherFunc{KindRange, func(field string, v Value, p Params) (clause.Clause, error) {
			layout, err := p.String("format", "")
			if err != nil {
				return clause.Clause{}, err
			}
			window, err := p.Duration("window", DefaultWindow)
			if err != nil {
				return clause.Clause{}, err
			}
			if window < 0 {
				window = -window
			}
			t := v.Native().(time.Time)
			c := clause.Range(field, clause.ValueDate,
				t.Add(-window).Format(time.RFC3339Nano),
				t.Add(window).Format(time.RFC3339Nano))
			c.Format = layout
			return c, nil
		}},
	},
}

// LookupMatcher returns the matcher of the given kind for an attribute type
func LookupMatcher(t AttributeType, kind string) (Matcher, error) {
	byKind, ok := registry[t]
	if !ok {
		return nil, errors.NewInvalidRequestError("unsupported attribute type %q", t)
	}
	m, ok := byKind[kind]
	if !ok {
		return nil, errors.NewInvalidRequestError("matcher type %q is not supported for %s attributes (supported: %v)",
			kind, t, MatcherKinds(t))
	}
	return m, nil
}

// MatcherKinds lists the matcher kinds available for an attribute type
func MatcherKinds(t AttributeType) []string {
	kinds := make([]string, 0, len(registry[t]))
	for k := range registry[t] {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// isKnownKind reports whether any attribute type supports kind
func isKnownKind(kind string) bool {
	for _, byKind := range registry {
		if _, ok := byKind[kind]; ok {
			return true
		}
	}
	return false
}
