package clause

import (
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/teranos/entres/internal/util"
)

// FieldValues returns the values stored at a dot path in a JSON document.
// An array at the end of the path yields its elements; arrays elsewhere on the
// path are not traversed.
func FieldValues(source map[string]any, path string) []any {
	var cur any = source
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = obj[key]; !ok {
			return nil
		}
	}
	switch v := cur.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(v))
		for _, e := range v {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	default:
		return []any{v}
	}
}

// Eval evaluates c against a document. The score is the number of root-level
// should clauses satisfied, or 1 when the root has none.
func (c Clause) Eval(id string, source map[string]any) (bool, float64) {
	if !c.Matches(id, source) {
		return false, 0
	}
	if c.Type != TypeBool || len(c.Should) == 0 {
		return true, 1
	}
	score := 0
	for _, s := range c.Should {
		if s.Matches(id, source) {
			score++
		}
	}
	return true, float64(score)
}

// Matches reports whether the document satisfies c
func (c Clause) Matches(id string, source map[string]any) bool {
	switch c.Type {
	case TypeMatchAll:
		return true
	case TypeIDs:
		for _, v := range c.Values {
			if v == id {
				return true
			}
		}
		return false
	case TypeBool:
		return c.matchesBool(id, source)
	}

	for _, dv := range FieldValues(source, c.Field) {
		if c.matchesValue(dv) {
			return true
		}
	}
	return false
}

func (c Clause) matchesBool(id string, source map[string]any) bool {
	for _, m := range c.Must {
		if !m.Matches(id, source) {
			return false
		}
	}
	for _, f := range c.Filter {
		if !f.Matches(id, source) {
			return false
		}
	}
	for _, n := range c.MustNot {
		if n.Matches(id, source) {
			return false
		}
	}
	need := c.EffectiveMinimumShouldMatch()
	if need == 0 {
		return true
	}
	got := 0
	for _, s := range c.Should {
		if s.Matches(id, source) {
			got++
			if got >= need {
				return true
			}
		}
	}
	return false
}

// matchesValue applies a leaf clause to one document value
func (c Clause) matchesValue(dv any) bool {
	switch c.Type {
	case TypeTerm:
		return c.termMatches(dv)
	case TypeMatch:
		s, ok := dv.(string)
		return ok && strings.EqualFold(s, asString(c.Value))
	case TypePrefix:
		s, ok := dv.(string)
		return ok && strings.HasPrefix(strings.ToLower(s), strings.ToLower(asString(c.Value)))
	case TypeFuzzy:
		s, ok := dv.(string)
		if !ok {
			return false
		}
		return fuzzy.LevenshteinDistance(strings.ToLower(s), strings.ToLower(asString(c.Value))) <= c.Fuzziness
	case TypeRange:
		return c.rangeMatches(dv)
	default:
		return false
	}
}

func (c Clause) termMatches(dv any) bool {
	switch c.ValueType {
	case ValueNumber:
		a, ok1 := dv.(float64)
		b, ok2 := AsNumber(c.Value)
		return ok1 && ok2 && a == b
	case ValueBoolean:
		a, ok1 := dv.(bool)
		b, ok2 := c.Value.(bool)
		return ok1 && ok2 && a == b
	case ValueDate:
		a, ok1 := util.ParseTime(dv, c.Format)
		b, ok2 := util.ParseTime(c.Value, "")
		return ok1 && ok2 && a.Equal(b)
	default:
		s, ok := dv.(string)
		return ok && s == asString(c.Value)
	}
}

func (c Clause) rangeMatches(dv any) bool {
	switch c.ValueType {
	case ValueNumber:
		v, ok := dv.(float64)
		if !ok {
			return false
		}
		if lo, ok := AsNumber(c.Gte); ok && v < lo {
			return false
		}
		if hi, ok := AsNumber(c.Lte); ok && v > hi {
			return false
		}
		return true
	case ValueDate:
		v, ok := util.ParseTime(dv, c.Format)
		if !ok {
			return false
		}
		if lo, ok := util.ParseTime(c.Gte, ""); ok && v.Before(lo) {
			return false
		}
		if hi, ok := util.ParseTime(c.Lte, ""); ok && v.After(hi) {
			return false
		}
		return true
	default:
		return false
	}
}

// AsNumber converts the numeric forms a clause value may take after JSON
// decoding or construction in code
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
