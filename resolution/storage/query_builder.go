package storage

import (
	"strings"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/internal/util"
	"github.com/teranos/entres/resolution/clause"
)

// queryBuilder translates clauses into SQLite expressions over the documents
// table (aliased d), accumulating the bound parameters in statement order
type queryBuilder struct {
	args []interface{}
}

// Expressions for clauses that can never or always match
const (
	sqlFalse = "0"
	sqlTrue  = "1"
)

// translate returns the SQL boolean expression for c
func (qb *queryBuilder) translate(c clause.Clause) (string, error) {
	switch c.Type {
	case clause.TypeMatchAll:
		return sqlTrue, nil
	case clause.TypeIDs:
		return qb.ids(c.Values), nil
	case clause.TypeBool:
		return qb.boolean(c)
	}

	cond, args, err := leaf(c)
	if err != nil {
		return "", err
	}
	if cond == sqlFalse {
		return sqlFalse, nil
	}
	path, err := jsonPath(c.Field)
	if err != nil {
		return "", err
	}
	qb.args = append(qb.args, path)
	qb.args = append(qb.args, args...)
	// json_each yields the elements of an array and a single row for a scalar
	return "EXISTS (SELECT 1 FROM json_each(d.source, ?) AS j WHERE " + cond + ")", nil
}

func (qb *queryBuilder) ids(ids []string) string {
	if len(ids) == 0 {
		return sqlFalse
	}
	for _, id := range ids {
		qb.args = append(qb.args, id)
	}
	return "d.id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
}

func (qb *queryBuilder) boolean(c clause.Clause) (string, error) {
	var parts []string
	for _, group := range [][]clause.Clause{c.Must, c.Filter} {
		for _, child := range group {
			expr, err := qb.translate(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+expr+")")
		}
	}
	for _, child := range c.MustNot {
		expr, err := qb.translate(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, "NOT ("+expr+")")
	}

	if need := c.EffectiveMinimumShouldMatch(); need > 0 {
		should := make([]string, len(c.Should))
		for i, child := range c.Should {
			expr, err := qb.translate(child)
			if err != nil {
				return "", err
			}
			should[i] = "(" + expr + ")"
		}
		if need == 1 {
			parts = append(parts, "("+strings.Join(should, " OR ")+")")
		} else {
			// SQLite booleans are 0 or 1, so the sum counts satisfied clauses
			qb.args = append(qb.args, need)
			parts = append(parts, "(("+strings.Join(should, " + ")+") >= ?)")
		}
	}

	if len(parts) == 0 {
		return sqlTrue, nil
	}
	return strings.Join(parts, " AND "), nil
}

// leaf builds the condition on one json_each row (j) for a field clause
func leaf(c clause.Clause) (string, []interface{}, error) {
	switch c.Type {
	case clause.TypeTerm:
		return term(c)
	case clause.TypeMatch:
		return "j.type = 'text' AND j.value = ? COLLATE NOCASE", []interface{}{stringValue(c.Value)}, nil
	case clause.TypePrefix:
		return "j.type = 'text' AND j.value LIKE ? ESCAPE '\\'", []interface{}{escapeLikePattern(stringValue(c.Value)) + "%"}, nil
	case clause.TypeFuzzy:
		return "j.type = 'text' AND fuzzy_distance(j.value, ?) <= ?", []interface{}{stringValue(c.Value), c.Fuzziness}, nil
	case clause.TypeRange:
		return rangeCondition(c)
	}
	return "", nil, errors.NewInvalidRequestError("unsupported clause type %q", c.Type)
}

func term(c clause.Clause) (string, []interface{}, error) {
	switch c.ValueType {
	case clause.ValueNumber:
		n, ok := clause.AsNumber(c.Value)
		if !ok {
			return sqlFalse, nil, nil
		}
		return "j.type IN ('integer', 'real') AND j.value = ?", []interface{}{n}, nil
	case clause.ValueBoolean:
		b, ok := c.Value.(bool)
		if !ok {
			return sqlFalse, nil, nil
		}
		kind := "false"
		if b {
			kind = "true"
		}
		return "j.type = ?", []interface{}{kind}, nil
	case clause.ValueDate:
		t, ok := util.ParseTime(c.Value, "")
		if !ok {
			return sqlFalse, nil, nil
		}
		return "date_ms(j.value, ?) = ?", []interface{}{c.Format, float64(t.UnixMilli())}, nil
	default:
		return "j.type = 'text' AND j.value = ?", []interface{}{stringValue(c.Value)}, nil
	}
}

func rangeCondition(c clause.Clause) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	switch c.ValueType {
	case clause.ValueNumber:
		conds = append(conds, "j.type IN ('integer', 'real')")
		if lo, ok := clause.AsNumber(c.Gte); ok {
			conds = append(conds, "j.value >= ?")
			args = append(args, lo)
		}
		if hi, ok := clause.AsNumber(c.Lte); ok {
			conds = append(conds, "j.value <= ?")
			args = append(args, hi)
		}
	case clause.ValueDate:
		conds = append(conds, "date_ms(j.value, ?) IS NOT NULL")
		args = append(args, c.Format)
		if lo, ok := util.ParseTime(c.Gte, ""); ok {
			conds = append(conds, "date_ms(j.value, ?) >= ?")
			args = append(args, c.Format, float64(lo.UnixMilli()))
		}
		if hi, ok := util.ParseTime(c.Lte, ""); ok {
			conds = append(conds, "date_ms(j.value, ?) <= ?")
			args = append(args, c.Format, float64(hi.UnixMilli()))
		}
	default:
		return sqlFalse, nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// jsonPath turns a dot path into a SQLite JSON path with every key quoted
func jsonPath(field string) (string, error) {
	if field == "" {
		return "", errors.NewInvalidRequestError("clause has no field")
	}
	var b strings.Builder
	b.WriteString("$")
	for _, key := range strings.Split(field, ".") {
		if key == "" || strings.ContainsAny(key, `"\`) {
			return "", errors.NewInvalidRequestError("field %q cannot be addressed in SQLite", field)
		}
		b.WriteString(`."`)
		b.WriteString(key)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// escapeLikePattern escapes special characters in LIKE patterns for SQL ESCAPE clause
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
