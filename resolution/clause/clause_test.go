package clause

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/entres/errors"
)

var neo = map[string]any{
	"name":  map[string]any{"first": "Thomas", "last": "Anderson"},
	"email": []any{"neo@zion.net", "tanderson@metacortex.com"},
	"phone": "555-0101",
	"age":   37.0,
	"awake": true,
	"dob":   "1962-09-13",
}

func TestFieldValues(t *testing.T) {
	assert.Equal(t, []any{"Anderson"}, FieldValues(neo, "name.last"))
	assert.Equal(t, []any{"neo@zion.net", "tanderson@metacortex.com"}, FieldValues(neo, "email"))
	assert.Nil(t, FieldValues(neo, "name.middle"))
	assert.Nil(t, FieldValues(neo, "phone.area"))
	assert.Nil(t, FieldValues(neo, "ship"))
}

func TestLeafMatching(t *testing.T) {
	tests := []struct {
		name string
		c    Clause
		want bool
	}{
		{"term string", Term("phone", ValueString, "555-0101"), true},
		{"term string is case sensitive", Term("name.last", ValueString, "anderson"), false},
		{"term hits array element", Term("email", ValueString, "neo@zion.net"), true},
		{"term number", Term("age", ValueNumber, 37.0), true},
		{"term number int literal", Term("age", ValueNumber, 37), true},
		{"term number mismatch", Term("age", ValueNumber, 38.0), false},
		{"term boolean", Term("awake", ValueBoolean, true), true},
		{"term date", Clause{Type: TypeTerm, Field: "dob", ValueType: ValueDate, Value: "1962-09-13T00:00:00Z"}, true},
		{"match ignores case", Match("name.last", "ANDERSON"), true},
		{"prefix", Prefix("email", "TANDERSON@"), true},
		{"prefix miss", Prefix("email", "trinity"), false},
		{"fuzzy within distance", Fuzzy("name.last", "andersen", 1), true},
		{"fuzzy beyond distance", Fuzzy("name.last", "anders", 1), false},
		{"number range", Range("age", ValueNumber, 30.0, 40.0), true},
		{"number range open upper", Range("age", ValueNumber, 38.0, nil), false},
		{"date range", Range("dob", ValueDate, "1962-09-12T00:00:00Z", "1962-09-14T00:00:00Z"), true},
		{"date range miss", Range("dob", ValueDate, "1970-01-01T00:00:00Z", nil), false},
		{"missing field", Term("ship", ValueString, "Nebuchadnezzar"), false},
		{"match on non-string", Match("age", "37"), false},
		{"ids", IDs("trinity", "neo"), true},
		{"ids miss", IDs("smith"), false},
		{"match_all", MatchAll(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Matches("neo", neo))
		})
	}
}

func TestBoolMatching(t *testing.T) {
	email := Term("email", ValueString, "neo@zion.net")
	phone := Term("phone", ValueString, "555-0101")
	wrong := Term("phone", ValueString, "555-9999")

	assert.True(t, AllOf(email, phone).Matches("neo", neo))
	assert.False(t, AllOf(email, wrong).Matches("neo", neo))
	assert.True(t, AnyOf(wrong, phone).Matches("neo", neo))
	assert.False(t, AnyOf(wrong, wrong).Matches("neo", neo))

	excluded := Clause{Type: TypeBool, Should: []Clause{email}, MustNot: []Clause{IDs("neo")}}
	assert.False(t, excluded.Matches("neo", neo))
	assert.True(t, excluded.Matches("thomas", neo))

	filtered := Clause{Type: TypeBool, Should: []Clause{wrong}, Filter: []Clause{email}}
	assert.True(t, filtered.Matches("neo", neo), "should is optional beside a filter")

	two := Clause{Type: TypeBool, Should: []Clause{email, phone, wrong}, MinimumShouldMatch: 2}
	assert.True(t, two.Matches("neo", neo))
	two.MinimumShouldMatch = 3
	assert.False(t, two.Matches("neo", neo))
}

func TestEvalScore(t *testing.T) {
	q := Clause{
		Type:               TypeBool,
		Should:             []Clause{Term("email", ValueString, "neo@zion.net"), Term("phone", ValueString, "555-0101"), Term("phone", ValueString, "x")},
		MinimumShouldMatch: 1,
	}
	ok, score := q.Eval("neo", neo)
	assert.True(t, ok)
	assert.Equal(t, 2.0, score)

	ok, score = Term("phone", ValueString, "555-0101").Eval("neo", neo)
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)

	ok, score = Term("phone", ValueString, "x").Eval("neo", neo)
	assert.False(t, ok)
	assert.Zero(t, score)
}

func TestLeafCount(t *testing.T) {
	q := Clause{
		Type: TypeBool,
		Should: []Clause{
			AllOf(Term("a", ValueString, "1"), AnyOf(Term("b", ValueString, "2"), Term("c", ValueString, "3"))),
			IDs("x", "y", "z"),
		},
		MustNot: []Clause{IDs("v")},
	}
	assert.Equal(t, 5, q.LeafCount())
	assert.Equal(t, 1, MatchAll().LeafCount())
}

func TestAnyOfAllOfUnwrapSingle(t *testing.T) {
	leaf := Term("a", ValueString, "1")
	assert.Equal(t, leaf, AnyOf(leaf))
	assert.Equal(t, leaf, AllOf(leaf))
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`{
		"type": "bool",
		"should": [
			{"type": "term", "field": "phone", "value": "555-0101"},
			{"type": "term", "field": "age", "value": 37},
			{"type": "range", "field": "dob", "value_type": "date", "gte": "1962-01-01"}
		],
		"minimum_should_match": 2
	}`))
	require.NoError(t, err)
	assert.Equal(t, ValueString, c.Should[0].ValueType)
	assert.Equal(t, ValueNumber, c.Should[1].ValueType)
	assert.True(t, c.Matches("neo", neo))

	// Clauses survive a JSON round trip
	data, err := json.Marshal(c)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown key", `{"type":"term","field":"a","value":"b","boost":2}`},
		{"missing type", `{"field":"a","value":"b"}`},
		{"unknown type", `{"type":"geo_shape","field":"a"}`},
		{"term without field", `{"type":"term","value":"b"}`},
		{"term without value", `{"type":"term","field":"a"}`},
		{"match with number", `{"type":"match","field":"a","value":5}`},
		{"range without bounds", `{"type":"range","field":"a","value_type":"number"}`},
		{"range on string", `{"type":"range","field":"a","value_type":"string","gte":"a"}`},
		{"empty ids", `{"type":"ids","values":[]}`},
		{"empty bool", `{"type":"bool"}`},
		{"msm too large", `{"type":"bool","should":[{"type":"match_all"}],"minimum_should_match":2}`},
		{"nested invalid", `{"type":"bool","must":[{"type":"term","field":"a"}]}`},
		{"not json", `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
		})
	}
}
