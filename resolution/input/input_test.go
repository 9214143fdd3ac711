package input

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/entres/errors"
	qtest "github.com/teranos/entres/internal/testing"
	"github.com/teranos/entres/resolution/clause"
	"github.com/teranos/entres/resolution/model"
)

func personModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Parse([]byte(qtest.PersonModel))
	require.NoError(t, err)
	return m
}

func TestParse_Attributes(t *testing.T) {
	m := personModel(t)
	in, err := Parse([]byte(`{
		"attributes": {
			"phone": ["555-0101", "555-0102", "555-0101"],
			"email": "neo@zion.net",
			"name": {"values": ["Neo"], "params": {"fuzziness": 0}},
			"age": [37]
		}
	}`), m)
	require.NoError(t, err)
	require.Len(t, in.Attributes, 4)

	phone := in.Attributes[0]
	assert.Equal(t, "phone", phone.Name)
	require.Len(t, phone.Values, 2, "duplicate values collapse")
	assert.Equal(t, "555-0101", phone.Values[0].String())

	assert.Equal(t, "email", in.Attributes[1].Name)
	assert.Equal(t, "neo@zion.net", in.Attributes[1].Values[0].String())

	assert.Equal(t, model.Params{"fuzziness": 0.0}, in.Params("name"))
	assert.Nil(t, in.Params("phone"))
	assert.Equal(t, 37.0, in.Attributes[3].Values[0].Native())
	assert.Same(t, m, in.Model)
}

func TestParse_TermsIDsClauses(t *testing.T) {
	m := personModel(t)
	in, err := Parse([]byte(`{
		"terms": ["Trinity", 555, "1999-03-31"],
		"ids": {"users": ["neo", "trinity"], "accounts": []},
		"clauses": {"accounts": [{"type": "match", "field": "contact.email", "value": "neo@zion.net"}]}
	}`), m)
	require.NoError(t, err)

	assert.Len(t, in.Terms, 3)
	assert.Equal(t, []string{"neo", "trinity"}, in.IDsFor("users"))
	assert.Nil(t, in.IDsFor("accounts"), "empty id lists are dropped")

	cs := in.ClausesFor("accounts")
	require.Len(t, cs, 1)
	assert.Equal(t, clause.TypeMatch, cs[0].Type)
	assert.Nil(t, in.ClausesFor("users"))
}

func TestParse_EmbeddedModel(t *testing.T) {
	body := fmt.Sprintf(`{"attributes": {"email": ["neo@zion.net"]}, "model": %s}`, qtest.PersonModel)

	in, err := Parse([]byte(body), nil)
	require.NoError(t, err)
	require.NotNil(t, in.Model)
	_, ok := in.Model.Index("accounts")
	assert.True(t, ok)

	_, err = Parse([]byte(body), personModel(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestParse_Scope(t *testing.T) {
	m := personModel(t)
	in, err := Parse([]byte(`{
		"attributes": {"email": ["neo@zion.net"]},
		"scope": {
			"include": {"indices": ["users"], "attributes": {"phone": "555-0101"}},
			"exclude": {"resolvers": ["name_dob"], "attributes": {"email": ["smith@matrix.gov"]}}
		}
	}`), m)
	require.NoError(t, err)

	require.Len(t, in.ActiveIndices(), 1)
	assert.Equal(t, "users", in.ActiveIndices()[0].Name)

	var resolvers []string
	for _, r := range in.ActiveResolvers() {
		resolvers = append(resolvers, r.Name)
	}
	assert.Equal(t, []string{"email", "phone"}, resolvers)

	require.Len(t, in.Scope.Include.Attributes, 1)
	assert.Equal(t, "555-0101", in.Scope.Include.Attributes[0].Values[0].String())
	require.Len(t, in.Scope.Exclude.Attributes, 1)
	assert.Equal(t, "email", in.Scope.Exclude.Attributes[0].Name)
}

func TestParse_Invalid(t *testing.T) {
	m := personModel(t)
	tests := []struct {
		name    string
		body    string
		model   *model.Model
		wantErr string
	}{
		{"missing body", ``, m, "Request body is missing."},
		{"whitespace body", "  \n", m, "Request body is missing."},
		{"no model", `{"attributes": {"email": ["neo@zion.net"]}}`, nil, "embed a \"model\""},
		{"unknown field", `{"attributes": {"email": ["a"]}, "hops": 2}`, m, "unknown field \"hops\""},
		{"unknown attribute", `{"attributes": {"ship": ["Nebuchadnezzar"]}}`, m, "unknown attribute \"ship\""},
		{"bad value type", `{"attributes": {"age": ["old"]}}`, m, "not a number"},
		{"bad date", `{"attributes": {"dob": ["tuesday"]}}`, m, "not a date"},
		{"nested values", `{"attributes": {"email": [["a"]]}}`, m, "scalars"},
		{"unknown attribute key", `{"attributes": {"email": {"values": ["a"], "boost": 1}}}`, m, "unknown field"},
		{"unknown index in ids", `{"ids": {"zion": ["neo"]}}`, m, "unknown index \"zion\""},
		{"ids not strings", `{"ids": {"users": [1, 2]}}`, m, "list of strings"},
		{"unknown index in clauses", `{"clauses": {"zion": []}}`, m, "unknown index \"zion\""},
		{"bad clause", `{"clauses": {"users": [{"type": "term"}]}}`, m, "missing \"field\""},
		{"unknown scope resolver", `{"attributes": {"email": ["a"]}, "scope": {"include": {"resolvers": ["ssn"]}}}`, m, "unknown resolver \"ssn\""},
		{"unknown scope index", `{"attributes": {"email": ["a"]}, "scope": {"exclude": {"indices": ["zion"]}}}`, m, "unknown index \"zion\""},
		{"unknown scope key", `{"attributes": {"email": ["a"]}, "scope": {"only": {}}}`, m, "unknown field"},
		{"empty input", `{}`, m, "no attributes, terms, ids, or clauses"},
		{"only empty values", `{"attributes": {"email": []}}`, m, "no attributes, terms, ids, or clauses"},
		{"not an object", `["neo"]`, m, "expected a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), tt.model)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err), "want validation error, got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
