package job

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/clause"
)

// keys lists the keys of a JSON object in document order
func keys(t *testing.T, raw json.RawMessage) []string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)

	var out []string
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		out = append(out, tok.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	return out
}

func field(t *testing.T, raw json.RawMessage, path ...string) json.RawMessage {
	t.Helper()
	for _, p := range path {
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &m), "decode %s", p)
		next, ok := m[p]
		require.True(t, ok, "missing %q", p)
		raw = next
	}
	return raw
}

func firstHit(t *testing.T, raw json.RawMessage) json.RawMessage {
	t.Helper()
	var hits []json.RawMessage
	require.NoError(t, json.Unmarshal(field(t, raw, "hits", "hits"), &hits))
	require.NotEmpty(t, hits)
	return hits[0]
}

func TestResult_DefaultDocument(t *testing.T) {
	res := newJob(t, `{"attributes": {"email": "neo@zion.net"}}`, peopleStore(t), func(o *Options) {
		o.MaxHops = 1
	}).Execute(context.Background())
	data, err := res.Marshal()
	require.NoError(t, err)

	assert.Equal(t, []string{"took", "hops", "termination", "failed", "hits", "attributes"}, keys(t, data))
	assert.JSONEq(t, `"max hops"`, string(field(t, data, "termination")))
	assert.JSONEq(t, `1`, string(field(t, data, "hits", "total")))

	hit := firstHit(t, data)
	assert.Equal(t, []string{"_index", "_hop", "_query", "_id", "_attributes", "_source"}, keys(t, hit))
	assert.JSONEq(t, `{"name":["Neo"],"email":["neo@zion.net"],"phone":["555-0101"],"age":[37]}`,
		string(field(t, hit, "_attributes")))
	assert.Equal(t, []string{"name", "email", "phone", "age"}, keys(t, field(t, data, "attributes")),
		"attributes follow model order")
	assert.NotContains(t, string(data), "\n", "compact unless pretty")
}

func TestResult_IncludeFlags(t *testing.T) {
	res := newJob(t, `{"attributes": {"email": "neo@zion.net"}}`, peopleStore(t), func(o *Options) {
		o.MaxHops = 1
		o.IncludeAttributes = false
		o.IncludeSource = false
		o.IncludeScore = true
		o.IncludeVersion = true
		o.IncludeSeqNoPrimaryTerm = true
		o.IncludeExplanation = true
		o.IncludeQueries = true
		o.Profile = true
		o.Pretty = true
	}).Execute(context.Background())
	data, err := res.Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(data), "\n  \"hops\": 1")
	assert.Equal(t, []string{"took", "hops", "termination", "failed", "hits", "queries", "profile"}, keys(t, data))

	hit := firstHit(t, data)
	assert.Equal(t, []string{"_index", "_hop", "_query", "_id", "_score", "_version", "_seq_no", "_primary_term", "_explanation"}, keys(t, hit))
	assert.Equal(t, []string{"resolvers", "matches", "chain"}, keys(t, field(t, hit, "_explanation")))
	assert.JSONEq(t, `{"email":{"attributes":["email"]}}`, string(field(t, hit, "_explanation", "resolvers")))
	assert.JSONEq(t, `[{"attribute":"email","target_field":"email","target_value":"neo@zion.net","input_value":"neo@zion.net","input_matcher":"exact","input_matcher_params":{}}]`,
		string(field(t, hit, "_explanation", "matches")))
	assert.JSONEq(t, `[{"_index":"users","_id":"neo","_hop":1,"resolver":"email","attribute":"email","value":"neo@zion.net","seed":"attribute"}]`,
		string(field(t, hit, "_explanation", "chain")))

	var queries []json.RawMessage
	require.NoError(t, json.Unmarshal(field(t, data, "queries"), &queries))
	require.Len(t, queries, 2)
	assert.Equal(t, []string{"_hop", "_query", "_index", "search"}, keys(t, queries[0]))
	assert.Equal(t, []string{"query", "size", "timeout", "options"}, keys(t, field(t, queries[0], "search", "request")))
	assert.JSONEq(t, `"10s"`, string(field(t, queries[0], "search", "request", "timeout")))
	assert.Equal(t, []string{"took", "timed_out", "hits"}, keys(t, field(t, queries[0], "search", "response")))

	var profiles []json.RawMessage
	require.NoError(t, json.Unmarshal(field(t, data, "profile"), &profiles))
	assert.Len(t, profiles, 2)
}

func TestResult_ErrorDocument(t *testing.T) {
	store := brokenStore{DocumentStore: peopleStore(t), broken: map[string]bool{"users": true, "accounts": true}}

	for _, trace := range []bool{true, false} {
		res := newJob(t, `{"attributes": {"email": "neo@zion.net"}}`, store, func(o *Options) {
			o.IncludeErrorTrace = trace
		}).Execute(context.Background())
		require.True(t, res.Failed)

		data, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `true`, string(field(t, data, "failed")))
		assert.JSONEq(t, `"backend"`, string(field(t, data, "error", "by")))
		assert.JSONEq(t, `"backend_exception"`, string(field(t, data, "error", "type")))
		assert.Contains(t, string(field(t, data, "error", "reason")), "connection refused")

		want := []string{"by", "type", "reason"}
		if trace {
			want = append(want, "stack_trace")
		}
		assert.Equal(t, want, keys(t, field(t, data, "error")))
		assert.Contains(t, keys(t, data), "warnings")
	}
}

func TestResult_ValidationErrorIsOurs(t *testing.T) {
	res := newJob(t, `{"attributes": {"age": 37}}`, peopleStore(t), nil).Execute(context.Background())
	data, err := res.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `"entres"`, string(field(t, data, "error", "by")))
	assert.JSONEq(t, `"validation_exception"`, string(field(t, data, "error", "type")))
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want Termination
	}{
		{errors.Wrap(errors.ErrCancelled, "stop"), TerminationCancelled},
		{errors.NewInvalidRequestError("bad"), TerminationValidation},
		{errors.NewNotFoundError("entity model not found: %s", "agent"), TerminationNotFound},
		{errors.WrapBackend(errors.New("refused"), "search"), TerminationBackend},
		{errors.WrapBackend(context.DeadlineExceeded, "search"), TerminationBackend},
		{errors.New("boom"), TerminationInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err), tt.err.Error())
	}
}

func TestExplain(t *testing.T) {
	c := clause.Clause{Type: clause.TypeTerm, Field: "email", Value: "neo@zion.net"}
	assert.JSONEq(t, `{"type":"term","field":"email","value":"neo@zion.net"}`, Explain(c))
}
