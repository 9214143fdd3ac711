package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/entres/errors"
	qtest "github.com/teranos/entres/internal/testing"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/clause"
)

type searchStore interface {
	resolution.DocumentStore
	resolution.DocumentIndexer
}

func loadPeople(t *testing.T, s resolution.DocumentIndexer) {
	t.Helper()
	n, err := LoadNDJSON(context.Background(), strings.NewReader(qtest.PersonDocuments), s, 2)
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func stores(t *testing.T) map[string]searchStore {
	t.Helper()
	mem := NewMemoryDocumentStore()
	sqlite := NewSQLiteDocumentStore(qtest.CreateTestDB(t), nil)
	loadPeople(t, mem)
	loadPeople(t, sqlite)
	return map[string]searchStore{"memory": mem, "sqlite": sqlite}
}

func ids(resp *resolution.SearchResponse) []string {
	out := []string{}
	for _, d := range resp.Documents {
		out = append(out, d.ID)
	}
	return out
}

// Both stores must agree on every clause kind for ASCII data
func TestSearch_Clauses(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		query      clause.Clause
		size       int
		want       []string
	}{
		{"term string", "users", clause.Term("email", clause.ValueString, "neo@zion.net"), 0, []string{"neo"}},
		{"term is case sensitive", "users", clause.Term("email", clause.ValueString, "NEO@ZION.NET"), 0, []string{}},
		{"match folds case", "accounts", clause.Match("contact.email", "tanderson@metacortex.com"), 0, []string{"acct-neo"}},
		{"fuzzy", "users", clause.Fuzzy("name", "Trinty", 1), 0, []string{"trinity"}},
		{"fuzzy too far", "users", clause.Fuzzy("name", "Trin", 1), 0, []string{}},
		{"prefix", "users", clause.Prefix("name", "agent"), 0, []string{"smith"}},
		{"prefix escapes wildcards", "users", clause.Prefix("name", "%"), 0, []string{}},
		{"term date", "users", clause.Term("dob", clause.ValueDate, "1962-09-13T00:00:00Z"), 0, []string{"thomas"}},
		{"date window", "users", clause.Range("dob", clause.ValueDate, "1962-09-12T12:00:00Z", "1962-09-14T00:00:00Z"), 0, []string{"thomas"}},
		{"term number", "users", clause.Term("age", clause.ValueNumber, 37.0), 0, []string{"neo"}},
		{"number range", "users", clause.Range("age", clause.ValueNumber, 36.0, 38.0), 0, []string{"neo"}},
		{"number range misses", "users", clause.Range("age", clause.ValueNumber, 38.0, nil), 0, []string{}},
		{"ids", "users", clause.IDs("trinity", "smith"), 0, []string{"smith", "trinity"}},
		{"match all", "accounts", clause.MatchAll(), 0, []string{"acct-neo"}},
		{"missing collection", "zion", clause.MatchAll(), 0, []string{}},
		{
			name:       "should with must_not",
			collection: "users",
			query: clause.Clause{
				Type:               clause.TypeBool,
				Should:             []clause.Clause{clause.Term("phone", clause.ValueString, "555-0101"), clause.Term("email", clause.ValueString, "trinity@zion.net")},
				MinimumShouldMatch: 1,
				MustNot:            []clause.Clause{clause.IDs("neo")},
			},
			want: []string{"thomas", "trinity"},
		},
		{
			name:       "score orders hits",
			collection: "users",
			query:      clause.AnyOf(clause.Term("phone", clause.ValueString, "555-0101"), clause.Fuzzy("name", "Neo", 0)),
			want:       []string{"neo", "thomas"},
		},
		{
			name:       "size limits hits",
			collection: "users",
			query:      clause.AnyOf(clause.Term("phone", clause.ValueString, "555-0101"), clause.Fuzzy("name", "Neo", 0)),
			size:       1,
			want:       []string{"neo"},
		},
		{
			name:       "minimum should match two",
			collection: "users",
			query: clause.Clause{
				Type:               clause.TypeBool,
				Should:             []clause.Clause{clause.Term("phone", clause.ValueString, "555-0101"), clause.Fuzzy("name", "Neo", 0), clause.Prefix("email", "smith")},
				MinimumShouldMatch: 2,
			},
			want: []string{"neo"},
		},
		{
			name:       "filter",
			collection: "users",
			query: clause.Clause{
				Type:   clause.TypeBool,
				Must:   []clause.Clause{clause.Term("phone", clause.ValueString, "555-0101")},
				Filter: []clause.Clause{clause.Prefix("name", "thomas")},
			},
			want: []string{"thomas"},
		},
	}

	for storeName, store := range stores(t) {
		for _, tt := range tests {
			t.Run(storeName+"/"+tt.name, func(t *testing.T) {
				resp, err := store.Search(context.Background(), resolution.SearchRequest{
					Collection: tt.collection,
					Query:      tt.query,
					Size:       tt.size,
				})
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(resp))
				for _, d := range resp.Documents {
					assert.Equal(t, tt.collection, d.Collection)
					assert.NotNil(t, d.Source)
				}
			})
		}
	}
}

func TestSearch_Scores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			resp, err := store.Search(context.Background(), resolution.SearchRequest{
				Collection: "users",
				Query:      clause.AnyOf(clause.Term("phone", clause.ValueString, "555-0101"), clause.Fuzzy("name", "Neo", 0)),
			})
			require.NoError(t, err)
			require.Len(t, resp.Documents, 2)
			assert.Equal(t, 2.0, resp.Documents[0].Score)
			assert.Equal(t, 1.0, resp.Documents[1].Score)
		})
	}
}

func TestIndex_Versions(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Index(ctx, []resolution.Document{
				{Collection: "users", ID: "neo", Source: map[string]any{"name": "The One", "email": "neo@zion.net"}},
			}))

			resp, err := store.Search(ctx, resolution.SearchRequest{Collection: "users", Query: clause.IDs("neo", "trinity")})
			require.NoError(t, err)
			require.Len(t, resp.Documents, 2)

			neo, trinity := resp.Documents[0], resp.Documents[1]
			assert.Equal(t, "The One", neo.Source["name"])
			assert.Equal(t, int64(2), neo.Version)
			assert.Equal(t, int64(1), trinity.Version)
			assert.Greater(t, neo.SeqNo, trinity.SeqNo)
			assert.Equal(t, int64(1), neo.PrimaryTerm)
		})
	}
}

func TestIndex_RejectsAnonymousDocuments(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Index(context.Background(), []resolution.Document{{Collection: "users"}})
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
		})
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := store.Search(ctx, resolution.SearchRequest{Collection: "users", Query: clause.MatchAll()})
			require.Error(t, err)
			assert.Equal(t, errors.TypeCancelled, errors.Classify(err))
		})
	}
}

func TestLoadNDJSON_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"not json", "{nope}\n", "line 1"},
		{"missing id", `{"_index":"users","_source":{}}` + "\n", "_index and _id"},
		{"second line", `{"_index":"users","_id":"neo","_source":{}}` + "\n\n" + `{"_index":"users"}`, "line 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadNDJSON(context.Background(), strings.NewReader(tt.input), NewMemoryDocumentStore(), 0)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
