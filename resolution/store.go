package resolution

import (
	"context"
	"time"

	"github.com/teranos/entres/resolution/clause"
	"github.com/teranos/entres/resolution/model"
)

// Document is a search hit, or a document to index
type Document struct {
	ID          string
	Collection  string
	Source      map[string]any
	Score       float64
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
}

// Key identifies the document across collections
func (d Document) Key() DocKey {
	return DocKey{Collection: d.Collection, ID: d.ID}
}

// DocKey is a (collection, id) pair
type DocKey struct {
	Collection string
	ID         string
}

func (k DocKey) String() string {
	return k.Collection + "/" + k.ID
}

// SearchOptions are backend hints passed through from the job's search.* options.
// Stores ignore what they cannot honor.
type SearchOptions struct {
	AllowPartialSearchResults  *bool  `json:"allow_partial_search_results,omitempty"`
	BatchedReduceSize          *int   `json:"batched_reduce_size,omitempty"`
	MaxConcurrentShardRequests *int   `json:"max_concurrent_shard_requests,omitempty"`
	PreFilterShardSize         *int   `json:"pre_filter_shard_size,omitempty"`
	Preference                 string `json:"preference,omitempty"`
	RequestCache               *bool  `json:"request_cache,omitempty"`

	Version          bool `json:"version,omitempty"`
	SeqNoPrimaryTerm bool `json:"seq_no_primary_term,omitempty"`
	Profile          bool `json:"profile,omitempty"`
}

// SearchRequest is one query against one collection
type SearchRequest struct {
	Collection string
	Query      clause.Clause
	Size       int
	Timeout    time.Duration // zero means none beyond ctx
	Options    SearchOptions
}

// SearchResponse holds the documents a query matched, best score first
type SearchResponse struct {
	Documents []Document
	Took      time.Duration
	TimedOut  bool
	Partial   bool
	Profile   map[string]any // set when Options.Profile was requested and the store supports it
}

// DocumentStore runs searches. Implementations must be safe for concurrent use.
// Timeouts are reported as errors.ErrTimeout, other failures as errors.ErrBackend.
type DocumentStore interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// DocumentIndexer writes documents into a store
type DocumentIndexer interface {
	Index(ctx context.Context, docs []Document) error
}

// ModelProvider returns the model of an entity type, or errors.ErrNotFound
type ModelProvider interface {
	GetModel(ctx context.Context, entityType string) (*model.Model, error)
}

// ModelStore is a ModelProvider that also manages models
type ModelStore interface {
	ModelProvider
	PutModel(ctx context.Context, entityType string, m *model.Model) error
	DeleteModel(ctx context.Context, entityType string) error
	ListModels(ctx context.Context) ([]string, error)
}
