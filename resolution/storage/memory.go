package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution"
)

// MemoryDocumentStore keeps documents in memory and evaluates clauses locally.
// It backs tests and `entres resolve --docs`.
type MemoryDocumentStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	seqNo       int64
}

type memCollection struct {
	order []string
	docs  map[string]*resolution.Document
}

// NewMemoryDocumentStore creates an empty store
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{collections: map[string]*memCollection{}}
}

// Index inserts or replaces documents. Replacing bumps the version.
func (s *MemoryDocumentStore) Index(ctx context.Context, docs []resolution.Document) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapBackend(err, "index documents")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range docs {
		if d.Collection == "" || d.ID == "" {
			return errors.NewInvalidRequestError("document needs a collection and an id")
		}
		c, ok := s.collections[d.Collection]
		if !ok {
			c = &memCollection{docs: map[string]*resolution.Document{}}
			s.collections[d.Collection] = c
		}

		doc := d
		doc.Score = 0
		doc.SeqNo = s.seqNo
		doc.PrimaryTerm = 1
		s.seqNo++
		if prev, ok := c.docs[d.ID]; ok {
			doc.Version = prev.Version + 1
		} else {
			doc.Version = 1
			c.order = append(c.order, d.ID)
		}
		c.docs[d.ID] = &doc
	}
	return nil
}

// Count returns the number of documents in a collection
func (s *MemoryDocumentStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[collection]; ok {
		return len(c.docs), nil
	}
	return 0, nil
}

// Search evaluates the query against every document of the collection.
// A missing collection matches nothing.
func (s *MemoryDocumentStore) Search(ctx context.Context, req resolution.SearchRequest) (*resolution.SearchResponse, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapBackend(err, "search "+req.Collection)
	}
	if err := req.Query.Validate(); err != nil {
		return nil, errors.WrapBackend(err, "search "+req.Collection)
	}

	s.mu.RLock()
	var hits []resolution.Document
	if c, ok := s.collections[req.Collection]; ok {
		for _, id := range c.order {
			doc := c.docs[id]
			matched, score := req.Query.Eval(doc.ID, doc.Source)
			if !matched {
				continue
			}
			hit := *doc
			hit.Score = score
			hits = append(hits, hit)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, k int) bool {
		if hits[i].Score != hits[k].Score {
			return hits[i].Score > hits[k].Score
		}
		return hits[i].ID < hits[k].ID
	})
	if req.Size > 0 && len(hits) > req.Size {
		hits = hits[:req.Size]
	}

	resp := &resolution.SearchResponse{Documents: hits, Took: time.Since(start)}
	if req.Options.Profile {
		resp.Profile = map[string]any{"store": "memory", "took_ns": resp.Took.Nanoseconds()}
	}
	return resp, nil
}
