// Package storage implements the document stores and model providers used by
// resolution jobs: SQLite-backed stores for documents and models, an in-memory
// document store, and a directory of model files.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/clause"
)

// Query constants
const (
	DocumentUpsertQuery = `
		INSERT INTO documents (collection, id, source, seq_no)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq_no), -1) + 1 FROM documents))
		ON CONFLICT (collection, id) DO UPDATE SET
			source = excluded.source,
			version = documents.version + 1,
			seq_no = excluded.seq_no,
			updated_at = CURRENT_TIMESTAMP`

	DocumentCountQuery = `SELECT COUNT(*) FROM documents WHERE collection = ?`

	DocumentDeleteQuery = `DELETE FROM documents WHERE collection = ? AND id = ?`
)

// SQLiteDocumentStore searches documents stored as JSON in SQLite.
//
// Clauses are translated into SQL over json_each. match and prefix fold ASCII
// case only, where the in-memory store folds all of Unicode.
type SQLiteDocumentStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteDocumentStore creates a store over a migrated database. logger may be nil.
func NewSQLiteDocumentStore(db *sql.DB, logger *zap.SugaredLogger) *SQLiteDocumentStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLiteDocumentStore{db: db, logger: logger}
}

// Search runs req as a single SELECT. Documents are ordered by score, then id.
func (s *SQLiteDocumentStore) Search(ctx context.Context, req resolution.SearchRequest) (*resolution.SearchResponse, error) {
	start := time.Now()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	query, args, err := buildSearch(req)
	if err != nil {
		return nil, errors.WrapBackend(err, "translate query for "+req.Collection)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.searchError(ctx, err, req.Collection)
	}
	defer rows.Close()

	var docs []resolution.Document
	for rows.Next() {
		var (
			d      resolution.Document
			source string
		)
		if err := rows.Scan(&d.ID, &source, &d.Version, &d.SeqNo, &d.PrimaryTerm, &d.Score); err != nil {
			return nil, s.searchError(ctx, err, req.Collection)
		}
		if err := json.Unmarshal([]byte(source), &d.Source); err != nil {
			return nil, errors.WrapBackend(err, fmt.Sprintf("decode %s/%s", req.Collection, d.ID))
		}
		d.Collection = req.Collection
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.searchError(ctx, err, req.Collection)
	}

	resp := &resolution.SearchResponse{Documents: docs, Took: time.Since(start)}
	if req.Options.Profile {
		resp.Profile = map[string]any{"store": "sqlite", "sql": query, "took_ns": resp.Took.Nanoseconds()}
	}
	s.logger.Debugw("search", "collection", req.Collection, "count", len(docs), "duration_ms", resp.Took.Milliseconds())
	return resp, nil
}

// searchError classifies a failed search. An expired context is a timeout
// whatever the driver reported.
func (s *SQLiteDocumentStore) searchError(ctx context.Context, err error, collection string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	s.logger.Debugw("search failed", "collection", collection, "error", err.Error())
	return errors.WrapBackend(err, "search "+collection)
}

// buildSearch returns the SELECT for req and its arguments
func buildSearch(req resolution.SearchRequest) (string, []interface{}, error) {
	score := &queryBuilder{}
	scoreExpr := "1"
	if req.Query.Type == clause.TypeBool && len(req.Query.Should) > 0 {
		terms := make([]string, len(req.Query.Should))
		for i, c := range req.Query.Should {
			expr, err := score.translate(c)
			if err != nil {
				return "", nil, err
			}
			terms[i] = "(CASE WHEN " + expr + " THEN 1 ELSE 0 END)"
		}
		scoreExpr = strings.Join(terms, " + ")
	}

	where := &queryBuilder{}
	whereExpr, err := where.translate(req.Query)
	if err != nil {
		return "", nil, err
	}

	query := "SELECT d.id, d.source, d.version, d.seq_no, d.primary_term, " + scoreExpr + " AS score " +
		"FROM documents AS d WHERE d.collection = ? AND (" + whereExpr + ") ORDER BY score DESC, d.id"
	args := append(score.args, req.Collection)
	args = append(args, where.args...)
	if req.Size > 0 {
		query += " LIMIT ?"
		args = append(args, req.Size)
	}
	return query, args, nil
}

// Index upserts documents in one transaction. Replacing a document bumps its version.
func (s *SQLiteDocumentStore) Index(ctx context.Context, docs []resolution.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapBackend(err, "begin index transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, DocumentUpsertQuery)
	if err != nil {
		return errors.WrapBackend(err, "prepare document upsert")
	}
	defer stmt.Close()

	for _, d := range docs {
		if d.Collection == "" || d.ID == "" {
			return errors.NewInvalidRequestError("document needs a collection and an id")
		}
		source := d.Source
		if source == nil {
			source = map[string]any{}
		}
		data, err := json.Marshal(source)
		if err != nil {
			return errors.WrapInvalidRequest(err, fmt.Sprintf("encode %s/%s", d.Collection, d.ID))
		}
		if _, err := stmt.ExecContext(ctx, d.Collection, d.ID, string(data)); err != nil {
			err = errors.WrapBackend(err, "index document")
			return errors.WithDetail(err, fmt.Sprintf("Document: %s/%s", d.Collection, d.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapBackend(err, "commit index transaction")
	}
	s.logger.Debugw("indexed documents", "count", len(docs))
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *SQLiteDocumentStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, DocumentDeleteQuery, collection, id); err != nil {
		return errors.WrapBackend(err, fmt.Sprintf("delete %s/%s", collection, id))
	}
	return nil
}

// Count returns the number of documents in a collection
func (s *SQLiteDocumentStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, DocumentCountQuery, collection).Scan(&n); err != nil {
		return 0, errors.WrapBackend(err, "count "+collection)
	}
	return n, nil
}
