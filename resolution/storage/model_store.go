package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/model"
)

// Query constants
const (
	ModelSelectQuery = `SELECT model FROM entity_models WHERE entity_type = ?`

	ModelUpsertQuery = `
		INSERT INTO entity_models (entity_type, model) VALUES (?, ?)
		ON CONFLICT (entity_type) DO UPDATE SET
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP`

	ModelDeleteQuery = `DELETE FROM entity_models WHERE entity_type = ?`

	ModelListQuery = `SELECT entity_type FROM entity_models ORDER BY entity_type`
)

// SQLiteModelStore keeps entity models in the entity_models table
type SQLiteModelStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteModelStore creates a model store over a migrated database. logger may be nil.
func NewSQLiteModelStore(db *sql.DB, logger *zap.SugaredLogger) *SQLiteModelStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLiteModelStore{db: db, logger: logger}
}

// GetModel loads and parses the model of entityType
func (s *SQLiteModelStore) GetModel(ctx context.Context, entityType string) (*model.Model, error) {
	if err := model.ValidateEntityType(entityType); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, ModelSelectQuery, entityType).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("entity model not found: %s", entityType)
	}
	if err != nil {
		return nil, errors.WrapBackend(err, "load model "+entityType)
	}

	m, err := model.Parse([]byte(data))
	if err != nil {
		return nil, errors.Wrapf(err, "stored model %s", entityType)
	}
	return m, nil
}

// PutModel creates or replaces the model of entityType
func (s *SQLiteModelStore) PutModel(ctx context.Context, entityType string, m *model.Model) error {
	if err := model.ValidateEntityType(entityType); err != nil {
		return err
	}
	data, err := m.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "encode model %s", entityType)
	}
	if _, err := s.db.ExecContext(ctx, ModelUpsertQuery, entityType, string(data)); err != nil {
		err = errors.WrapBackend(err, "store model")
		return errors.WithDetail(err, fmt.Sprintf("Entity type: %s", entityType))
	}
	s.logger.Infow("stored entity model", "entity_type", entityType)
	return nil
}

// DeleteModel removes the model of entityType
func (s *SQLiteModelStore) DeleteModel(ctx context.Context, entityType string) error {
	if err := model.ValidateEntityType(entityType); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, ModelDeleteQuery, entityType)
	if err != nil {
		return errors.WrapBackend(err, "delete model "+entityType)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapBackend(err, "delete model "+entityType)
	}
	if n == 0 {
		return errors.NewNotFoundError("entity model not found: %s", entityType)
	}
	s.logger.Infow("deleted entity model", "entity_type", entityType)
	return nil
}

// ListModels returns every entity type with a model, sorted
func (s *SQLiteModelStore) ListModels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, ModelListQuery)
	if err != nil {
		return nil, errors.WrapBackend(err, "list models")
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, errors.WrapBackend(err, "scan entity type")
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapBackend(err, "list models")
	}
	return types, nil
}
