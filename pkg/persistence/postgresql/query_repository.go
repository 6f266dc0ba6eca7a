package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// QueryRepository handles query-related database operations.
type QueryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewQueryRepository creates a new query repository.
func NewQueryRepository(db *sql.DB, logger *slog.Logger) *QueryRepository {
	return &QueryRepository{db: db, logger: logger}
}

const queryColumns = `
	id
  , name
  , description
  , status
  , priority
  , template_id
  , execution_count
  , last_executed_at
  , created_by
  , updated_by
  , created_at
  , updated_at
`

func (r *QueryRepository) scan(row interface{ Scan(dest ...any) error }) (*models.Query, error) {
	var query models.Query

	err := row.Scan(
		&query.ID,
		&query.Name,
		&query.Description,
		&query.Status,
		&query.Priority,
		&query.TemplateID,
		&query.ExecutionCount,
		&query.LastExecutedAt,
		&query.CreatedBy,
		&query.UpdatedBy,
		&query.CreatedAt,
		&query.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &query, nil
}

// List returns all queries, newest first.
func (r *QueryRepository) List(ctx context.Context) ([]*models.Query, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		"SELECT "+queryColumns+" FROM queries ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query queries: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	queries := make([]*models.Query, 0)

	for rows.Next() {
		query, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}

		queries = append(queries, query)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query rows: %w", err)
	}

	return queries, nil
}

// GetByID returns a query or ErrQueryNotFound.
func (r *QueryRepository) GetByID(ctx context.Context, id string) (*models.Query, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+queryColumns+" FROM queries WHERE id = $1", id)

	query, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewQueryError("GetByID", id, persistence.ErrQueryNotFound)
	}

	if err != nil {
		return nil, persistence.NewQueryError("GetByID", id, err)
	}

	return query, nil
}

// GetByName returns the oldest query with the given name or ErrQueryNotFound.
// Names are only unique among active queries; drafts may share one.
func (r *QueryRepository) GetByName(ctx context.Context, name string) (*models.Query, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+queryColumns+" FROM queries WHERE name = $1 ORDER BY created_at LIMIT 1", name)

	query, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewQueryError("GetByName", name, persistence.ErrQueryNotFound)
	}

	if err != nil {
		return nil, persistence.NewQueryError("GetByName", name, err)
	}

	return query, nil
}

// Save inserts or updates a query.
func (r *QueryRepository) Save(ctx context.Context, query *models.Query) error {
	statement := `
		INSERT INTO queries (
			id, name, description, status, priority, template_id,
			execution_count, last_executed_at, created_by, updated_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			template_id = EXCLUDED.template_id,
			execution_count = EXCLUDED.execution_count,
			last_executed_at = EXCLUDED.last_executed_at,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, statement,
		query.ID,
		query.Name,
		query.Description,
		query.Status,
		query.Priority,
		query.TemplateID,
		query.ExecutionCount,
		query.LastExecutedAt,
		query.CreatedBy,
		query.UpdatedBy,
		query.CreatedAt,
		query.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewQueryError("Save", query.ID, persistence.ErrDuplicateName)
		}

		return persistence.NewQueryError("Save", query.ID, err)
	}

	return nil
}

// Delete removes a query; constants, outputs and the canvas cascade.
func (r *QueryRepository) Delete(ctx context.Context, id string) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM queries WHERE id = $1", id)
	if err != nil {
		return persistence.NewQueryError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewQueryError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewQueryError("Delete", id, persistence.ErrQueryNotFound)
	}

	return nil
}
