package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// CanvasRepository handles canvas blob operations. One row per query.
type CanvasRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCanvasRepository creates a new canvas repository.
func NewCanvasRepository(db *sql.DB, logger *slog.Logger) *CanvasRepository {
	return &CanvasRepository{db: db, logger: logger}
}

// GetByQuery returns a query's canvas record or ErrCanvasNotFound.
func (r *CanvasRepository) GetByQuery(ctx context.Context, queryID string) (*models.CanvasRecord, error) {
	var record models.CanvasRecord

	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT query_id, raw, last_validated_at, updated_by, updated_at
		FROM canvases WHERE query_id = $1
	`, queryID).Scan(
		&record.QueryID,
		&record.Raw,
		&record.LastValidatedAt,
		&record.UpdatedBy,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewQueryError("GetByQuery", queryID, persistence.ErrCanvasNotFound)
	}

	if err != nil {
		return nil, persistence.NewQueryError("GetByQuery", queryID, err)
	}

	return &record, nil
}

// Save upserts a query's canvas record. The raw payload is
// last-writer-wins by design.
func (r *CanvasRepository) Save(ctx context.Context, record *models.CanvasRecord) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO canvases (query_id, raw, last_validated_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (query_id) DO UPDATE SET
			raw = EXCLUDED.raw,
			last_validated_at = EXCLUDED.last_validated_at,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`,
		record.QueryID,
		record.Raw,
		record.LastValidatedAt,
		record.UpdatedBy,
		record.UpdatedAt,
	)
	if err != nil {
		return persistence.NewQueryError("Save", record.QueryID, err)
	}

	return nil
}

// DeleteByQuery removes a query's canvas record if present.
func (r *CanvasRepository) DeleteByQuery(ctx context.Context, queryID string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM canvases WHERE query_id = $1", queryID)
	if err != nil {
		return persistence.NewQueryError("DeleteByQuery", queryID, err)
	}

	return nil
}
