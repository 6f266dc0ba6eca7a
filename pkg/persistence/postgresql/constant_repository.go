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

// ConstantRepository handles constant-related database operations.
type ConstantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConstantRepository creates a new constant repository.
func NewConstantRepository(db *sql.DB, logger *slog.Logger) *ConstantRepository {
	return &ConstantRepository{db: db, logger: logger}
}

const constantColumns = `
	id
  , query_id
  , name
  , display_name
  , default_value
  , data_type
  , is_global
  , required
  , description
  , version
  , created_at
  , updated_at
`

func (r *ConstantRepository) scan(row interface{ Scan(dest ...any) error }) (*models.Constant, error) {
	var constant models.Constant

	err := row.Scan(
		&constant.ID,
		&constant.QueryID,
		&constant.Name,
		&constant.DisplayName,
		&constant.DefaultValue,
		&constant.DataType,
		&constant.IsGlobal,
		&constant.Required,
		&constant.Description,
		&constant.Version,
		&constant.CreatedAt,
		&constant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &constant, nil
}

func (r *ConstantRepository) queryMany(ctx context.Context, statement string, args ...any) ([]*models.Constant, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query constants: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	constants := make([]*models.Constant, 0)

	for rows.Next() {
		constant, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constant row: %w", err)
		}

		constants = append(constants, constant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate constant rows: %w", err)
	}

	return constants, nil
}

// GetByID returns a constant or ErrConstantNotFound.
func (r *ConstantRepository) GetByID(ctx context.Context, id int64) (*models.Constant, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+constantColumns+" FROM constants WHERE id = $1", id)

	constant, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "constant", id, persistence.ErrConstantNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "constant", id, err)
	}

	return constant, nil
}

// ListByQuery returns the local constants owned by a query.
func (r *ConstantRepository) ListByQuery(ctx context.Context, queryID string) ([]*models.Constant, error) {
	return r.queryMany(ctx,
		"SELECT "+constantColumns+" FROM constants WHERE query_id = $1 ORDER BY id", queryID)
}

// ListGlobal returns every global constant.
func (r *ConstantRepository) ListGlobal(ctx context.Context) ([]*models.Constant, error) {
	return r.queryMany(ctx,
		"SELECT "+constantColumns+" FROM constants WHERE is_global ORDER BY id")
}

// Create inserts a constant and assigns its id.
func (r *ConstantRepository) Create(ctx context.Context, constant *models.Constant) error {
	statement := `
		INSERT INTO constants (
			query_id, name, display_name, default_value, data_type,
			is_global, required, description, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		RETURNING id, version
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, statement,
		constant.QueryID,
		constant.Name,
		constant.DisplayName,
		constant.DefaultValue,
		constant.DataType,
		constant.IsGlobal,
		constant.Required,
		constant.Description,
		constant.CreatedAt,
		constant.UpdatedAt,
	).Scan(&constant.ID, &constant.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Create", "constant", 0, persistence.ErrDuplicateName)
		}

		return persistence.NewEntityError("Create", "constant", 0, err)
	}

	return nil
}

// Update replaces a constant guarded by its version; a stale version
// returns ErrVersionConflict.
func (r *ConstantRepository) Update(ctx context.Context, constant *models.Constant) error {
	statement := `
		UPDATE constants SET
			name = $1,
			display_name = $2,
			default_value = $3,
			data_type = $4,
			required = $5,
			description = $6,
			version = version + 1,
			updated_at = $7
		WHERE id = $8 AND version = $9
		RETURNING version
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, statement,
		constant.Name,
		constant.DisplayName,
		constant.DefaultValue,
		constant.DataType,
		constant.Required,
		constant.Description,
		constant.UpdatedAt,
		constant.ID,
		constant.Version,
	).Scan(&constant.Version)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is gone or the version moved underneath us.
		if _, getErr := r.GetByID(ctx, constant.ID); getErr != nil {
			return getErr
		}

		return persistence.NewEntityError("Update", "constant", constant.ID, persistence.ErrVersionConflict)
	}

	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Update", "constant", constant.ID, persistence.ErrDuplicateName)
		}

		return persistence.NewEntityError("Update", "constant", constant.ID, err)
	}

	return nil
}

// Delete removes a constant.
func (r *ConstantRepository) Delete(ctx context.Context, id int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM constants WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("Delete", "constant", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEntityError("Delete", "constant", id, err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Delete", "constant", id, persistence.ErrConstantNotFound)
	}

	return nil
}
