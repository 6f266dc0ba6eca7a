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

// OutputRepository handles output-related database operations.
type OutputRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOutputRepository creates a new output repository.
func NewOutputRepository(db *sql.DB, logger *slog.Logger) *OutputRepository {
	return &OutputRepository{db: db, logger: logger}
}

const outputColumns = `
	id
  , query_id
  , name
  , display_name
  , formula
  , execution_order
  , display_order
  , active
  , required
  , visible
  , include_in_output
  , data_type
  , default_value
  , version
  , created_at
  , updated_at
`

func (r *OutputRepository) scan(row interface{ Scan(dest ...any) error }) (*models.Output, error) {
	var output models.Output

	err := row.Scan(
		&output.ID,
		&output.QueryID,
		&output.Name,
		&output.DisplayName,
		&output.Formula,
		&output.ExecutionOrder,
		&output.DisplayOrder,
		&output.Active,
		&output.Required,
		&output.Visible,
		&output.IncludeInOutput,
		&output.DataType,
		&output.DefaultValue,
		&output.Version,
		&output.CreatedAt,
		&output.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &output, nil
}

// GetByID returns an output or ErrOutputNotFound.
func (r *OutputRepository) GetByID(ctx context.Context, id int64) (*models.Output, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+outputColumns+" FROM outputs WHERE id = $1", id)

	output, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "output", id, persistence.ErrOutputNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "output", id, err)
	}

	return output, nil
}

// ListByQuery returns a query's outputs in execution order.
func (r *OutputRepository) ListByQuery(ctx context.Context, queryID string) ([]*models.Output, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		"SELECT "+outputColumns+" FROM outputs WHERE query_id = $1 ORDER BY execution_order, id", queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	outputs := make([]*models.Output, 0)

	for rows.Next() {
		output, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan output row: %w", err)
		}

		outputs = append(outputs, output)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate output rows: %w", err)
	}

	return outputs, nil
}

// Create inserts an output and assigns its id.
func (r *OutputRepository) Create(ctx context.Context, output *models.Output) error {
	statement := `
		INSERT INTO outputs (
			query_id, name, display_name, formula, execution_order,
			display_order, active, required, visible, include_in_output,
			data_type, default_value, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
		RETURNING id, version
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, statement,
		output.QueryID,
		output.Name,
		output.DisplayName,
		output.Formula,
		output.ExecutionOrder,
		output.DisplayOrder,
		output.Active,
		output.Required,
		output.Visible,
		output.IncludeInOutput,
		output.DataType,
		output.DefaultValue,
		output.CreatedAt,
		output.UpdatedAt,
	).Scan(&output.ID, &output.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Create", "output", 0, persistence.ErrDuplicateName)
		}

		return persistence.NewEntityError("Create", "output", 0, err)
	}

	return nil
}

// Update replaces an output guarded by its version.
func (r *OutputRepository) Update(ctx context.Context, output *models.Output) error {
	statement := `
		UPDATE outputs SET
			name = $1,
			display_name = $2,
			formula = $3,
			execution_order = $4,
			display_order = $5,
			active = $6,
			required = $7,
			visible = $8,
			include_in_output = $9,
			data_type = $10,
			default_value = $11,
			version = version + 1,
			updated_at = $12
		WHERE id = $13 AND version = $14
		RETURNING version
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, statement,
		output.Name,
		output.DisplayName,
		output.Formula,
		output.ExecutionOrder,
		output.DisplayOrder,
		output.Active,
		output.Required,
		output.Visible,
		output.IncludeInOutput,
		output.DataType,
		output.DefaultValue,
		output.UpdatedAt,
		output.ID,
		output.Version,
	).Scan(&output.Version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, output.ID); getErr != nil {
			return getErr
		}

		return persistence.NewEntityError("Update", "output", output.ID, persistence.ErrVersionConflict)
	}

	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Update", "output", output.ID, persistence.ErrDuplicateName)
		}

		return persistence.NewEntityError("Update", "output", output.ID, err)
	}

	return nil
}

// Delete removes an output.
func (r *OutputRepository) Delete(ctx context.Context, id int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM outputs WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("Delete", "output", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEntityError("Delete", "output", id, err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Delete", "output", id, persistence.ErrOutputNotFound)
	}

	return nil
}
