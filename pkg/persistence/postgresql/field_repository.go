package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// FieldRepository reads the template/field mirror tables. The surrounding
// application owns those rows; the engine never writes them.
type FieldRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFieldRepository creates a new field repository.
func NewFieldRepository(db *sql.DB, logger *slog.Logger) *FieldRepository {
	return &FieldRepository{db: db, logger: logger}
}

// GetByID returns a field or ErrFieldNotFound.
func (r *FieldRepository) GetByID(ctx context.Context, id int64) (*models.Field, error) {
	var field models.Field

	err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT id, name, template_id FROM fields WHERE id = $1", id,
	).Scan(&field.ID, &field.Name, &field.TemplateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "field", id, persistence.ErrFieldNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "field", id, err)
	}

	return &field, nil
}

// TemplateByID returns a template or ErrTemplateNotFound.
func (r *FieldRepository) TemplateByID(ctx context.Context, id int64) (*models.Template, error) {
	var template models.Template

	err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT id, name, active FROM templates WHERE id = $1", id,
	).Scan(&template.ID, &template.Name, &template.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("TemplateByID", "template", id, persistence.ErrTemplateNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("TemplateByID", "template", id, err)
	}

	return &template, nil
}
