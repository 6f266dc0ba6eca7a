package file

import (
	"context"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// FieldRepository serves the external template/field catalog from memory.
// The catalog is loaded once at startup; the engine never writes it.
type FieldRepository struct {
	fields    map[int64]models.Field
	templates map[int64]models.Template
}

// NewFieldRepository creates a field repository over a loaded catalog.
func NewFieldRepository(fields []models.Field, templates []models.Template) *FieldRepository {
	repo := &FieldRepository{
		fields:    make(map[int64]models.Field, len(fields)),
		templates: make(map[int64]models.Template, len(templates)),
	}

	for _, field := range fields {
		repo.fields[field.ID] = field
	}

	for _, template := range templates {
		repo.templates[template.ID] = template
	}

	return repo
}

// GetByID returns a field or ErrFieldNotFound.
func (fr *FieldRepository) GetByID(_ context.Context, id int64) (*models.Field, error) {
	field, ok := fr.fields[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "field", id, persistence.ErrFieldNotFound)
	}

	return &field, nil
}

// TemplateByID returns a template or ErrTemplateNotFound.
func (fr *FieldRepository) TemplateByID(_ context.Context, id int64) (*models.Template, error) {
	template, ok := fr.templates[id]
	if !ok {
		return nil, persistence.NewEntityError("TemplateByID", "template", id, persistence.ErrTemplateNotFound)
	}

	return &template, nil
}
