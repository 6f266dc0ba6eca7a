// Package persistence provides the data storage abstraction for queries,
// constants, outputs, canvases and externally owned template fields.
package persistence

import (
	"context"

	"github.com/docstream/queryengine/pkg/models"
)

// QueryRepository stores the query aggregate roots.
type QueryRepository interface {
	List(ctx context.Context) ([]*models.Query, error)
	GetByID(ctx context.Context, id string) (*models.Query, error)
	GetByName(ctx context.Context, name string) (*models.Query, error)
	Save(ctx context.Context, query *models.Query) error
	Delete(ctx context.Context, id string) error
}

// ConstantRepository stores global and query-scoped constants.
type ConstantRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Constant, error)
	ListByQuery(ctx context.Context, queryID string) ([]*models.Constant, error)
	ListGlobal(ctx context.Context) ([]*models.Constant, error)
	// Create assigns the constant id.
	Create(ctx context.Context, constant *models.Constant) error
	// Update enforces optimistic concurrency: the stored version must match
	// constant.Version or ErrVersionConflict is returned.
	Update(ctx context.Context, constant *models.Constant) error
	Delete(ctx context.Context, id int64) error
}

// OutputRepository stores a query's computed outputs.
type OutputRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Output, error)
	ListByQuery(ctx context.Context, queryID string) ([]*models.Output, error)
	Create(ctx context.Context, output *models.Output) error
	Update(ctx context.Context, output *models.Output) error
	Delete(ctx context.Context, id int64) error
}

// CanvasRepository stores the raw canvas blob per query. A query has at
// most one canvas, created lazily on first save.
type CanvasRepository interface {
	// GetByQuery returns ErrCanvasNotFound when the query has no canvas yet.
	GetByQuery(ctx context.Context, queryID string) (*models.CanvasRecord, error)
	Save(ctx context.Context, record *models.CanvasRecord) error
	DeleteByQuery(ctx context.Context, queryID string) error
}

// FieldRepository is the read-only view over the external template
// subsystem. The engine never writes through it.
type FieldRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Field, error)
	TemplateByID(ctx context.Context, id int64) (*models.Template, error)
}

// Persistence aggregates the repositories behind one store.
type Persistence interface {
	Queries() QueryRepository
	Constants() ConstantRepository
	Outputs() OutputRepository
	Canvases() CanvasRepository
	Fields() FieldRepository

	// Transaction runs fn atomically. Usage checks and the delete or
	// activation they gate share one transaction so a concurrent edit
	// cannot slip a new reference in between check and write.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
