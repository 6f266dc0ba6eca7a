// Package services implements the business operations of the query engine:
// query lifecycle, constant and output management, canvas persistence, and
// the deletion guard that keeps referenced entities from disappearing.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

const defaultPriority = 5

// QueryService manages the query aggregate root.
type QueryService struct {
	store     persistence.Persistence
	bus       eventbus.EventPublisher
	validator *validator.Validate
	logger    *slog.Logger
}

// NewQueryService creates a query service backed by the given store.
func NewQueryService(store persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *QueryService {
	return &QueryService{
		store:     store,
		bus:       bus,
		validator: validator.New(),
		logger:    logger.With("module", "query_service"),
	}
}

// CreateQueryRequest carries the caller-supplied attributes of a new query.
type CreateQueryRequest struct {
	Name        string `validate:"required,min=3,max=200"`
	Description string `validate:"max=2000"`
	Priority    *int   `validate:"omitempty,min=1,max=10"`
	TemplateID  *int64
}

// Create persists a new draft query.
func (s *QueryService) Create(ctx context.Context, identity models.Identity, req CreateQueryRequest) (*models.Query, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewServiceError("create_query", ErrInvalidRequest, err.Error())
	}

	taken, err := activeNameTaken(ctx, s.store, req.Name, "")
	if err != nil {
		return nil, NewServiceError("create_query", err, "checking name availability")
	}

	if taken {
		return nil, NewServiceError("create_query", ErrDuplicateName, "an active query with this name already exists")
	}

	priority := defaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	now := time.Now().UTC()
	query := &models.Query{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Status:      models.QueryStatusDraft,
		Priority:    priority,
		TemplateID:  req.TemplateID,
		CreatedBy:   identity.UserID,
		UpdatedBy:   identity.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Queries().Save(ctx, query); err != nil {
		return nil, NewServiceError("create_query", err, "persisting query")
	}

	s.logger.InfoContext(ctx, "Query created", "query_id", query.ID, "name", query.Name)
	publishEvent(ctx, s.bus, s.logger, events.QueryCreatedEvent, query.ID, identity, &events.QueryCreated{Name: query.Name})

	return query, nil
}

// List returns every query, optionally filtered by status.
func (s *QueryService) List(ctx context.Context, status models.QueryStatus) ([]*models.Query, error) {
	queries, err := s.store.Queries().List(ctx)
	if err != nil {
		return nil, NewServiceError("list_queries", err, "listing queries")
	}

	if status == "" {
		return queries, nil
	}

	filtered := make([]*models.Query, 0, len(queries))

	for _, query := range queries {
		if query.Status == status {
			filtered = append(filtered, query)
		}
	}

	return filtered, nil
}

// Get returns a single query by ID.
func (s *QueryService) Get(ctx context.Context, id string) (*models.Query, error) {
	query, err := s.store.Queries().GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_query", err, "loading query")
	}

	return query, nil
}

// UpdateQueryRequest carries the mutable attributes of a query. Nil fields
// are left unchanged.
type UpdateQueryRequest struct {
	Name        *string `validate:"omitempty,min=3,max=200"`
	Description *string `validate:"omitempty,max=2000"`
	Priority    *int    `validate:"omitempty,min=1,max=10"`
	TemplateID  *int64
}

// Update applies the non-nil fields of req to an existing query.
func (s *QueryService) Update(ctx context.Context, identity models.Identity, id string, req UpdateQueryRequest) (*models.Query, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewServiceError("update_query", ErrInvalidRequest, err.Error())
	}

	query, err := s.store.Queries().GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("update_query", err, "loading query")
	}

	if query.Status == models.QueryStatusArchived {
		return nil, NewServiceError("update_query", ErrQueryArchived, "archived queries are read only")
	}

	if req.Name != nil && *req.Name != query.Name {
		taken, err := activeNameTaken(ctx, s.store, *req.Name, id)
		if err != nil {
			return nil, NewServiceError("update_query", err, "checking name availability")
		}

		if taken {
			return nil, NewServiceError("update_query", ErrDuplicateName, "an active query with this name already exists")
		}

		query.Name = *req.Name
	}

	if req.Description != nil {
		query.Description = *req.Description
	}

	if req.Priority != nil {
		query.Priority = *req.Priority
	}

	if req.TemplateID != nil {
		query.TemplateID = req.TemplateID
	}

	query.UpdatedBy = identity.UserID
	query.UpdatedAt = time.Now().UTC()

	if err := s.store.Queries().Save(ctx, query); err != nil {
		return nil, NewServiceError("update_query", err, "persisting query")
	}

	return query, nil
}

// Delete removes a query together with its canvas, outputs, and local
// constants. Global constants are left untouched.
func (s *QueryService) Delete(ctx context.Context, identity models.Identity, id string) error {
	var name string

	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		query, err := s.store.Queries().GetByID(ctx, id)
		if err != nil {
			return err
		}

		name = query.Name

		if err := s.store.Canvases().DeleteByQuery(ctx, id); err != nil {
			return err
		}

		outputs, err := s.store.Outputs().ListByQuery(ctx, id)
		if err != nil {
			return err
		}

		for _, output := range outputs {
			if err := s.store.Outputs().Delete(ctx, output.ID); err != nil {
				return err
			}
		}

		constants, err := s.store.Constants().ListByQuery(ctx, id)
		if err != nil {
			return err
		}

		for _, constant := range constants {
			if constant.IsGlobal {
				continue
			}

			if err := s.store.Constants().Delete(ctx, constant.ID); err != nil {
				return err
			}
		}

		return s.store.Queries().Delete(ctx, id)
	})
	if err != nil {
		return NewServiceError("delete_query", err, "deleting query")
	}

	s.logger.InfoContext(ctx, "Query deleted", "query_id", id)
	publishEvent(ctx, s.bus, s.logger, events.QueryDeletedEvent, id, identity, &events.QueryDeleted{Name: name})

	return nil
}

// activeNameTaken reports whether an active query other than excludeID
// already uses the name. Drafts may share names; only the active namespace
// is unique so published results stay unambiguous.
func activeNameTaken(ctx context.Context, store persistence.Persistence, name, excludeID string) (bool, error) {
	queries, err := store.Queries().List(ctx)
	if err != nil {
		return false, err
	}

	for _, query := range queries {
		if query.ID != excludeID && query.Name == name && query.IsActive() {
			return true, nil
		}
	}

	return false, nil
}
