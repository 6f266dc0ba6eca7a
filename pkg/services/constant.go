package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// ConstantService manages named constants, both local to a query and global.
type ConstantService struct {
	store     persistence.Persistence
	bus       eventbus.EventPublisher
	guard     *DeletionGuard
	validator *validator.Validate
	logger    *slog.Logger
}

// NewConstantService creates a constant service backed by the given store.
func NewConstantService(store persistence.Persistence, bus eventbus.EventPublisher, guard *DeletionGuard, logger *slog.Logger) *ConstantService {
	return &ConstantService{
		store:     store,
		bus:       bus,
		guard:     guard,
		validator: validator.New(),
		logger:    logger.With("module", "constant_service"),
	}
}

// SaveConstantRequest carries the caller-supplied attributes of a constant.
// ID is nil on create; on update, Version must match the stored version.
type SaveConstantRequest struct {
	ID           *int64
	Name         string          `validate:"required,min=1,max=100"`
	DisplayName  string          `validate:"max=200"`
	DefaultValue string          `validate:"max=2000"`
	DataType     models.DataType `validate:"required,oneof=number text date boolean"`
	IsGlobal     bool
	Required     bool
	Description  string `validate:"max=2000"`
	Version      int64
}

// Save creates or updates a constant. The scope rule is enforced here: a
// global constant never carries an owning query, a local one always does,
// and an update can never flip a constant between the two.
func (s *ConstantService) Save(ctx context.Context, identity models.Identity, queryID string, req SaveConstantRequest) (*models.Constant, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewServiceError("save_constant", ErrInvalidRequest, err.Error())
	}

	if !req.IsGlobal {
		if queryID == "" {
			return nil, NewServiceError("save_constant", ErrInvalidRequest, "a local constant needs an owning query")
		}

		if _, err := s.store.Queries().GetByID(ctx, queryID); err != nil {
			return nil, NewServiceError("save_constant", err, "loading owning query")
		}
	}

	var constant *models.Constant

	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		if req.ID == nil {
			return s.create(ctx, queryID, req, &constant)
		}

		return s.update(ctx, queryID, req, &constant)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Constant saved", "constant_id", constant.ID, "name", constant.Name, "is_global", constant.IsGlobal)
	publishEvent(ctx, s.bus, s.logger, events.ConstantSavedEvent, queryID, identity, &events.ConstantSaved{
		ConstantID: constant.ID,
		Name:       constant.Name,
		IsGlobal:   constant.IsGlobal,
	})

	return constant, nil
}

func (s *ConstantService) create(ctx context.Context, queryID string, req SaveConstantRequest, out **models.Constant) error {
	if err := s.checkNameAvailable(ctx, queryID, req, 0); err != nil {
		return err
	}

	now := time.Now().UTC()
	constant := &models.Constant{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		DefaultValue: req.DefaultValue,
		DataType:     req.DataType,
		IsGlobal:     req.IsGlobal,
		Required:     req.Required,
		Description:  req.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if !req.IsGlobal {
		constant.QueryID = &queryID
	}

	if err := s.store.Constants().Create(ctx, constant); err != nil {
		return NewServiceError("save_constant", err, "persisting constant")
	}

	*out = constant

	return nil
}

func (s *ConstantService) update(ctx context.Context, queryID string, req SaveConstantRequest, out **models.Constant) error {
	constant, err := s.store.Constants().GetByID(ctx, *req.ID)
	if err != nil {
		return NewServiceError("save_constant", err, "loading constant")
	}

	if constant.IsGlobal != req.IsGlobal {
		return NewServiceError("save_constant", ErrScopeChange, "delete and recreate the constant to change its scope")
	}

	if !constant.IsGlobal && !constant.BelongsTo(queryID) {
		return NewServiceError("save_constant", persistence.ErrConstantNotFound, "constant belongs to another query")
	}

	if req.Name != constant.Name {
		if err := s.checkNameAvailable(ctx, queryID, req, constant.ID); err != nil {
			return err
		}
	}

	constant.Name = req.Name
	constant.DisplayName = req.DisplayName
	constant.DefaultValue = req.DefaultValue
	constant.DataType = req.DataType
	constant.Required = req.Required
	constant.Description = req.Description
	constant.Version = req.Version
	constant.UpdatedAt = time.Now().UTC()

	if err := s.store.Constants().Update(ctx, constant); err != nil {
		return NewServiceError("save_constant", err, "persisting constant")
	}

	*out = constant

	return nil
}

// checkNameAvailable enforces name uniqueness per scope: one namespace for
// globals, one per query for locals.
func (s *ConstantService) checkNameAvailable(ctx context.Context, queryID string, req SaveConstantRequest, selfID int64) error {
	var (
		siblings []*models.Constant
		err      error
	)

	if req.IsGlobal {
		siblings, err = s.store.Constants().ListGlobal(ctx)
	} else {
		siblings, err = s.store.Constants().ListByQuery(ctx, queryID)
	}

	if err != nil {
		return NewServiceError("save_constant", err, "checking name availability")
	}

	for _, sibling := range siblings {
		if sibling.ID != selfID && sibling.Name == req.Name {
			return NewServiceError("save_constant", ErrDuplicateName, "a constant with this name already exists in this scope")
		}
	}

	return nil
}

// ListForQuery returns the constants visible to a query: its own locals plus
// every global.
func (s *ConstantService) ListForQuery(ctx context.Context, queryID string) ([]*models.Constant, error) {
	if _, err := s.store.Queries().GetByID(ctx, queryID); err != nil {
		return nil, NewServiceError("list_constants", err, "loading query")
	}

	locals, err := s.store.Constants().ListByQuery(ctx, queryID)
	if err != nil {
		return nil, NewServiceError("list_constants", err, "listing local constants")
	}

	globals, err := s.store.Constants().ListGlobal(ctx)
	if err != nil {
		return nil, NewServiceError("list_constants", err, "listing global constants")
	}

	return append(locals, globals...), nil
}

// ListGlobal returns every global constant.
func (s *ConstantService) ListGlobal(ctx context.Context) ([]*models.Constant, error) {
	globals, err := s.store.Constants().ListGlobal(ctx)
	if err != nil {
		return nil, NewServiceError("list_constants", err, "listing global constants")
	}

	return globals, nil
}

// Delete removes a constant through the deletion guard.
func (s *ConstantService) Delete(ctx context.Context, identity models.Identity, queryID string, constantID int64) (*DeleteRequest, error) {
	return s.guard.DeleteConstant(ctx, identity, queryID, constantID)
}
