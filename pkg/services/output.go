package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/formula"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// OutputService manages the computed outputs of a query.
type OutputService struct {
	store     persistence.Persistence
	bus       eventbus.EventPublisher
	guard     *DeletionGuard
	validator *validator.Validate
	logger    *slog.Logger
}

// NewOutputService creates an output service backed by the given store.
func NewOutputService(store persistence.Persistence, bus eventbus.EventPublisher, guard *DeletionGuard, logger *slog.Logger) *OutputService {
	return &OutputService{
		store:     store,
		bus:       bus,
		guard:     guard,
		validator: validator.New(),
		logger:    logger.With("module", "output_service"),
	}
}

// SaveOutputRequest carries the caller-supplied attributes of an output.
// ID is nil on create; on update, Version must match the stored version.
type SaveOutputRequest struct {
	ID              *int64
	Name            string `validate:"required,min=1,max=100"`
	DisplayName     string `validate:"max=200"`
	Formula         string `validate:"max=10000"`
	ExecutionOrder  int
	DisplayOrder    int
	Active          bool
	Required        bool
	Visible         bool
	IncludeInOutput bool
	DataType        models.DataType `validate:"required,oneof=number text date boolean"`
	DefaultValue    string          `validate:"max=2000"`
	Version         int64
}

// Save creates or updates an output. The formula is validated before
// anything touches the store: an unbalanced marker, a self-reference, or a
// reference to another query's output rejects the save outright.
func (s *OutputService) Save(ctx context.Context, identity models.Identity, queryID string, req SaveOutputRequest) (*models.Output, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewServiceError("save_output", ErrInvalidRequest, err.Error())
	}

	if _, err := s.store.Queries().GetByID(ctx, queryID); err != nil {
		return nil, NewServiceError("save_output", err, "loading owning query")
	}

	var output *models.Output

	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		siblings, err := s.store.Outputs().ListByQuery(ctx, queryID)
		if err != nil {
			return NewServiceError("save_output", err, "listing sibling outputs")
		}

		selfID := int64(0)
		if req.ID != nil {
			selfID = *req.ID
		}

		siblingIDs := make([]int64, 0, len(siblings))

		for _, sibling := range siblings {
			if sibling.ID != selfID && sibling.Name == req.Name {
				return NewServiceError("save_output", ErrDuplicateName, "an output with this name already exists in this query")
			}

			siblingIDs = append(siblingIDs, sibling.ID)
		}

		if issues := formula.Validate(req.Formula, selfID, siblingIDs); len(issues) > 0 {
			return NewServiceError("save_output", ErrInvalidRequest, formatIssues(issues))
		}

		if req.ID == nil {
			output = s.buildOutput(queryID, req)

			return s.store.Outputs().Create(ctx, output)
		}

		existing, err := s.store.Outputs().GetByID(ctx, *req.ID)
		if err != nil {
			return NewServiceError("save_output", err, "loading output")
		}

		if existing.QueryID != queryID {
			return NewServiceError("save_output", persistence.ErrOutputNotFound, "output belongs to another query")
		}

		s.applyRequest(existing, req)

		if err := s.store.Outputs().Update(ctx, existing); err != nil {
			return NewServiceError("save_output", err, "persisting output")
		}

		output = existing

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Output saved", "output_id", output.ID, "name", output.Name, "query_id", queryID)
	publishEvent(ctx, s.bus, s.logger, events.OutputSavedEvent, queryID, identity, &events.OutputSaved{
		OutputID: output.ID,
		Name:     output.Name,
	})

	return output, nil
}

func (s *OutputService) buildOutput(queryID string, req SaveOutputRequest) *models.Output {
	now := time.Now().UTC()

	return &models.Output{
		QueryID:         queryID,
		Name:            req.Name,
		DisplayName:     req.DisplayName,
		Formula:         req.Formula,
		ExecutionOrder:  req.ExecutionOrder,
		DisplayOrder:    req.DisplayOrder,
		Active:          req.Active,
		Required:        req.Required,
		Visible:         req.Visible,
		IncludeInOutput: req.IncludeInOutput,
		DataType:        req.DataType,
		DefaultValue:    req.DefaultValue,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *OutputService) applyRequest(output *models.Output, req SaveOutputRequest) {
	output.Name = req.Name
	output.DisplayName = req.DisplayName
	output.Formula = req.Formula
	output.ExecutionOrder = req.ExecutionOrder
	output.DisplayOrder = req.DisplayOrder
	output.Active = req.Active
	output.Required = req.Required
	output.Visible = req.Visible
	output.IncludeInOutput = req.IncludeInOutput
	output.DataType = req.DataType
	output.DefaultValue = req.DefaultValue
	output.Version = req.Version
	output.UpdatedAt = time.Now().UTC()
}

// List returns the outputs of a query ordered for execution.
func (s *OutputService) List(ctx context.Context, queryID string) ([]*models.Output, error) {
	if _, err := s.store.Queries().GetByID(ctx, queryID); err != nil {
		return nil, NewServiceError("list_outputs", err, "loading query")
	}

	outputs, err := s.store.Outputs().ListByQuery(ctx, queryID)
	if err != nil {
		return nil, NewServiceError("list_outputs", err, "listing outputs")
	}

	return outputs, nil
}

// ExecutionPlan resolves the dependency order of a query's outputs, failing
// on circular formula references.
func (s *OutputService) ExecutionPlan(ctx context.Context, queryID string) ([]int64, error) {
	outputs, err := s.List(ctx, queryID)
	if err != nil {
		return nil, err
	}

	plan, err := formula.NewDependencyGraph(outputs).ExecutionPlan()
	if err != nil {
		return nil, NewServiceError("execution_plan", ErrInvalidRequest, err.Error())
	}

	return plan, nil
}

// Delete removes an output through the deletion guard.
func (s *OutputService) Delete(ctx context.Context, identity models.Identity, queryID string, outputID int64) (*DeleteRequest, error) {
	return s.guard.DeleteOutput(ctx, identity, queryID, outputID)
}

func formatIssues(issues []formula.Issue) string {
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}

	return strings.Join(messages, "; ")
}
