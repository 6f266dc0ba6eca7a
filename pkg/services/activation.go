package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/docstream/queryengine/pkg/canvas"
	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/formula"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/otelhelper"
	"github.com/docstream/queryengine/pkg/persistence"
)

// ActivationService validates query completeness and drives the lifecycle
// transitions draft -> active -> archived.
type ActivationService struct {
	store  persistence.Persistence
	bus    eventbus.EventPublisher
	logger *slog.Logger
	tracer trace.Tracer
}

// NewActivationService creates an activation service backed by the given store.
func NewActivationService(store persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *ActivationService {
	return &ActivationService{
		store:  store,
		bus:    bus,
		logger: logger.With("module", "activation_service"),
		tracer: noop.NewTracerProvider().Tracer("activation_service"),
	}
}

// WithTracer replaces the service's tracer. The default is a no-op.
func (s *ActivationService) WithTracer(tracer trace.Tracer) *ActivationService {
	s.tracer = tracer

	return s
}

// Validate runs the completeness check without changing anything. Errors
// block activation, warnings do not: a query with zero outputs may activate,
// it just computes nothing.
func (s *ActivationService) Validate(ctx context.Context, queryID string) (*models.ValidationResult, error) {
	query, err := s.store.Queries().GetByID(ctx, queryID)
	if err != nil {
		return nil, NewServiceError("validate_query", err, "loading query")
	}

	return s.validate(ctx, query)
}

func (s *ActivationService) validate(ctx context.Context, query *models.Query) (*models.ValidationResult, error) {
	result := &models.ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if strings.TrimSpace(query.Name) == "" {
		result.Errors = append(result.Errors, "query name must not be empty")
	}

	taken, err := activeNameTaken(ctx, s.store, query.Name, query.ID)
	if err != nil {
		return nil, NewServiceError("validate_query", err, "checking name availability")
	}

	if taken {
		result.Errors = append(result.Errors, fmt.Sprintf("an active query named %q already exists", query.Name))
	}

	outputs, err := s.store.Outputs().ListByQuery(ctx, query.ID)
	if err != nil {
		return nil, NewServiceError("validate_query", err, "listing outputs")
	}

	if len(outputs) == 0 {
		result.Warnings = append(result.Warnings, "query has no outputs and will compute nothing")
	}

	siblingIDs := make([]int64, 0, len(outputs))
	for _, output := range outputs {
		siblingIDs = append(siblingIDs, output.ID)
	}

	for _, output := range outputs {
		for _, issue := range formula.Validate(output.Formula, output.ID, siblingIDs) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("output %q: %s", output.Name, issue.Message))
		}
	}

	if _, err := formula.NewDependencyGraph(outputs).ExecutionPlan(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if err := s.validateCanvas(ctx, query.ID, result); err != nil {
		return nil, err
	}

	result.IsValid = len(result.Errors) == 0

	return result, nil
}

// validateCanvas rejects activation when the stored canvas cannot be parsed.
// A query whose canvas is unreadable has unknown reference semantics and
// must not go live.
func (s *ActivationService) validateCanvas(ctx context.Context, queryID string, result *models.ValidationResult) error {
	record, err := s.store.Canvases().GetByQuery(ctx, queryID)
	if persistence.IsCanvasNotFound(err) {
		return nil
	}

	if err != nil {
		return NewServiceError("validate_query", err, "loading canvas")
	}

	if _, err := canvas.Parse(record.Raw); err != nil {
		var parseErr *canvas.ParseError
		if errors.As(err, &parseErr) {
			result.Errors = append(result.Errors, fmt.Sprintf("canvas is unreadable: %s", parseErr.Reason))

			return nil
		}

		return NewServiceError("validate_query", err, "parsing canvas")
	}

	return nil
}

// Activate transitions a draft query to active. Validation and the status
// write share one transaction; a failed validation leaves the query
// untouched and returns the result alongside ErrNotActivatable.
func (s *ActivationService) Activate(ctx context.Context, identity models.Identity, queryID string) (*models.ValidationResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "activate_query",
		attribute.String(otelhelper.QueryIDKey, queryID),
		attribute.String(otelhelper.ActorKey, identity.UserID),
	)
	defer span.End()

	var (
		result *models.ValidationResult
		name   string
	)

	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		query, err := s.store.Queries().GetByID(ctx, queryID)
		if err != nil {
			return NewServiceError("activate_query", err, "loading query")
		}

		if !query.IsDraft() {
			return NewServiceError("activate_query", ErrNotActivatable,
				fmt.Sprintf("only draft queries can be activated, this one is %s", query.Status))
		}

		name = query.Name

		result, err = s.validate(ctx, query)
		if err != nil {
			return err
		}

		if !result.IsValid {
			return NewServiceError("activate_query", ErrNotActivatable, strings.Join(result.Errors, "; "))
		}

		query.Status = models.QueryStatusActive
		query.UpdatedBy = identity.UserID
		query.UpdatedAt = time.Now().UTC()

		return s.store.Queries().Save(ctx, query)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return result, err
	}

	s.logger.InfoContext(ctx, "Query activated", "query_id", queryID, "warnings", len(result.Warnings))
	publishEvent(ctx, s.bus, s.logger, events.QueryActivatedEvent, queryID, identity, &events.QueryActivated{
		Name:     name,
		Warnings: result.Warnings,
	})

	return result, nil
}

// Archive transitions an active query to archived. Archived queries stay
// readable for audit but accept no further edits.
func (s *ActivationService) Archive(ctx context.Context, identity models.Identity, queryID string) error {
	var name string

	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		query, err := s.store.Queries().GetByID(ctx, queryID)
		if err != nil {
			return NewServiceError("archive_query", err, "loading query")
		}

		if !query.IsActive() {
			return NewServiceError("archive_query", ErrInvalidRequest,
				fmt.Sprintf("only active queries can be archived, this one is %s", query.Status))
		}

		name = query.Name
		query.Status = models.QueryStatusArchived
		query.UpdatedBy = identity.UserID
		query.UpdatedAt = time.Now().UTC()

		return s.store.Queries().Save(ctx, query)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Query archived", "query_id", queryID)
	publishEvent(ctx, s.bus, s.logger, events.QueryArchivedEvent, queryID, identity, &events.QueryArchived{Name: name})

	return nil
}
