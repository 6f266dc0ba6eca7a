package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/otelhelper"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/token"
	"github.com/docstream/queryengine/pkg/usage"
)

// DeleteState tracks a delete request through the guard. Every request moves
// Requested -> UsageChecked -> Rejected or Approved -> Applied; a request
// never reaches Applied without passing UsageChecked first.
type DeleteState string

const (
	DeleteRequested    DeleteState = "requested"
	DeleteUsageChecked DeleteState = "usage_checked"
	DeleteRejected     DeleteState = "rejected"
	DeleteApproved     DeleteState = "approved"
	DeleteApplied      DeleteState = "applied"
)

// DeleteRequest is the audit record of one pass through the deletion guard.
type DeleteRequest struct {
	EntityKind token.Kind      `json:"entity_kind"`
	EntityID   int64           `json:"entity_id"`
	State      DeleteState     `json:"state"`
	Report     *usage.Report   `json:"report,omitempty"`
	Rejection  *RejectionError `json:"rejection,omitempty"`
}

// DeletionGuard gates destructive operations behind a usage scan. The scan
// and the delete run inside one storage transaction, so a reference added
// concurrently cannot slip through between check and apply.
type DeletionGuard struct {
	store  persistence.Persistence
	index  *usage.Index
	bus    eventbus.EventPublisher
	logger *slog.Logger
	tracer trace.Tracer
}

// NewDeletionGuard creates a guard over the given store.
func NewDeletionGuard(store persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *DeletionGuard {
	return &DeletionGuard{
		store:  store,
		index:  usage.NewIndex(store),
		bus:    bus,
		logger: logger.With("module", "deletion_guard"),
		tracer: noop.NewTracerProvider().Tracer("deletion_guard"),
	}
}

// WithTracer replaces the guard's tracer. The default is a no-op.
func (g *DeletionGuard) WithTracer(tracer trace.Tracer) *DeletionGuard {
	g.tracer = tracer

	return g
}

// DeleteConstant removes a constant unless something still references it.
// For global constants the scan spans every query; for local constants it is
// restricted to the owning query, which must match the caller's queryID.
func (g *DeletionGuard) DeleteConstant(ctx context.Context, identity models.Identity, queryID string, constantID int64) (*DeleteRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "delete_constant",
		attribute.String(otelhelper.QueryIDKey, queryID),
		attribute.Int64(otelhelper.EntityIDKey, constantID),
	)
	defer span.End()

	request := &DeleteRequest{EntityKind: token.KindConstant, EntityID: constantID, State: DeleteRequested}

	var deleted *models.Constant

	err := g.store.Transaction(ctx, func(ctx context.Context) error {
		constant, err := g.store.Constants().GetByID(ctx, constantID)
		if err != nil {
			return err
		}

		deleted = constant

		if !constant.ScopeConsistent() {
			return g.reject(request, CodeDataInconsistency,
				fmt.Sprintf("constant %d has contradictory scope attributes; refusing to guess its blast radius", constantID), nil)
		}

		if !constant.IsGlobal && !constant.BelongsTo(queryID) {
			return g.reject(request, CodeAccessDenied,
				fmt.Sprintf("constant %d belongs to another query", constantID), nil)
		}

		scope := usage.GlobalScope()
		if !constant.IsGlobal {
			scope = usage.QueryScope(*constant.QueryID)
		}

		report, err := g.index.Usage(ctx, token.KindConstant, constantID, scope)
		if err != nil {
			return err
		}

		request.State = DeleteUsageChecked
		request.Report = report

		if report.InUse {
			code := CodeLocalConstantInUse
			if constant.IsGlobal {
				code = CodeGlobalConstantInUse
			}

			return g.reject(request, code,
				fmt.Sprintf("constant %q is still referenced in %d location(s)", constant.Name, len(report.Locations)), report)
		}

		request.State = DeleteApproved

		return g.store.Constants().Delete(ctx, constantID)
	})
	if err != nil {
		g.observe(ctx, span, request, identity, err)

		return request, err
	}

	request.State = DeleteApplied
	g.logger.InfoContext(ctx, "Constant deleted", "constant_id", constantID, "is_global", deleted.IsGlobal)
	publishEvent(ctx, g.bus, g.logger, events.ConstantDeletedEvent, queryID, identity, &events.ConstantDeleted{
		ConstantID: deleted.ID,
		Name:       deleted.Name,
		IsGlobal:   deleted.IsGlobal,
	})

	return request, nil
}

// DeleteOutput removes an output unless its owning query still references it
// from the canvas or a sibling formula. References never cross queries, so
// the scan is restricted to the owner.
func (g *DeletionGuard) DeleteOutput(ctx context.Context, identity models.Identity, queryID string, outputID int64) (*DeleteRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "delete_output",
		attribute.String(otelhelper.QueryIDKey, queryID),
		attribute.Int64(otelhelper.EntityIDKey, outputID),
	)
	defer span.End()

	request := &DeleteRequest{EntityKind: token.KindOutput, EntityID: outputID, State: DeleteRequested}

	var deleted *models.Output

	err := g.store.Transaction(ctx, func(ctx context.Context) error {
		output, err := g.store.Outputs().GetByID(ctx, outputID)
		if err != nil {
			return err
		}

		deleted = output

		if output.QueryID != queryID {
			return g.reject(request, CodeAccessDenied,
				fmt.Sprintf("output %d belongs to another query", outputID), nil)
		}

		report, err := g.index.Usage(ctx, token.KindOutput, outputID, usage.QueryScope(queryID))
		if err != nil {
			return err
		}

		request.State = DeleteUsageChecked
		request.Report = report

		if report.InUse {
			return g.reject(request, CodeOutputInUse,
				fmt.Sprintf("output %q is still referenced in %d location(s)", output.Name, len(report.Locations)), report)
		}

		request.State = DeleteApproved

		return g.store.Outputs().Delete(ctx, outputID)
	})
	if err != nil {
		g.observe(ctx, span, request, identity, err)

		return request, err
	}

	request.State = DeleteApplied
	g.logger.InfoContext(ctx, "Output deleted", "output_id", outputID, "query_id", queryID)
	publishEvent(ctx, g.bus, g.logger, events.OutputDeletedEvent, queryID, identity, &events.OutputDeleted{
		OutputID: deleted.ID,
		Name:     deleted.Name,
	})

	return request, nil
}

// CheckField reports whether a field may be removed. Fields live in the
// template catalog outside this engine, so the guard only answers; it never
// deletes. References inside queries bound to an inactive template do not
// count.
func (g *DeletionGuard) CheckField(ctx context.Context, identity models.Identity, fieldID int64) (*DeleteRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "check_field",
		attribute.Int64(otelhelper.EntityIDKey, fieldID),
	)
	defer span.End()

	request := &DeleteRequest{EntityKind: token.KindField, EntityID: fieldID, State: DeleteRequested}

	field, err := g.store.Fields().GetByID(ctx, fieldID)
	if err != nil {
		otelhelper.SetError(span, err)

		return request, err
	}

	report, err := g.index.Usage(ctx, token.KindField, fieldID, usage.GlobalScope())
	if err != nil {
		otelhelper.SetError(span, err)

		return request, err
	}

	request.State = DeleteUsageChecked
	request.Report = report

	if report.InUse {
		err := g.reject(request, CodeFieldInUse,
			fmt.Sprintf("field %q is still referenced in %d location(s)", field.Name, len(report.Locations)), report)
		g.observe(ctx, span, request, identity, err)

		return request, err
	}

	request.State = DeleteApproved

	return request, nil
}

func (g *DeletionGuard) reject(request *DeleteRequest, code RejectionCode, message string, report *usage.Report) *RejectionError {
	rejection := &RejectionError{
		Code:    code,
		Message: message,
	}

	if report != nil {
		rejection.Locations = report.Locations
		rejection.RequiredActions = remediationSteps(request.EntityKind, report)
	}

	request.State = DeleteRejected
	request.Rejection = rejection

	return rejection
}

func (g *DeletionGuard) observe(ctx context.Context, span trace.Span, request *DeleteRequest, identity models.Identity, err error) {
	otelhelper.SetError(span, err)

	rejection, ok := IsRejection(err)
	if !ok {
		return
	}

	span.SetAttributes(attribute.String(otelhelper.RejectionCodeKey, string(rejection.Code)))
	g.logger.WarnContext(ctx, "Deletion rejected",
		"entity_kind", request.EntityKind,
		"entity_id", request.EntityID,
		"code", rejection.Code,
		"locations", len(rejection.Locations),
	)

	queryID := ""
	if request.Report != nil && !request.Report.Scope.Global {
		queryID = request.Report.Scope.QueryID
	}

	publishEvent(ctx, g.bus, g.logger, events.DeletionRejectedEvent, queryID, identity, &events.DeletionRejected{
		EntityKind: request.EntityKind,
		EntityID:   request.EntityID,
		Code:       string(rejection.Code),
		Locations:  rejection.Locations,
	})
}

// remediationSteps builds the ordered actions that unblock a rejected delete.
func remediationSteps(kind token.Kind, report *usage.Report) []string {
	var hasCanvas, hasFormula bool

	for _, location := range report.Locations {
		switch location.Kind {
		case usage.LocationCanvas:
			hasCanvas = true
		case usage.LocationFormula:
			hasFormula = true
		}
	}

	steps := make([]string, 0, 3)

	if hasCanvas {
		steps = append(steps, fmt.Sprintf("Remove the %s from the canvas of the listed queries", kind))
	}

	if hasFormula {
		steps = append(steps, fmt.Sprintf("Remove the %s reference from the listed output formulas", kind))
	}

	steps = append(steps, "Retry the delete")

	return steps
}
