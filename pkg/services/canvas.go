package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/docstream/queryengine/pkg/canvas"
	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// CanvasService manages the visual canvas blob of a query. The blob is
// stored exactly as received so the visual editor round-trips losslessly;
// parsing only gates acceptance.
type CanvasService struct {
	store  persistence.Persistence
	bus    eventbus.EventPublisher
	logger *slog.Logger
}

// NewCanvasService creates a canvas service backed by the given store.
func NewCanvasService(store persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *CanvasService {
	return &CanvasService{
		store:  store,
		bus:    bus,
		logger: logger.With("module", "canvas_service"),
	}
}

// Update replaces a query's canvas. The raw document must pass both the
// shape schema and the graph parser; a blob this engine cannot read would
// poison every later usage scan, so it is rejected at the door.
func (s *CanvasService) Update(ctx context.Context, identity models.Identity, queryID string, raw string) (*models.CanvasRecord, error) {
	query, err := s.store.Queries().GetByID(ctx, queryID)
	if err != nil {
		return nil, NewServiceError("update_canvas", err, "loading query")
	}

	if query.Status == models.QueryStatusArchived {
		return nil, NewServiceError("update_canvas", ErrQueryArchived, "archived queries are read only")
	}

	if err := canvas.ValidateShape(raw); err != nil {
		return nil, err
	}

	graph, err := canvas.Parse(raw)
	if err != nil {
		return nil, err
	}

	record := &models.CanvasRecord{
		QueryID:         queryID,
		Raw:             raw,
		LastValidatedAt: time.Now().UTC(),
		UpdatedBy:       identity.UserID,
		UpdatedAt:       time.Now().UTC(),
	}

	if err := s.store.Canvases().Save(ctx, record); err != nil {
		return nil, NewServiceError("update_canvas", err, "persisting canvas")
	}

	s.logger.InfoContext(ctx, "Canvas updated", "query_id", queryID, "nodes", len(graph.Nodes))
	publishEvent(ctx, s.bus, s.logger, events.CanvasUpdatedEvent, queryID, identity, &events.CanvasUpdated{
		NodeCount: len(graph.Nodes),
	})

	return record, nil
}

// Get returns a query's stored canvas.
func (s *CanvasService) Get(ctx context.Context, queryID string) (*models.CanvasRecord, error) {
	if _, err := s.store.Queries().GetByID(ctx, queryID); err != nil {
		return nil, NewServiceError("get_canvas", err, "loading query")
	}

	record, err := s.store.Canvases().GetByQuery(ctx, queryID)
	if err != nil {
		return nil, NewServiceError("get_canvas", err, "loading canvas")
	}

	return record, nil
}
