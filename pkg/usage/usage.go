// Package usage answers "what still references this entity". It inspects
// both authoritative sources: formula text (computational dependency) and
// the canvas graph (visual placement). The index never mutates anything
// and is safe to call concurrently.
package usage

import (
	"context"
	"fmt"

	"github.com/docstream/queryengine/pkg/canvas"
	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/token"
)

// Scope bounds a usage scan: one query, or every query in the system
// (the latter applies to global constants and template fields).
type Scope struct {
	Global  bool   `json:"global"`
	QueryID string `json:"query_id,omitempty"`
}

// GlobalScope spans every query.
func GlobalScope() Scope {
	return Scope{Global: true}
}

// QueryScope bounds the scan to one query.
func QueryScope(queryID string) Scope {
	return Scope{QueryID: queryID}
}

// LocationKind tells which authoritative source a reference was found in.
type LocationKind string

const (
	LocationCanvas  LocationKind = "canvas"
	LocationFormula LocationKind = "formula"
)

// Location is one place an entity is still referenced.
type Location struct {
	Kind       LocationKind `json:"kind"`
	QueryID    string       `json:"query_id"`
	QueryName  string       `json:"query_name"`
	OutputID   int64        `json:"output_id,omitempty"`
	OutputName string       `json:"output_name,omitempty"`
	NodeKeys   []string     `json:"node_keys,omitempty"`
}

// Description renders the location for humans.
func (l Location) Description() string {
	if l.Kind == LocationCanvas {
		return fmt.Sprintf("canvas of query %q", l.QueryName)
	}

	return fmt.Sprintf("formula of output %q in query %q", l.OutputName, l.QueryName)
}

// Report is the outcome of one usage scan.
type Report struct {
	EntityKind token.Kind `json:"entity_kind"`
	EntityID   int64      `json:"entity_id"`
	Scope      Scope      `json:"scope"`
	InUse      bool       `json:"in_use"`
	Locations  []Location `json:"locations"`
}

// Descriptions renders every location for humans.
func (r *Report) Descriptions() []string {
	descriptions := make([]string, 0, len(r.Locations))
	for _, location := range r.Locations {
		descriptions = append(descriptions, location.Description())
	}

	return descriptions
}

// UnreadableCanvasError marks a stored canvas that failed to parse during
// a usage scan. Usage is then unknown, and callers must fail closed: a
// delete gated on this scan is rejected, not waved through.
type UnreadableCanvasError struct {
	QueryID   string
	QueryName string
	Err       error
}

func (e *UnreadableCanvasError) Error() string {
	return fmt.Sprintf("canvas of query %q is unreadable, usage unknown: %v", e.QueryName, e.Err)
}

func (e *UnreadableCanvasError) Unwrap() error {
	return e.Err
}

// Index performs usage scans against the persistent store.
type Index struct {
	store persistence.Persistence
}

// NewIndex creates a usage index over the given store.
func NewIndex(store persistence.Persistence) *Index {
	return &Index{store: store}
}

// Usage reports every formula and canvas reference to the entity within
// the scope. For fields, references inside queries bound to an inactive
// template are stale and excluded.
func (ix *Index) Usage(ctx context.Context, kind token.Kind, id int64, scope Scope) (*Report, error) {
	report := &Report{
		EntityKind: kind,
		EntityID:   id,
		Scope:      scope,
		Locations:  make([]Location, 0),
	}

	queries, err := ix.queriesInScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	for _, query := range queries {
		if kind == token.KindField {
			stale, err := ix.templateInactive(ctx, query)
			if err != nil {
				return nil, err
			}

			if stale {
				continue
			}
		}

		locations, err := ix.scanQuery(ctx, query, kind, id)
		if err != nil {
			return nil, err
		}

		report.Locations = append(report.Locations, locations...)
	}

	report.InUse = len(report.Locations) > 0

	return report, nil
}

func (ix *Index) queriesInScope(ctx context.Context, scope Scope) ([]*models.Query, error) {
	if scope.Global {
		queries, err := ix.store.Queries().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list queries for usage scan: %w", err)
		}

		return queries, nil
	}

	query, err := ix.store.Queries().GetByID(ctx, scope.QueryID)
	if err != nil {
		return nil, err
	}

	return []*models.Query{query}, nil
}

// templateInactive reports whether the query is bound to a template that
// is no longer active. Queries without a template binding always count.
func (ix *Index) templateInactive(ctx context.Context, query *models.Query) (bool, error) {
	if query.TemplateID == nil {
		return false, nil
	}

	template, err := ix.store.Fields().TemplateByID(ctx, *query.TemplateID)
	if err != nil {
		if persistence.IsNotFound(err) {
			// Template gone entirely; its references are stale too.
			return true, nil
		}

		return false, err
	}

	return !template.Active, nil
}

func (ix *Index) scanQuery(ctx context.Context, query *models.Query, kind token.Kind, id int64) ([]Location, error) {
	locations := make([]Location, 0)

	canvasLocation, err := ix.scanCanvas(ctx, query, kind, id)
	if err != nil {
		return nil, err
	}

	if canvasLocation != nil {
		locations = append(locations, *canvasLocation)
	}

	outputs, err := ix.store.Outputs().ListByQuery(ctx, query.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs of query %s: %w", query.ID, err)
	}

	for _, output := range outputs {
		if token.Contains(output.Formula, kind, id) {
			locations = append(locations, Location{
				Kind:       LocationFormula,
				QueryID:    query.ID,
				QueryName:  query.Name,
				OutputID:   output.ID,
				OutputName: output.Name,
			})
		}
	}

	return locations, nil
}

func (ix *Index) scanCanvas(ctx context.Context, query *models.Query, kind token.Kind, id int64) (*Location, error) {
	record, err := ix.store.Canvases().GetByQuery(ctx, query.ID)
	if err != nil {
		if persistence.IsCanvasNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	graph, err := canvas.Parse(record.Raw)
	if err != nil {
		return nil, &UnreadableCanvasError{QueryID: query.ID, QueryName: query.Name, Err: err}
	}

	nodeKeys := graph.ReferencingNodes(kind, id)
	if len(nodeKeys) == 0 {
		return nil, nil
	}

	return &Location{
		Kind:      LocationCanvas,
		QueryID:   query.ID,
		QueryName: query.Name,
		NodeKeys:  nodeKeys,
	}, nil
}
