// Package events defines the domain events the engine publishes so the
// surrounding administration application can react to query lifecycle
// changes (audit trails, cache invalidation, dashboards).
package events

import (
	"time"

	"github.com/docstream/queryengine/pkg/token"
	"github.com/docstream/queryengine/pkg/usage"
)

type EventType string

const Topic = "queryengine.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	QueryCreatedEvent      EventType = "query.created"
	QueryActivatedEvent    EventType = "query.activated"
	QueryArchivedEvent     EventType = "query.archived"
	QueryDeletedEvent      EventType = "query.deleted"
	ConstantSavedEvent     EventType = "constant.saved"
	ConstantDeletedEvent   EventType = "constant.deleted"
	OutputSavedEvent       EventType = "output.saved"
	OutputDeletedEvent     EventType = "output.deleted"
	CanvasUpdatedEvent     EventType = "canvas.updated"
	DeletionRejectedEvent  EventType = "deletion.rejected"
)

// BaseEvent carries the attributes common to every domain event.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	QueryID   string    `json:"query_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
}

func (e BaseEvent) GetType() EventType {
	return e.Type
}

// Stamp fills the envelope attributes before publication.
func (e *BaseEvent) Stamp(id string, eventType EventType, queryID, actor string) {
	e.ID = id
	e.Type = eventType
	e.Timestamp = time.Now().UTC()
	e.QueryID = queryID
	e.Actor = actor
}

// QueryCreated is published when a new draft query is created.
type QueryCreated struct {
	BaseEvent

	Name string `json:"name"`
}

// QueryActivated is published after a successful draft-to-active transition.
type QueryActivated struct {
	BaseEvent

	Name     string   `json:"name"`
	Warnings []string `json:"warnings,omitempty"`
}

// QueryArchived is published when an active query is archived.
type QueryArchived struct {
	BaseEvent

	Name string `json:"name"`
}

// QueryDeleted is published when a query and its owned entities are removed.
type QueryDeleted struct {
	BaseEvent

	Name string `json:"name"`
}

// ConstantSaved is published when a constant is created or updated.
type ConstantSaved struct {
	BaseEvent

	ConstantID int64  `json:"constant_id"`
	Name       string `json:"name"`
	IsGlobal   bool   `json:"is_global"`
}

// ConstantDeleted is published after a guarded constant delete succeeds.
type ConstantDeleted struct {
	BaseEvent

	ConstantID int64  `json:"constant_id"`
	Name       string `json:"name"`
	IsGlobal   bool   `json:"is_global"`
}

// OutputSaved is published when an output is created or updated.
type OutputSaved struct {
	BaseEvent

	OutputID int64  `json:"output_id"`
	Name     string `json:"name"`
}

// OutputDeleted is published after a guarded output delete succeeds.
type OutputDeleted struct {
	BaseEvent

	OutputID int64  `json:"output_id"`
	Name     string `json:"name"`
}

// CanvasUpdated is published when a query's canvas blob is replaced.
type CanvasUpdated struct {
	BaseEvent

	NodeCount int `json:"node_count"`
}

// DeletionRejected is published when the deletion guard blocks a delete.
// Operators watch these to spot users fighting stale references.
type DeletionRejected struct {
	BaseEvent

	EntityKind token.Kind       `json:"entity_kind"`
	EntityID   int64            `json:"entity_id"`
	Code       string           `json:"code"`
	Locations  []usage.Location `json:"locations,omitempty"`
}
