// Package models defines the core domain models for the query formula engine.
package models

import "time"

// QueryStatus represents the lifecycle state of a query.
type QueryStatus string

const (
	QueryStatusDraft    QueryStatus = "draft"    // Editable, not yet runnable
	QueryStatusActive   QueryStatus = "active"   // Validated and runnable
	QueryStatusArchived QueryStatus = "archived" // Historical, read-only
)

// Identity names the caller performing a mutation. Audit stamps always come
// from an explicit identity, never from ambient process state.
type Identity struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name,omitempty"`
}

// Query is the aggregate owning constants, outputs and one canvas graph.
type Query struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"        validate:"required,min=3,max=200"`
	Description    string      `json:"description"`
	Status         QueryStatus `json:"status"      validate:"required"`
	Priority       int         `json:"priority"    validate:"min=1,max=10"`
	TemplateID     *int64      `json:"template_id,omitempty"` // Document template this query runs against
	ExecutionCount int64       `json:"execution_count"`
	LastExecutedAt *time.Time  `json:"last_executed_at,omitempty"`
	CreatedBy      string      `json:"created_by"`
	UpdatedBy      string      `json:"updated_by"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IsDraft reports whether the query is still editable.
func (q *Query) IsDraft() bool {
	return q.Status == QueryStatusDraft
}

// IsActive reports whether the query has passed activation.
func (q *Query) IsActive() bool {
	return q.Status == QueryStatusActive
}

// ValidationResult is the outcome of a completeness check. Errors block
// activation; warnings do not.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
