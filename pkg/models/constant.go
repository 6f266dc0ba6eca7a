package models

import "time"

// DataType is the declared value type of a constant or output.
type DataType string

const (
	DataTypeNumber  DataType = "number"
	DataTypeText    DataType = "text"
	DataTypeDate    DataType = "date"
	DataTypeBoolean DataType = "boolean"
)

// Constant is a named value referenced from formulas and canvas nodes.
// Global constants are visible to every query and carry a nil QueryID;
// local constants belong to exactly one query. The scope is fixed at
// creation: flipping IsGlobal in place would orphan references, so a scope
// change is modeled as delete + recreate.
type Constant struct {
	ID           int64     `json:"id"`
	QueryID      *string   `json:"query_id,omitempty"` // nil iff IsGlobal
	Name         string    `json:"name"         validate:"required,min=1,max=100"`
	DisplayName  string    `json:"display_name"`
	DefaultValue string    `json:"default_value"`
	DataType     DataType  `json:"data_type"    validate:"required"`
	IsGlobal     bool      `json:"is_global"`
	Required     bool      `json:"required"`
	Description  string    `json:"description"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ScopeConsistent reports whether the global flag and owning query agree.
// A violation is a data-consistency defect, not a user error.
func (c *Constant) ScopeConsistent() bool {
	if c.IsGlobal {
		return c.QueryID == nil
	}

	return c.QueryID != nil
}

// BelongsTo reports whether a local constant is owned by the given query.
// Global constants belong to no single query.
func (c *Constant) BelongsTo(queryID string) bool {
	return c.QueryID != nil && *c.QueryID == queryID
}
