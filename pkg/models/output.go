package models

import "time"

// Output is a computed value owned by exactly one query and defined by a
// formula expression. Outputs may reference constants, fields and sibling
// outputs of the same query; cross-query output references are invalid.
type Output struct {
	ID              int64     `json:"id"`
	QueryID         string    `json:"query_id"      validate:"required"`
	Name            string    `json:"name"          validate:"required,min=1,max=100"`
	DisplayName     string    `json:"display_name"`
	Formula         string    `json:"formula"` // May be empty while drafting
	ExecutionOrder  int       `json:"execution_order"`
	DisplayOrder    int       `json:"display_order"`
	Active          bool      `json:"active"`
	Required        bool      `json:"required"`
	Visible         bool      `json:"visible"`
	IncludeInOutput bool      `json:"include_in_output"`
	DataType        DataType  `json:"data_type"`
	DefaultValue    string    `json:"default_value"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
