// Package web provides the HTTP surface of the query engine: REST handlers,
// request validation, and RFC 7807 problem responses.
package web

import "github.com/docstream/queryengine/pkg/models"

// CreateQueryRequest is the request body for creating a new query.
type CreateQueryRequest struct {
	Name        string `json:"name"                  validate:"required,min=3,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	Priority    *int   `json:"priority,omitempty"    validate:"omitempty,min=1,max=10"`
	TemplateID  *int64 `json:"template_id,omitempty"`
}

// UpdateQueryRequest is the request body for partial query updates. Nil
// fields are left unchanged.
type UpdateQueryRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=3,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Priority    *int    `json:"priority,omitempty"    validate:"omitempty,min=1,max=10"`
	TemplateID  *int64  `json:"template_id,omitempty"`
}

// SaveConstantRequest is the request body for creating or updating a
// constant. ID is absent on create; Version must carry the last read
// version on update.
type SaveConstantRequest struct {
	ID           *int64          `json:"id,omitempty"`
	Name         string          `json:"name"                    validate:"required,min=1,max=100"`
	DisplayName  string          `json:"display_name,omitempty"  validate:"max=200"`
	DefaultValue string          `json:"default_value,omitempty" validate:"max=2000"`
	DataType     models.DataType `json:"data_type"               validate:"required,oneof=number text date boolean"`
	IsGlobal     bool            `json:"is_global"`
	Required     bool            `json:"required"`
	Description  string          `json:"description,omitempty"   validate:"max=2000"`
	Version      int64           `json:"version"`
}

// SaveOutputRequest is the request body for creating or updating an output.
type SaveOutputRequest struct {
	ID              *int64          `json:"id,omitempty"`
	Name            string          `json:"name"                    validate:"required,min=1,max=100"`
	DisplayName     string          `json:"display_name,omitempty"  validate:"max=200"`
	Formula         string          `json:"formula,omitempty"       validate:"max=10000"`
	ExecutionOrder  int             `json:"execution_order"`
	DisplayOrder    int             `json:"display_order"`
	Active          bool            `json:"active"`
	Required        bool            `json:"required"`
	Visible         bool            `json:"visible"`
	IncludeInOutput bool            `json:"include_in_output"`
	DataType        models.DataType `json:"data_type"               validate:"required,oneof=number text date boolean"`
	DefaultValue    string          `json:"default_value,omitempty" validate:"max=2000"`
	Version         int64           `json:"version"`
}

// ExecutionPlanResponse lists output IDs in dependency order.
type ExecutionPlanResponse struct {
	QueryID string  `json:"query_id"`
	Plan    []int64 `json:"plan"`
}
