package models

import "time"

// CanvasRecord is the persisted form of a query's canvas: the raw JSON
// payload exactly as submitted, plus bookkeeping. The raw blob is
// last-writer-wins; structural interpretation happens in pkg/canvas.
type CanvasRecord struct {
	QueryID         string    `json:"query_id"`
	Raw             string    `json:"raw"`
	LastValidatedAt time.Time `json:"last_validated_at"`
	UpdatedBy       string    `json:"updated_by"`
	UpdatedAt       time.Time `json:"updated_at"`
}
