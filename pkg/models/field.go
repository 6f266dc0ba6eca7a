package models

// Field is an extracted document value owned by the external template
// subsystem. It is referenceable from formulas and canvases but never
// mutated by this engine.
type Field struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TemplateID int64  `json:"template_id"`
}

// Template is the external document template owning fields. Only the
// active flag matters here: references inside queries bound to an inactive
// template are stale and do not block field deletion.
type Template struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
