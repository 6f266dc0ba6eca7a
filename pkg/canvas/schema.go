package canvas

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// wireSchema constrains the primary canvas wire shape: optional zoom and
// position metadata plus a map of object-valued nodes. The legacy flat
// shape bypasses this schema and is handled by Parse directly.
const wireSchema = `{
	"type": "object",
	"properties": {
		"zoom": {"type": "number"},
		"position": {
			"type": "object",
			"properties": {
				"x": {"type": "number"},
				"y": {"type": "number"}
			}
		},
		"nodes": {
			"type": "object",
			"additionalProperties": {"type": "object"}
		}
	}
}`

// ValidateShape checks a raw payload against the canvas wire schema before
// it is stored. Shape violations come back as a ParseError.
func ValidateShape(raw string) error {
	if raw == "" {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(wireSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return &ParseError{Reason: "payload is not valid JSON", Err: err}
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return &ParseError{Reason: strings.Join(descriptions, "; ")}
	}

	return nil
}
