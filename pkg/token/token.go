// Package token defines the reference marker grammar shared by formula text
// and canvas node payloads. A marker is self-delimited (`CONST(7)`), so id 1
// can never be mistaken for a reference to id 12.
package token

import (
	"regexp"
	"slices"
	"strconv"
)

// Kind identifies which entity type a reference marker points at.
type Kind string

const (
	KindField    Kind = "field"
	KindConstant Kind = "constant"
	KindOutput   Kind = "output"
)

// Marker keywords as they appear in formula text.
const (
	fieldKeyword    = "FIELD"
	constantKeyword = "CONST"
	outputKeyword   = "OUTPUT"
)

// Canvas payload attribute names carrying a reference of each kind.
// "variableId" is a historical alias for constant references.
const (
	FieldAttr    = "fieldId"
	ConstantAttr = "constantId"
	VariableAttr = "variableId"
	OutputAttr   = "outputId"
)

var markerPatterns = map[Kind]*regexp.Regexp{
	KindField:    regexp.MustCompile(`\bFIELD\((\d+)\)`),
	KindConstant: regexp.MustCompile(`\bCONST\((\d+)\)`),
	KindOutput:   regexp.MustCompile(`\bOUTPUT\((\d+)\)`),
}

// openMarker matches a marker keyword that is not followed by a complete
// `(digits)` group, i.e. an unbalanced reference.
var openMarker = regexp.MustCompile(`\b(FIELD|CONST|OUTPUT)\b(\(\d*)?`)

// Kinds returns all reference kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindField, KindConstant, KindOutput}
}

// IsValid reports whether k is a known reference kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindField, KindConstant, KindOutput:
		return true
	}

	return false
}

// Marker renders the formula-text marker for a reference of kind k to id.
func Marker(kind Kind, id int64) string {
	switch kind {
	case KindField:
		return fieldKeyword + "(" + strconv.FormatInt(id, 10) + ")"
	case KindConstant:
		return constantKeyword + "(" + strconv.FormatInt(id, 10) + ")"
	case KindOutput:
		return outputKeyword + "(" + strconv.FormatInt(id, 10) + ")"
	}

	return ""
}

// Extract returns the sorted, de-duplicated ids of every complete marker of
// the given kind found in text. Malformed or empty input yields an empty
// slice, never an error.
func Extract(text string, kind Kind) []int64 {
	pattern, ok := markerPatterns[kind]
	if !ok || text == "" {
		return []int64{}
	}

	seen := make(map[int64]struct{})

	for _, match := range pattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			// Digits too large to represent; skip rather than fail.
			continue
		}

		seen[id] = struct{}{}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Contains reports whether text carries a complete marker of kind for id.
func Contains(text string, kind Kind, id int64) bool {
	return slices.Contains(Extract(text, kind), id)
}

// References groups every referenced id by entity kind.
type References struct {
	Fields    []int64 `json:"fields"`
	Constants []int64 `json:"constants"`
	Outputs   []int64 `json:"outputs"`
}

// ExtractAll extracts references of every kind from text in one pass.
func ExtractAll(text string) References {
	return References{
		Fields:    Extract(text, KindField),
		Constants: Extract(text, KindConstant),
		Outputs:   Extract(text, KindOutput),
	}
}

// IsEmpty reports whether no entity of any kind is referenced.
func (r References) IsEmpty() bool {
	return len(r.Fields) == 0 && len(r.Constants) == 0 && len(r.Outputs) == 0
}

// Unbalanced returns the positions (byte offsets) of marker keywords in text
// that are not followed by a complete `(digits)` group. Formula validation
// treats any such occurrence as a syntax error.
func Unbalanced(text string) []int {
	positions := make([]int, 0)

	for _, loc := range openMarker.FindAllStringSubmatchIndex(text, -1) {
		start := loc[0]
		kind := keywordKind(text[loc[2]:loc[3]])

		if !markerAtStart(text[start:], kind) {
			positions = append(positions, start)
		}
	}

	return positions
}

func keywordKind(keyword string) Kind {
	switch keyword {
	case fieldKeyword:
		return KindField
	case constantKeyword:
		return KindConstant
	case outputKeyword:
		return KindOutput
	}

	return ""
}

func markerAtStart(segment string, kind Kind) bool {
	pattern, ok := markerPatterns[kind]
	if !ok {
		return false
	}

	loc := pattern.FindStringIndex(segment)

	return loc != nil && loc[0] == 0
}
