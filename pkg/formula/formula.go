// Package formula provides pure analysis of output formula expressions:
// reference extraction, structural validation and the output dependency
// graph. Formulas are never evaluated here.
package formula

import (
	"fmt"
	"slices"

	"github.com/docstream/queryengine/pkg/token"
)

// Issue codes reported by Validate.
const (
	IssueUnbalancedReference = "UNBALANCED_REFERENCE"
	IssueSelfReference       = "SELF_REFERENCE"
	IssueForeignOutput       = "FOREIGN_OUTPUT_REFERENCE"
)

// Issue is one validation finding in a formula expression.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Code + ": " + i.Message
}

// References returns every entity the expression mentions, grouped by kind.
func References(expr string) token.References {
	return token.ExtractAll(expr)
}

// Validate checks an output formula for structural problems: unbalanced
// reference markers, a reference to the output itself, and references to
// outputs that do not belong to the same query. An empty expression is
// valid (outputs may be drafted before their formula is written).
//
// selfID is zero for outputs that have not been persisted yet.
func Validate(expr string, selfID int64, siblingOutputIDs []int64) []Issue {
	issues := make([]Issue, 0)

	if expr == "" {
		return issues
	}

	for _, pos := range token.Unbalanced(expr) {
		issues = append(issues, Issue{
			Code:    IssueUnbalancedReference,
			Message: fmt.Sprintf("unbalanced reference marker at position %d", pos),
		})
	}

	for _, outputID := range token.Extract(expr, token.KindOutput) {
		if selfID != 0 && outputID == selfID {
			issues = append(issues, Issue{
				Code:    IssueSelfReference,
				Message: fmt.Sprintf("formula references its own output %s", token.Marker(token.KindOutput, outputID)),
			})

			continue
		}

		if !slices.Contains(siblingOutputIDs, outputID) {
			issues = append(issues, Issue{
				Code:    IssueForeignOutput,
				Message: fmt.Sprintf("%s does not name an output of this query", token.Marker(token.KindOutput, outputID)),
			})
		}
	}

	return issues
}
