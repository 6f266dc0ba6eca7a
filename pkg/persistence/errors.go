// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrQueryNotFound indicates a query was not found by the given identifier.
	ErrQueryNotFound = errors.New("query not found")

	// ErrConstantNotFound indicates a constant was not found by the given identifier.
	ErrConstantNotFound = errors.New("constant not found")

	// ErrOutputNotFound indicates an output was not found by the given identifier.
	ErrOutputNotFound = errors.New("output not found")

	// ErrCanvasNotFound indicates a query has no stored canvas yet.
	ErrCanvasNotFound = errors.New("canvas not found")

	// ErrFieldNotFound indicates a template field was not found.
	ErrFieldNotFound = errors.New("field not found")

	// ErrTemplateNotFound indicates a document template was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrDuplicateName indicates a unique name constraint was violated.
	ErrDuplicateName = errors.New("name already in use")

	// ErrVersionConflict indicates an optimistic concurrency check failed:
	// the row changed between read and write.
	ErrVersionConflict = errors.New("version conflict")
)

// QueryError wraps query-related errors with additional context.
type QueryError struct {
	Op      string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	QueryID string
	Err     error
	Message string
}

func (e *QueryError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for query %s: %s (%v)", e.Op, e.QueryID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for query %s: %v", e.Op, e.QueryID, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for query errors.
func (e *QueryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewQueryError creates a new query error with context.
func NewQueryError(op, queryID string, err error) *QueryError {
	return &QueryError{Op: op, QueryID: queryID, Err: err}
}

// EntityError wraps constant/output/field errors with additional context.
type EntityError struct {
	Op       string
	Entity   string // "constant", "output", "field"
	EntityID int64
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %d: %v", e.Op, e.Entity, e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity string, entityID int64, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, EntityID: entityID, Err: err}
}

// IsQueryNotFound checks if an error indicates a query was not found.
func IsQueryNotFound(err error) bool {
	return errors.Is(err, ErrQueryNotFound)
}

// IsConstantNotFound checks if an error indicates a constant was not found.
func IsConstantNotFound(err error) bool {
	return errors.Is(err, ErrConstantNotFound)
}

// IsOutputNotFound checks if an error indicates an output was not found.
func IsOutputNotFound(err error) bool {
	return errors.Is(err, ErrOutputNotFound)
}

// IsCanvasNotFound checks if an error indicates a query has no canvas.
func IsCanvasNotFound(err error) bool {
	return errors.Is(err, ErrCanvasNotFound)
}

// IsFieldNotFound checks if an error indicates a field was not found.
func IsFieldNotFound(err error) bool {
	return errors.Is(err, ErrFieldNotFound)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return IsQueryNotFound(err) ||
		IsConstantNotFound(err) ||
		IsOutputNotFound(err) ||
		IsCanvasNotFound(err) ||
		IsFieldNotFound(err) ||
		errors.Is(err, ErrTemplateNotFound)
}

// IsDuplicateName checks if an error indicates a name uniqueness violation.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsVersionConflict checks if an error indicates a lost-update conflict.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
