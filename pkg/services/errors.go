package services

import (
	"errors"
	"fmt"

	"github.com/docstream/queryengine/pkg/usage"
)

var (
	// ErrInvalidRequest marks requests that fail structural validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDuplicateName marks a name collision within the entity's scope.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrScopeChange marks an attempt to flip a constant between local and
	// global scope through an update. The scope of a constant is fixed at
	// creation; callers must delete and recreate instead.
	ErrScopeChange = errors.New("constant scope cannot be changed")

	// ErrQueryArchived marks mutations attempted against an archived query.
	ErrQueryArchived = errors.New("query is archived")

	// ErrNotActivatable marks an activation attempt that failed completeness
	// validation.
	ErrNotActivatable = errors.New("query failed activation validation")
)

// ServiceError wraps a lower-level failure with the operation that hit it.
type ServiceError struct {
	Op      string
	Err     error
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return errors.Is(e.Err, target) }

// NewServiceError creates a ServiceError with the given operation and cause.
func NewServiceError(op string, err error, message string) *ServiceError {
	return &ServiceError{Op: op, Err: err, Message: message}
}

// RejectionCode classifies why the deletion guard refused to apply a delete.
type RejectionCode string

const (
	CodeGlobalConstantInUse RejectionCode = "GLOBAL_CONSTANT_IN_USE"
	CodeLocalConstantInUse  RejectionCode = "LOCAL_CONSTANT_IN_USE"
	CodeOutputInUse         RejectionCode = "OUTPUT_IN_USE"
	CodeFieldInUse          RejectionCode = "FIELD_IN_USE"
	CodeAccessDenied        RejectionCode = "ACCESS_DENIED"
	CodeDataInconsistency   RejectionCode = "DATA_INCONSISTENCY"
)

// RejectionError is returned when the deletion guard blocks a delete. It
// carries everything a client needs to render an actionable message: the
// machine-readable code, every location that still references the entity,
// and the ordered remediation steps.
type RejectionError struct {
	Code            RejectionCode
	Message         string
	Locations       []usage.Location
	RequiredActions []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("deletion rejected (%s): %s", e.Code, e.Message)
}

// IsValidationError checks if the error is a request validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrScopeChange)
}

// IsDuplicateName checks if the error is a name collision.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsRejection checks if the error is a deletion guard rejection and returns
// it when so.
func IsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}

	return nil, false
}
