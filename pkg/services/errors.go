// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrEmptyOwnerID          = errors.New("owner ID cannot be empty")
	ErrScenarioNameRequired  = errors.New("scenario name is required")
	ErrNodesRequired         = errors.New("scenario must have at least one node")
	ErrUnknownNodeType       = errors.New("unknown node type")
	ErrUnknownIntegration    = errors.New("no node is registered for this integration")
	ErrInvalidScenarioGraph  = errors.New("invalid scenario graph")
	ErrInvalidNodeConfig     = errors.New("invalid node config")
	ErrConnectionMismatch    = errors.New("connection belongs to another integration")
	ErrConnectionNotTestable = errors.New("connection has no test_url or base_url")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyActive   = errors.New("cannot modify active scenario")
	ErrInvalidStatusChange  = errors.New("invalid scenario status change")
	ErrConnectionNotHealthy = errors.New("connection is in error state")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrScenarioNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrUnknownIntegration) ||
		errors.Is(err, ErrInvalidScenarioGraph) ||
		errors.Is(err, ErrInvalidNodeConfig) ||
		errors.Is(err, ErrConnectionMismatch) ||
		errors.Is(err, ErrConnectionNotTestable)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyActive) ||
		errors.Is(err, ErrInvalidStatusChange) ||
		errors.Is(err, ErrConnectionNotHealthy)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
