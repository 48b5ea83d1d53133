// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNodeDefinitionNotFound indicates no node definition exists for the identifier.
	ErrNodeDefinitionNotFound = errors.New("node definition not found")

	// ErrConnectionNotFound indicates a connection was not found by the given identifier.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrScenarioNotFound indicates a scenario was not found by the given identifier.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrTokenNotFound indicates no OAuth2 token is stored for the connection.
	ErrTokenNotFound = errors.New("oauth2 token not found")

	// ErrAlreadyExists indicates a record with the same identifier already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// RecordError wraps repository errors with the table and key involved.
type RecordError struct {
	Op     string // Operation being performed (e.g., "Get", "Insert", "Patch")
	Entity string // Entity kind (e.g., "scenario", "connection")
	ID     string // Record identifier if applicable
	Err    error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, entity, id string, err error) *RecordError {
	return &RecordError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeDefinitionNotFound) ||
		errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrScenarioNotFound) ||
		errors.Is(err, ErrTokenNotFound)
}

// IsAlreadyExists reports whether err signals a duplicate key.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
