package registry

import (
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/schema"
)

var (
	ErrNodeNotRegistered = errors.New("node executor not registered")
	ErrInvalidPlugin     = errors.New("invalid node plugin")
)

// SchemaValidationError reports a malformed definition or a payload that does
// not satisfy a node schema.
type SchemaValidationError = schema.ValidationError

// NodeDiscoveryError isolates the failure of one module, or of one node
// inside a module, during discovery.
type NodeDiscoveryError struct {
	Module     string
	Identifier string
	Err        error
}

func (e *NodeDiscoveryError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("discover %s (%s): %v", e.Module, e.Identifier, e.Err)
	}

	return fmt.Sprintf("discover %s: %v", e.Module, e.Err)
}

func (e *NodeDiscoveryError) Unwrap() error {
	return e.Err
}
