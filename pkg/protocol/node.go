// Package protocol defines the contract between the engine and pluggable
// integration nodes.
package protocol

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
)

// Executor runs one node with its resolved input.
type Executor interface {
	Execute(ctx context.Context, ectx *ExecutionContext, input map[string]any) Result
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, ectx *ExecutionContext, input map[string]any) Result

func (f ExecutorFunc) Execute(ctx context.Context, ectx *ExecutionContext, input map[string]any) Result {
	return f(ctx, ectx, input)
}

// Result is the outcome of a node execution. A nil Err means success.
type Result struct {
	Output map[string]any
	Err    error
}

func Success(output map[string]any) Result {
	return Result{Output: output}
}

func Failure(err error) Result {
	return Result{Err: err}
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Caller sends requests through the node's connection.
type Caller interface {
	Call(ctx context.Context, req *auth.Request) (*apiclient.Response, error)
}

// ExecutionContext is what a node sees of the run it belongs to.
type ExecutionContext struct {
	RunID      string
	ScenarioID string
	NodeID     string
	Trigger    *models.Trigger
	Config     map[string]any
	Connection *models.ConnectionDefinition // Secrets are never populated
	Client     Caller
	Logger     *slog.Logger

	mu       sync.Mutex
	warnings []string
}

// Warn records a non-fatal problem on the node's log entry.
func (c *ExecutionContext) Warn(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.warnings = append(c.warnings, message)
}

func (c *ExecutionContext) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.warnings)
}

// ConfigString reads a string from the node config.
func (c *ExecutionContext) ConfigString(key string) string {
	v, _ := c.Config[key].(string)

	return v
}

// Node pairs a catalog definition with its executor.
type Node struct {
	Definition models.IntegrationNodeDefinition
	Executor   Executor
}

// NodeModule is a unit of discovery: a compiled-in package or a plugin file.
type NodeModule interface {
	Name() string
	Load(ctx context.Context) ([]Node, error)
}

// NodeLoader enumerates modules to discover.
type NodeLoader interface {
	Modules(ctx context.Context) ([]NodeModule, error)
}
