// Package registry keeps the catalog of integration node definitions and the
// executors bound to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/schema"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
)

// Outcome is what a registration did to the stored catalog.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// DiscoveryResult summarizes a discovery batch.
type DiscoveryResult struct {
	Created   int                   `json:"created"`
	Updated   int                   `json:"updated"`
	Unchanged int                   `json:"unchanged"`
	Errors    []*NodeDiscoveryError `json:"errors,omitempty"`
}

type schemas struct {
	input  *schema.Schema
	output *schema.Schema
	config *schema.Schema
}

type binding struct {
	definition *models.IntegrationNodeDefinition
	executor   protocol.Executor
	schemas    schemas
}

type Registry struct {
	logger   *slog.Logger
	repo     persistence.NodeDefinitionRepository
	validate *validator.Validate
	clock    clockwork.Clock

	mu       sync.RWMutex
	bindings map[string]*binding
}

type Option func(*Registry)

func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

func NewRegistry(log *slog.Logger, repo persistence.NodeDefinitionRepository, opts ...Option) *Registry {
	r := &Registry{
		logger:   log.With("module", "registry"),
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    clockwork.NewRealClock(),
		bindings: make(map[string]*binding),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register validates the node definition and upserts it by identifier. A
// stored definition with the same version is left untouched. The executor
// is bound in every case.
func (r *Registry) Register(ctx context.Context, node protocol.Node) (Outcome, error) {
	def := node.Definition.Clone()

	if node.Executor == nil {
		return "", fmt.Errorf("register %s: %w", def.Identifier, ErrNodeNotRegistered)
	}

	err := r.validate.Struct(def)
	if err != nil {
		return "", &SchemaValidationError{Subject: "node definition " + def.Identifier, Details: []string{err.Error()}}
	}

	parsed, err := parseSchemas(def)
	if err != nil {
		return "", err
	}

	logger := r.logger.With("node_id", def.Identifier, "version", def.Version)

	stored, err := r.repo.GetDefinition(ctx, def.Identifier)

	var outcome Outcome

	switch {
	case errors.Is(err, persistence.ErrNodeDefinitionNotFound):
		now := r.clock.Now().UTC()
		def.CreatedAt = now
		def.UpdatedAt = now

		err = r.repo.InsertDefinition(ctx, def)
		if err != nil {
			return "", fmt.Errorf("register %s: %w", def.Identifier, err)
		}

		outcome = OutcomeCreated

		logger.InfoContext(ctx, "Node definition created")
	case err != nil:
		return "", fmt.Errorf("register %s: %w", def.Identifier, err)
	case stored.Version != def.Version:
		err = r.repo.PatchDefinition(ctx, def.Identifier, patchFrom(def))
		if err != nil {
			return "", fmt.Errorf("register %s: %w", def.Identifier, err)
		}

		def.CreatedAt = stored.CreatedAt
		def.UpdatedAt = r.clock.Now().UTC()
		outcome = OutcomeUpdated

		logger.InfoContext(ctx, "Node definition updated", "previous_version", stored.Version)
	default:
		// Same version: the stored document stays authoritative.
		def = stored

		parsed, err = parseSchemas(def)
		if err != nil {
			return "", err
		}

		outcome = OutcomeUnchanged
	}

	r.mu.Lock()
	r.bindings[def.Identifier] = &binding{definition: def, executor: node.Executor, schemas: parsed}
	r.mu.Unlock()

	return outcome, nil
}

// DiscoverAndRegisterNodes registers every node the loader yields. Failures
// are collected per module and never abort the batch; only a failure to
// enumerate modules is returned as an error.
func (r *Registry) DiscoverAndRegisterNodes(ctx context.Context, loader protocol.NodeLoader) (DiscoveryResult, error) {
	var result DiscoveryResult

	modules, err := loader.Modules(ctx)
	if err != nil {
		return result, fmt.Errorf("enumerate node modules: %w", err)
	}

	for _, module := range modules {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		nodes, err := loadModule(ctx, module)
		if err != nil {
			r.logger.WarnContext(ctx, "Node module failed to load", "node_module", module.Name(), "error", err)
			result.Errors = append(result.Errors, &NodeDiscoveryError{Module: module.Name(), Err: err})

			continue
		}

		for _, node := range nodes {
			outcome, err := r.Register(ctx, node)
			if err != nil {
				r.logger.WarnContext(ctx, "Node registration failed",
					"node_module", module.Name(),
					"node_id", node.Definition.Identifier,
					"error", err,
				)
				result.Errors = append(result.Errors, &NodeDiscoveryError{
					Module:     module.Name(),
					Identifier: node.Definition.Identifier,
					Err:        err,
				})

				continue
			}

			switch outcome {
			case OutcomeCreated:
				result.Created++
			case OutcomeUpdated:
				result.Updated++
			case OutcomeUnchanged:
				result.Unchanged++
			}
		}
	}

	r.logger.InfoContext(ctx, "Node discovery finished",
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"errors", len(result.Errors),
	)

	return result, nil
}

func loadModule(ctx context.Context, module protocol.NodeModule) (nodes []protocol.Node, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("module panicked: %v", rec)
		}
	}()

	return module.Load(ctx)
}

// Executor returns the executor bound to the identifier.
func (r *Registry) Executor(identifier string) (protocol.Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotRegistered, identifier)
	}

	return b.executor, nil
}

// Definition reads a definition from storage.
func (r *Registry) Definition(ctx context.Context, identifier string) (*models.IntegrationNodeDefinition, error) {
	return r.repo.GetDefinition(ctx, identifier)
}

func (r *Registry) Definitions(ctx context.Context, filter persistence.NodeDefinitionFilter) ([]*models.IntegrationNodeDefinition, error) {
	return r.repo.ListDefinitions(ctx, filter)
}

// Deprecate flags a definition. Definitions are never deleted.
func (r *Registry) Deprecate(ctx context.Context, identifier string) error {
	deprecated := true

	err := r.repo.PatchDefinition(ctx, identifier, persistence.NodeDefinitionPatch{Deprecated: &deprecated})
	if err != nil {
		return fmt.Errorf("deprecate %s: %w", identifier, err)
	}

	r.mu.Lock()
	if b, ok := r.bindings[identifier]; ok {
		b.definition.Deprecated = true
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Node definition deprecated", "node_id", identifier)

	return nil
}

// ValidateNodeConfig checks a scenario node config against the config schema.
func (r *Registry) ValidateNodeConfig(ctx context.Context, identifier string, config map[string]any) error {
	s, err := r.schemasFor(ctx, identifier)
	if err != nil {
		return err
	}

	return s.config.Validate(identifier+" config", config)
}

// ValidateInput checks a resolved input against the input schema.
func (r *Registry) ValidateInput(ctx context.Context, identifier string, input map[string]any) error {
	s, err := r.schemasFor(ctx, identifier)
	if err != nil {
		return err
	}

	return s.input.Validate(identifier+" input", input)
}

// Registered lists the identifiers with a bound executor.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.bindings))
	for id := range r.bindings {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (r *Registry) schemasFor(ctx context.Context, identifier string) (schemas, error) {
	r.mu.RLock()
	b, ok := r.bindings[identifier]
	r.mu.RUnlock()

	if ok {
		return b.schemas, nil
	}

	def, err := r.repo.GetDefinition(ctx, identifier)
	if err != nil {
		return schemas{}, err
	}

	return parseSchemas(def)
}

func parseSchemas(def *models.IntegrationNodeDefinition) (schemas, error) {
	var (
		s   schemas
		err error
	)

	fields := []struct {
		name   string
		doc    []byte
		target **schema.Schema
	}{
		{"input_schema", def.InputSchema, &s.input},
		{"output_schema", def.OutputSchema, &s.output},
		{"config_schema", def.ConfigSchema, &s.config},
	}

	for _, f := range fields {
		*f.target, err = schema.Parse(f.doc)
		if err != nil {
			return schemas{}, &SchemaValidationError{
				Subject: def.Identifier + " " + f.name,
				Details: []string{err.Error()},
			}
		}
	}

	return s, nil
}

func patchFrom(def *models.IntegrationNodeDefinition) persistence.NodeDefinitionPatch {
	return persistence.NodeDefinitionPatch{
		Name:            &def.Name,
		Description:     &def.Description,
		Category:        &def.Category,
		IntegrationType: &def.IntegrationType,
		Version:         &def.Version,
		InputSchema:     def.InputSchema,
		OutputSchema:    def.OutputSchema,
		ConfigSchema:    def.ConfigSchema,
		UIConfig:        def.UIConfig,
		Tags:            def.Tags,
		Deprecated:      &def.Deprecated,
	}
}
