package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/persistence/memory"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var echo = protocol.ExecutorFunc(func(_ context.Context, _ *protocol.ExecutionContext, input map[string]any) protocol.Result {
	return protocol.Success(input)
})

func testNode(id, version string) protocol.Node {
	return protocol.Node{
		Definition: models.IntegrationNodeDefinition{
			Identifier:      id,
			Name:            "Test " + id,
			Category:        models.CategoryTypeAction,
			IntegrationType: "test",
			Version:         version,
			InputSchema:     json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}},"required":["title"]}`),
			ConfigSchema:    json.RawMessage(`{"type":"object","properties":{"channel":{"type":"string"}}}`),
		},
		Executor: echo,
	}
}

func newTestRegistry(t *testing.T) (*Registry, persistence.NodeDefinitionRepository) {
	t.Helper()

	repo := memory.NewPersistence().NodeDefinitionRepository()

	return NewRegistry(slog.Default(), repo), repo
}

func TestRegister_Upsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	outcome, err := reg.Register(ctx, testNode("test.create", "1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = reg.Register(ctx, testNode("test.create", "1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	outcome, err = reg.Register(ctx, testNode("test.create", "1.1.0"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	defs, err := repo.ListDefinitions(ctx, persistence.NodeDefinitionFilter{})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "1.1.0", defs[0].Version)
}

func TestRegister_SameVersionKeepsStoredDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	_, err := reg.Register(ctx, testNode("test.create", "1.0.0"))
	require.NoError(t, err)

	renamed := testNode("test.create", "1.0.0")
	renamed.Definition.Name = "Renamed"

	outcome, err := reg.Register(ctx, renamed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	stored, err := repo.GetDefinition(ctx, "test.create")
	require.NoError(t, err)
	assert.Equal(t, "Test test.create", stored.Name)
}

func TestRegister_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*protocol.Node)
	}{
		{"malformed input schema", func(n *protocol.Node) { n.Definition.InputSchema = json.RawMessage(`{"type":`) }},
		{"unknown schema type", func(n *protocol.Node) { n.Definition.ConfigSchema = json.RawMessage(`{"type":"thing"}`) }},
		{"missing version", func(n *protocol.Node) { n.Definition.Version = "" }},
		{"bad category", func(n *protocol.Node) { n.Definition.Category = "widget" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg, repo := newTestRegistry(t)
			node := testNode("test.bad", "1.0.0")
			tt.mutate(&node)

			_, err := reg.Register(context.Background(), node)

			var schemaErr *SchemaValidationError
			require.ErrorAs(t, err, &schemaErr)

			_, err = repo.GetDefinition(context.Background(), "test.bad")
			assert.ErrorIs(t, err, persistence.ErrNodeDefinitionNotFound)
		})
	}
}

func TestRegister_RequiresExecutor(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	node := testNode("test.none", "1.0.0")
	node.Executor = nil

	_, err := reg.Register(context.Background(), node)
	assert.ErrorIs(t, err, ErrNodeNotRegistered)
}

func TestDiscoverAndRegisterNodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(ctx, testNode("test.existing", "1.0.0"))
	require.NoError(t, err)

	bad := testNode("test.bad", "1.0.0")
	bad.Definition.InputSchema = json.RawMessage(`[]`)

	loader := NewStaticLoader(
		StaticModule{ModuleName: "good", Build: func(context.Context) ([]protocol.Node, error) {
			return []protocol.Node{
				testNode("test.one", "1.0.0"),
				testNode("test.existing", "2.0.0"),
				bad,
			}, nil
		}},
		StaticModule{ModuleName: "broken", Build: func(context.Context) ([]protocol.Node, error) {
			return nil, errors.New("boom")
		}},
		StaticModule{ModuleName: "panicky", Build: func(context.Context) ([]protocol.Node, error) {
			panic("unexpected")
		}},
		StaticModule{ModuleName: "late", Build: func(context.Context) ([]protocol.Node, error) {
			return []protocol.Node{testNode("test.two", "1.0.0"), testNode("test.one", "1.0.0")}, nil
		}},
	)

	result, err := reg.DiscoverAndRegisterNodes(ctx, loader)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Unchanged)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "good", result.Errors[0].Module)
	assert.Equal(t, "test.bad", result.Errors[0].Identifier)
	assert.Equal(t, "broken", result.Errors[1].Module)
	assert.Equal(t, "panicky", result.Errors[2].Module)

	assert.Equal(t, []string{"test.existing", "test.one", "test.two"}, reg.Registered())
}

func TestDiscoverAndRegisterNodes_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	loader := NewStaticLoader(StaticModule{ModuleName: "m", Build: func(context.Context) ([]protocol.Node, error) {
		return []protocol.Node{testNode("test.one", "1.0.0")}, nil
	}})

	first, err := reg.DiscoverAndRegisterNodes(ctx, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := reg.DiscoverAndRegisterNodes(ctx, loader)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Unchanged)

	defs, err := repo.ListDefinitions(ctx, persistence.NodeDefinitionFilter{})
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestValidateNodeConfigAndInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(ctx, testNode("test.create", "1.0.0"))
	require.NoError(t, err)

	require.NoError(t, reg.ValidateInput(ctx, "test.create", map[string]any{"title": "hello"}))
	require.NoError(t, reg.ValidateNodeConfig(ctx, "test.create", map[string]any{"channel": "general"}))

	var schemaErr *SchemaValidationError

	err = reg.ValidateInput(ctx, "test.create", map[string]any{})
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Subject, "input")

	err = reg.ValidateNodeConfig(ctx, "test.create", map[string]any{"channel": 5})
	require.ErrorAs(t, err, &schemaErr)

	err = reg.ValidateInput(ctx, "test.missing", nil)
	assert.ErrorIs(t, err, persistence.ErrNodeDefinitionNotFound)
}

func TestValidate_FallsBackToStoredDefinition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	node := testNode("test.stored", "1.0.0")
	require.NoError(t, repo.InsertDefinition(ctx, &node.Definition))

	err := reg.ValidateInput(ctx, "test.stored", map[string]any{"title": 1})
	assert.Error(t, err)

	_, err = reg.Executor("test.stored")
	assert.ErrorIs(t, err, ErrNodeNotRegistered)
}

func TestDeprecate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(ctx, testNode("test.old", "1.0.0"))
	require.NoError(t, err)
	require.NoError(t, reg.Deprecate(ctx, "test.old"))

	active, err := reg.Definitions(ctx, persistence.NodeDefinitionFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := reg.Definitions(ctx, persistence.NodeDefinitionFilter{IncludeDeprecated: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Deprecated)

	executor, err := reg.Executor("test.old")
	require.NoError(t, err)
	assert.NotNil(t, executor)
}
