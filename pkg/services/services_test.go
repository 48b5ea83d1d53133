package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence/memory"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	store       *memory.Persistence
	registry    *registry.Registry
	connections *Connections
	scenarios   *Scenarios
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()
	store := memory.NewPersistence()
	reg := registry.NewRegistry(logger, store.NodeDefinitionRepository())

	for _, id := range []string{"wordpress.create_post", "discord.send_message"} {
		integration, _, _ := strings.Cut(id, ".")

		_, err := reg.Register(t.Context(), protocol.Node{
			Definition: models.IntegrationNodeDefinition{
				Identifier:      id,
				Name:            id,
				Category:        models.CategoryTypeAction,
				IntegrationType: integration,
				Version:         "1.0.0",
				ConfigSchema:    json.RawMessage(`{"type":"object","properties":{"status":{"type":"string","enum":["draft","publish"]}}}`),
			},
			Executor: protocol.ExecutorFunc(func(context.Context, *protocol.ExecutionContext, map[string]any) protocol.Result {
				return protocol.Success(nil)
			}),
		})
		require.NoError(t, err)
	}

	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	return &testEnv{
		store:       store,
		registry:    reg,
		connections: NewConnections(logger, store, sealer, nil),
		scenarios:   NewScenarios(logger, store, reg),
	}
}

func testLogger() *slog.Logger {
	return slog.Default()
}
