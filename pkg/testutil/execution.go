package testutil

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/queue"
)

type clientCaller struct {
	client *apiclient.Client
	conn   *models.ConnectionDefinition
}

func (c clientCaller) Call(ctx context.Context, req *auth.Request) (*apiclient.Response, error) {
	return c.client.Call(ctx, c.conn, req)
}

// NewClient returns an API client without rate limits, tuned for fast
// retries against httptest servers.
func NewClient(tb testing.TB) *apiclient.Client {
	tb.Helper()

	logger := slog.Default()

	options := apiclient.DefaultOptions()
	options.MaxAttempts = 2
	options.InitialBackoff = time.Millisecond
	options.MaxBackoff = 5 * time.Millisecond
	options.Timeout = 2 * time.Second

	return apiclient.NewClient(logger, nil, queue.New(logger, 2), nil, apiclient.WithOptions(options))
}

// ExecutionContext builds a context for calling an executor directly, with
// its client bound to conn. conn may be nil.
func ExecutionContext(tb testing.TB, conn *models.ConnectionDefinition, config map[string]any) *protocol.ExecutionContext {
	tb.Helper()

	return &protocol.ExecutionContext{
		RunID:      "run-test",
		ScenarioID: "scenario-test",
		NodeID:     "node-test",
		Trigger: &models.Trigger{
			ID:            "trigger-test",
			IntegrationID: "wordpress",
			TriggerType:   "wordpress.post_published",
			Data:          map[string]any{},
		},
		Config:     config,
		Connection: conn,
		Client:     clientCaller{client: NewClient(tb), conn: conn},
		Logger:     slog.Default(),
	}
}

// Connection returns a healthy connection whose base_url points at baseURL.
func Connection(nodeType, baseURL string) *models.ConnectionDefinition {
	return &models.ConnectionDefinition{
		ID:       "conn-test",
		NodeType: nodeType,
		Name:     "Test connection",
		Status:   models.ConnectionStatusConnected,
		Config:   map[string]any{"base_url": baseURL},
	}
}
