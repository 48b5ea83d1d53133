package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/persistence/memory"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/queue"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnections struct {
	mu     sync.Mutex
	conns  map[string]*models.ConnectionDefinition
	marked []string
}

func (f *fakeConnections) Get(_ context.Context, id string) (*models.ConnectionDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conn, ok := f.conns[id]
	if !ok {
		return nil, persistence.ErrConnectionNotFound
	}

	return conn.Public(), nil
}

func (f *fakeConnections) MarkError(_ context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conns[id].Status = models.ConnectionStatusError
	f.conns[id].LastError = reason
	f.marked = append(f.marked, id)

	return nil
}

type fixture struct {
	engine      *Engine
	store       *memory.Persistence
	registry    *registry.Registry
	connections *fakeConnections
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	logger := slog.Default()
	store := memory.NewPersistence()
	reg := registry.NewRegistry(logger, store.NodeDefinitionRepository())
	conns := &fakeConnections{conns: map[string]*models.ConnectionDefinition{}}

	options := apiclient.DefaultOptions()
	options.InitialBackoff = time.Millisecond
	options.MaxBackoff = 5 * time.Millisecond
	options.Timeout = 2 * time.Second

	client := apiclient.NewClient(logger, nil, queue.New(logger, 2), nil, apiclient.WithOptions(options))

	return &fixture{
		engine:      New(logger, reg, store.ScenarioRepository(), conns, client, store.LogRepository(), opts...),
		store:       store,
		registry:    reg,
		connections: conns,
	}
}

func (f *fixture) register(t *testing.T, id string, executor protocol.ExecutorFunc) {
	t.Helper()

	_, err := f.registry.Register(context.Background(), protocol.Node{
		Definition: models.IntegrationNodeDefinition{
			Identifier:      id,
			Name:            id,
			Category:        models.CategoryTypeAction,
			IntegrationType: "test",
			Version:         "1.0.0",
			InputSchema:     json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}}}`),
		},
		Executor: executor,
	})
	require.NoError(t, err)
}

func (f *fixture) save(t *testing.T, s *models.Scenario) *models.Scenario {
	t.Helper()

	if s.Status == "" {
		s.Status = models.ScenarioStatusActive
	}

	require.NoError(t, f.store.ScenarioRepository().InsertScenario(context.Background(), s))

	return s
}

func (f *fixture) logs(t *testing.T, runID string) []*models.AutomationLogEntry {
	t.Helper()

	entries, err := f.store.LogRepository().ListLogsByRun(context.Background(), runID)
	require.NoError(t, err)

	return entries
}

func actions(entries []*models.AutomationLogEntry) []models.LogAction {
	result := make([]models.LogAction, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.Action)
	}

	return result
}

func linear(id string, nodes ...*models.ScenarioNode) *models.Scenario {
	s := &models.Scenario{
		ID:            id,
		Name:          "scenario " + id,
		IntegrationID: "wordpress",
		TriggerType:   "wordpress.post_published",
		Nodes:         nodes,
	}

	for i := 1; i < len(nodes); i++ {
		s.Edges = append(s.Edges, &models.ScenarioEdge{Source: nodes[i-1].ID, Target: nodes[i].ID})
	}

	return s
}

func echo(_ context.Context, _ *protocol.ExecutionContext, input map[string]any) protocol.Result {
	return protocol.Success(input)
}

func TestProcessTrigger_WordPressPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.echo", echo)

	f.save(t, linear("s1",
		&models.ScenarioNode{ID: "first", NodeType: "test.echo", InputMapping: map[string]string{"title": "post {{trigger.id}}"}},
		&models.ScenarioNode{ID: "second", NodeType: "test.echo", InputMapping: map[string]string{"title": "{{first.title}}!"}},
	))

	results, err := f.engine.ProcessTrigger(context.Background(), "wordpress", "wordpress.post_published",
		map[string]any{"action": "publish_post", "id": 42})
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, models.RunStatusSuccess, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "post 42!", result.Steps[1].Output["title"])

	entries := f.logs(t, result.RunID)
	assert.Equal(t, []models.LogAction{
		models.LogActionScenarioStart,
		models.LogActionNodeExecute,
		models.LogActionNodeExecute,
		models.LogActionScenarioComplete,
	}, actions(entries))

	for _, e := range entries {
		assert.Equal(t, result.RunID, e.RunID)
		assert.Equal(t, "s1", e.ScenarioID)
	}

	assert.Equal(t, models.LogStatusRunning, entries[0].Status)
	assert.Empty(t, entries[0].NodeID)
	assert.Equal(t, "first", entries[1].NodeID)
	assert.Equal(t, map[string]any{"title": "post 42"}, entries[1].InputData)
	assert.NotNil(t, entries[1].EndTime)
	assert.Equal(t, models.LogStatusSuccess, entries[3].Status)
}

func TestProcessTrigger_OnlyActiveScenarios(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.echo", echo)

	f.save(t, linear("active", &models.ScenarioNode{ID: "a", NodeType: "test.echo"}))

	paused := linear("paused", &models.ScenarioNode{ID: "a", NodeType: "test.echo"})
	paused.Status = models.ScenarioStatusPaused
	f.save(t, paused)

	other := linear("other", &models.ScenarioNode{ID: "a", NodeType: "test.echo"})
	other.TriggerType = "wordpress.post_deleted"
	f.save(t, other)

	results, err := f.engine.ProcessTrigger(context.Background(), "wordpress", "wordpress.post_published", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "active", results[0].ScenarioID)

	results, err = f.engine.ProcessTrigger(context.Background(), "vimeo", "vimeo.upload", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRun_FailFast(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var thirdRan atomic.Bool

	f.register(t, "test.echo", echo)
	f.register(t, "test.reject", func(context.Context, *protocol.ExecutionContext, map[string]any) protocol.Result {
		return protocol.Failure(&apiclient.ExternalAPIError{StatusCode: http.StatusBadRequest, Body: `{"message":"bad title"}`})
	})
	f.register(t, "test.third", func(_ context.Context, _ *protocol.ExecutionContext, input map[string]any) protocol.Result {
		thirdRan.Store(true)

		return protocol.Success(input)
	})

	s := f.save(t, linear("s1",
		&models.ScenarioNode{ID: "one", NodeType: "test.echo"},
		&models.ScenarioNode{ID: "two", NodeType: "test.reject"},
		&models.ScenarioNode{ID: "three", NodeType: "test.third"},
	))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.NoError(t, err)

	assert.False(t, thirdRan.Load())
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.Contains(t, result.Error, "node two")
	require.Len(t, result.Steps, 2)

	entries := f.logs(t, result.RunID)
	assert.Equal(t, []models.LogAction{
		models.LogActionScenarioStart,
		models.LogActionNodeExecute,
		models.LogActionNodeExecute,
		models.LogActionScenarioError,
	}, actions(entries))
	assert.Equal(t, models.LogStatusError, entries[2].Status)
	assert.Contains(t, entries[2].Error, "400")
}

func TestRun_SkipPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.echo", echo)

	s := f.save(t, linear("s1",
		&models.ScenarioNode{ID: "deleted_only", NodeType: "test.echo", TriggerTypes: []string{"wordpress.post_deleted"}},
		&models.ScenarioNode{
			ID: "optional_bad", NodeType: "test.echo", Optional: true,
			InputMapping: map[string]string{"title": "{{trigger.count}}"},
		},
		&models.ScenarioNode{ID: "last", NodeType: "test.echo", InputMapping: map[string]string{"title": "{{optional_bad.title}}"}},
	))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{
		ID: "t1", TriggerType: "wordpress.post_published", Data: map[string]any{"count": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, result.Status)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, models.LogStatusSkipped, result.Steps[0].Status)
	assert.Equal(t, models.LogStatusSkipped, result.Steps[1].Status)
	assert.Contains(t, result.Steps[1].Error, "input")
	assert.Equal(t, models.LogStatusSuccess, result.Steps[2].Status)
	require.Len(t, result.Steps[2].Warnings, 1)
	assert.Contains(t, result.Steps[2].Warnings[0], "optional_bad.title")
}

func TestRun_InvalidInputOnRequiredNodeFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.echo", echo)

	s := f.save(t, linear("s1",
		&models.ScenarioNode{ID: "bad", NodeType: "test.echo", InputMapping: map[string]string{"title": "{{trigger.count}}"}},
	))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{
		ID: "t1", TriggerType: s.TriggerType, Data: map[string]any{"count": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.Equal(t, models.LogStatusError, result.Steps[0].Status)
}

func TestRun_Cancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var secondRan atomic.Bool

	f.register(t, "test.cancel", func(_ context.Context, ectx *protocol.ExecutionContext, _ map[string]any) protocol.Result {
		assert.True(t, f.engine.Cancel(ectx.RunID))

		return protocol.Success(map[string]any{"done": true})
	})
	f.register(t, "test.second", func(context.Context, *protocol.ExecutionContext, map[string]any) protocol.Result {
		secondRan.Store(true)

		return protocol.Success(nil)
	})

	s := f.save(t, linear("s1",
		&models.ScenarioNode{ID: "one", NodeType: "test.cancel"},
		&models.ScenarioNode{ID: "two", NodeType: "test.second"},
	))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.NoError(t, err)

	assert.False(t, secondRan.Load())
	assert.Equal(t, models.RunStatusCancelled, result.Status)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, models.LogStatusSuccess, result.Steps[0].Status)

	entries := f.logs(t, result.RunID)
	last := entries[len(entries)-1]
	assert.Equal(t, models.LogActionScenarioCancelled, last.Action)
	assert.Equal(t, models.LogStatusSuccess, entries[1].Status)

	assert.False(t, f.engine.Cancel(result.RunID))
	assert.Empty(t, f.engine.Active())
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	f := newFixture(t, WithClock(clock), WithRunTimeout(time.Minute))

	f.register(t, "test.slow", func(context.Context, *protocol.ExecutionContext, map[string]any) protocol.Result {
		clock.Advance(2 * time.Minute)

		return protocol.Success(nil)
	})

	s := f.save(t, linear("s1",
		&models.ScenarioNode{ID: "one", NodeType: "test.slow"},
		&models.ScenarioNode{ID: "two", NodeType: "test.slow"},
	))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Equal(t, ErrRunTimeout.Error(), result.Error)
	assert.Len(t, result.Steps, 1)
	assert.Equal(t, 2*time.Minute, result.Duration)
}

func TestRun_PanicIsRecorded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.panic", func(context.Context, *protocol.ExecutionContext, map[string]any) protocol.Result {
		panic("kaboom")
	})

	s := f.save(t, linear("s1", &models.ScenarioNode{ID: "one", NodeType: "test.panic"}))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.Contains(t, result.Steps[0].Error, "kaboom")
}

func TestRun_CycleIsAnError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.echo", echo)

	s := linear("s1",
		&models.ScenarioNode{ID: "a", NodeType: "test.echo"},
		&models.ScenarioNode{ID: "b", NodeType: "test.echo"},
	)
	s.Edges = append(s.Edges, &models.ScenarioEdge{Source: "b", Target: "a"})

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.Empty(t, result.Steps)
	assert.Equal(t, []models.LogAction{models.LogActionScenarioStart, models.LogActionScenarioError}, actions(f.logs(t, result.RunID)))
}

func callNode(server *httptest.Server) protocol.ExecutorFunc {
	return func(ctx context.Context, ectx *protocol.ExecutionContext, _ map[string]any) protocol.Result {
		req, err := auth.NewRequest(http.MethodPost, server.URL+"/posts", []byte(`{"title":"hi"}`))
		if err != nil {
			return protocol.Failure(err)
		}

		resp, err := ectx.Client.Call(ctx, req)
		if err != nil {
			return protocol.Failure(err)
		}

		return protocol.Success(map[string]any{"status": resp.StatusCode})
	}
}

func TestRun_RecordsHTTPAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer server.Close()

	f := newFixture(t)
	f.register(t, "test.call", callNode(server))

	s := f.save(t, linear("s1", &models.ScenarioNode{ID: "post", NodeType: "test.call"}))

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSuccess, result.Status)

	entries := f.logs(t, result.RunID)
	assert.Equal(t, []models.LogAction{
		models.LogActionScenarioStart,
		models.LogActionHTTPAttempt,
		models.LogActionHTTPAttempt,
		models.LogActionNodeExecute,
		models.LogActionScenarioComplete,
	}, actions(entries))

	assert.Equal(t, 1, entries[1].Attempt)
	assert.Equal(t, models.LogStatusError, entries[1].Status)
	assert.Equal(t, http.StatusServiceUnavailable, entries[1].Response.StatusCode)
	assert.Equal(t, 2, entries[2].Attempt)
	assert.Equal(t, models.LogStatusSuccess, entries[2].Status)
	assert.Equal(t, `{"title":"hi"}`, entries[2].Request.Body)

	node := entries[3]
	require.NotNil(t, node.Response)
	assert.Equal(t, http.StatusCreated, node.Response.StatusCode)
	assert.Equal(t, `{"id":1}`, node.Response.Body)
}

func TestRun_UnauthorizedFlagsConnection(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newFixture(t)
	f.register(t, "test.call", callNode(server))
	f.connections.conns["conn-1"] = &models.ConnectionDefinition{ID: "conn-1", Status: models.ConnectionStatusConnected}

	s := f.save(t, linear("s1", &models.ScenarioNode{ID: "post", NodeType: "test.call", ConnectionID: "conn-1"}))
	trigger := &models.Trigger{ID: "t1", TriggerType: s.TriggerType}

	first, err := f.engine.Run(context.Background(), s, trigger)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, first.Status)
	assert.Equal(t, []string{"conn-1"}, f.connections.marked)
	assert.Equal(t, int32(1), hits.Load())

	second, err := f.engine.Run(context.Background(), s, trigger)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, second.Status)
	assert.Contains(t, second.Steps[0].Error, apiclient.ErrConnectionUnavailable.Error())
	assert.Equal(t, int32(1), hits.Load())
}

type failingSink struct{}

func (failingSink) InsertLogEntry(context.Context, *models.AutomationLogEntry) error {
	return errors.New("disk full")
}

func TestRun_SinkFailureStopsBeforeNodes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var ran atomic.Bool

	f.register(t, "test.mark", func(context.Context, *protocol.ExecutionContext, map[string]any) protocol.Result {
		ran.Store(true)

		return protocol.Success(nil)
	})

	f.engine.sink = failingSink{}

	s := linear("s1", &models.ScenarioNode{ID: "one", NodeType: "test.mark"})

	result, err := f.engine.Run(context.Background(), s, &models.Trigger{ID: "t1", TriggerType: s.TriggerType})
	require.Error(t, err)
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.False(t, ran.Load())
}

func TestRunScenario_RequiresActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.register(t, "test.echo", echo)

	draft := linear("draft", &models.ScenarioNode{ID: "a", NodeType: "test.echo"})
	draft.Status = models.ScenarioStatusDraft
	f.save(t, draft)

	_, err := f.engine.RunScenario(context.Background(), "draft", nil)
	require.ErrorIs(t, err, ErrScenarioNotActive)

	active := f.save(t, linear("active", &models.ScenarioNode{ID: "a", NodeType: "test.echo"}))

	result, err := f.engine.RunScenario(context.Background(), active.ID, map[string]any{"manual": true})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, result.Status)
}
