package services

import (
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishRequest() CreateScenarioRequest {
	return CreateScenarioRequest{
		OwnerID:       "owner-1",
		Name:          "Announce new posts",
		IntegrationID: "wordpress",
		TriggerType:   "wordpress.post_published",
		Nodes: []*models.ScenarioNode{
			{ID: "post", NodeType: "wordpress.create_post", Config: map[string]any{"status": "publish"}},
			{ID: "notify", NodeType: "discord.send_message", InputMapping: map[string]string{"content": "{{post.link}}"}},
		},
		Edges: []*models.ScenarioEdge{{Source: "post", Target: "notify"}},
	}
}

func TestScenarios_Create(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	sc, err := env.scenarios.Create(t.Context(), publishRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, sc.ID)
	assert.Equal(t, models.ScenarioStatusDraft, sc.Status)
	assert.NotEmpty(t, sc.Edges[0].ID)
	assert.False(t, sc.CreatedAt.IsZero())

	stored, err := env.scenarios.Get(t.Context(), sc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 2)

	list, err := env.scenarios.List(t.Context(), "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestScenarios_CreateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CreateScenarioRequest)
		want   error
	}{
		{"missing name", func(r *CreateScenarioRequest) { r.Name = "" }, ErrScenarioNameRequired},
		{"missing trigger", func(r *CreateScenarioRequest) { r.TriggerType = "" }, ErrInvalidRequest},
		{"unknown node type", func(r *CreateScenarioRequest) { r.Nodes[1].NodeType = "myspace.poke" }, ErrUnknownNodeType},
		{"cycle", func(r *CreateScenarioRequest) {
			r.Edges = append(r.Edges, &models.ScenarioEdge{Source: "notify", Target: "post"})
		}, ErrInvalidScenarioGraph},
		{"dangling edge", func(r *CreateScenarioRequest) {
			r.Edges = append(r.Edges, &models.ScenarioEdge{Source: "post", Target: "ghost"})
		}, ErrInvalidScenarioGraph},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			req := publishRequest()
			tt.mutate(&req)

			_, err := env.scenarios.Create(t.Context(), req)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestScenarios_ConnectRejectsCycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	sc, err := env.scenarios.Create(t.Context(), publishRequest())
	require.NoError(t, err)

	_, err = env.scenarios.Connect(t.Context(), sc.ID, "notify", "post")
	require.ErrorIs(t, err, ErrInvalidScenarioGraph)

	stored, err := env.scenarios.Get(t.Context(), sc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Edges, 1)
}

func TestScenarios_AddAndRemoveNode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	sc, err := env.scenarios.Create(t.Context(), publishRequest())
	require.NoError(t, err)

	sc, err = env.scenarios.AddNode(t.Context(), sc.ID, &models.ScenarioNode{ID: "echo", NodeType: "discord.send_message"})
	require.NoError(t, err)

	sc, err = env.scenarios.Connect(t.Context(), sc.ID, "notify", "echo")
	require.NoError(t, err)
	assert.Len(t, sc.Edges, 2)

	sc, err = env.scenarios.RemoveNode(t.Context(), sc.ID, "notify")
	require.NoError(t, err)
	assert.Len(t, sc.Nodes, 2)
	assert.Empty(t, sc.Edges)

	_, err = env.scenarios.RemoveNode(t.Context(), sc.ID, "ghost")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestScenarios_Lifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	sc, err := env.scenarios.Create(t.Context(), publishRequest())
	require.NoError(t, err)

	_, err = env.scenarios.Pause(t.Context(), sc.ID)
	require.ErrorIs(t, err, ErrInvalidStatusChange)

	active, err := env.scenarios.Activate(t.Context(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioStatusActive, active.Status)

	_, err = env.scenarios.AddNode(t.Context(), sc.ID, &models.ScenarioNode{ID: "late", NodeType: "discord.send_message"})
	require.ErrorIs(t, err, ErrCannotModifyActive)
	assert.True(t, IsConflictError(err))

	subscribed, err := env.store.ScenarioRepository().ListScenariosByTrigger(t.Context(), "wordpress", "wordpress.post_published", models.ScenarioStatusActive)
	require.NoError(t, err)
	assert.Len(t, subscribed, 1)

	paused, err := env.scenarios.Pause(t.Context(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioStatusPaused, paused.Status)

	require.NoError(t, env.scenarios.Delete(t.Context(), sc.ID))

	_, err = env.scenarios.Get(t.Context(), sc.ID)
	require.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestScenarios_ActivateChecks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	bad := publishRequest()
	bad.Nodes[0].Config = map[string]any{"status": "scheduled"}

	sc, err := env.scenarios.Create(t.Context(), bad)
	require.NoError(t, err)

	_, err = env.scenarios.Activate(t.Context(), sc.ID)
	require.ErrorIs(t, err, ErrInvalidNodeConfig)

	conn := createWordPress(t, env, nil)
	require.NoError(t, env.connections.MarkError(t.Context(), conn.ID, "token revoked"))

	withConn := publishRequest()
	withConn.Nodes[0].ConnectionID = conn.ID

	sc, err = env.scenarios.Create(t.Context(), withConn)
	require.NoError(t, err)

	_, err = env.scenarios.Activate(t.Context(), sc.ID)
	require.ErrorIs(t, err, ErrConnectionNotHealthy)

	empty := publishRequest()
	empty.Nodes, empty.Edges = nil, nil

	sc, err = env.scenarios.Create(t.Context(), empty)
	require.NoError(t, err)

	_, err = env.scenarios.Activate(t.Context(), sc.ID)
	require.ErrorIs(t, err, ErrNodesRequired)
}

func TestScenarios_Logs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	sc, err := env.scenarios.Create(t.Context(), publishRequest())
	require.NoError(t, err)

	require.NoError(t, env.store.LogRepository().InsertLogEntry(t.Context(), &models.AutomationLogEntry{
		ID: "l1", RunID: "r1", ScenarioID: sc.ID, Action: models.LogActionScenarioStart, Status: models.LogStatusRunning,
	}))

	logs, err := env.scenarios.Logs(t.Context(), sc.ID, persistence.LogQuery{})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = env.scenarios.Logs(t.Context(), "missing", persistence.LogQuery{})
	require.ErrorIs(t, err, ErrScenarioNotFound)
}
