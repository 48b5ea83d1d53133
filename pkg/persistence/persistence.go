// Package persistence provides the storage abstraction for node definitions,
// connections, scenarios, tokens and the execution log.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukex/conduit/pkg/models"
)

type Persistence interface {
	NodeDefinitionRepository() NodeDefinitionRepository
	ConnectionRepository() ConnectionRepository
	ScenarioRepository() ScenarioRepository
	LogRepository() LogRepository
	TokenRepository() TokenRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// NodeDefinitionFilter narrows ListDefinitions results.
type NodeDefinitionFilter struct {
	Category          models.CategoryType
	IntegrationType   string
	IncludeDeprecated bool
}

// NodeDefinitionPatch updates the non-nil fields of a stored definition.
type NodeDefinitionPatch struct {
	Name            *string
	Description     *string
	Category        *models.CategoryType
	IntegrationType *string
	Version         *string
	InputSchema     json.RawMessage
	OutputSchema    json.RawMessage
	ConfigSchema    json.RawMessage
	UIConfig        map[string]any
	Tags            []string
	Deprecated      *bool
}

type NodeDefinitionRepository interface {
	GetDefinition(ctx context.Context, identifier string) (*models.IntegrationNodeDefinition, error)
	InsertDefinition(ctx context.Context, definition *models.IntegrationNodeDefinition) error
	PatchDefinition(ctx context.Context, identifier string, patch NodeDefinitionPatch) error
	ListDefinitions(ctx context.Context, filter NodeDefinitionFilter) ([]*models.IntegrationNodeDefinition, error)
}

// ConnectionPatch updates the non-nil fields of a stored connection.
type ConnectionPatch struct {
	Name      *string
	Status    *models.ConnectionStatus
	Config    map[string]any
	Metadata  map[string]any
	Secrets   []byte
	LastError *string
}

type ConnectionRepository interface {
	GetConnection(ctx context.Context, id string) (*models.ConnectionDefinition, error)
	InsertConnection(ctx context.Context, connection *models.ConnectionDefinition) error
	PatchConnection(ctx context.Context, id string, patch ConnectionPatch) error
	DeleteConnection(ctx context.Context, id string) error
	ListConnectionsByOwner(ctx context.Context, ownerID string) ([]*models.ConnectionDefinition, error)
}

type ScenarioRepository interface {
	GetScenario(ctx context.Context, id string) (*models.Scenario, error)
	InsertScenario(ctx context.Context, scenario *models.Scenario) error
	// UpdateScenario replaces the scenario row together with its nodes and edges.
	UpdateScenario(ctx context.Context, scenario *models.Scenario) error
	PatchScenarioStatus(ctx context.Context, id string, status models.ScenarioStatus) error
	// DeleteScenario removes the scenario, its nodes and its edges.
	DeleteScenario(ctx context.Context, id string) error
	ListScenariosByOwner(ctx context.Context, ownerID string) ([]*models.Scenario, error)
	ListScenariosByTrigger(ctx context.Context, integrationID, triggerType string, status models.ScenarioStatus) ([]*models.Scenario, error)
}

// LogQuery filters execution log listings. Zero values match everything.
type LogQuery struct {
	Status models.LogStatus
	Action models.LogAction
	Since  time.Time
	Until  time.Time
	Limit  int
}

type LogRepository interface {
	// InsertLogEntry appends an entry. Entries are immutable once written.
	InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error
	ListLogsByRun(ctx context.Context, runID string) ([]*models.AutomationLogEntry, error)
	ListLogsByScenario(ctx context.Context, scenarioID string, query LogQuery) ([]*models.AutomationLogEntry, error)
}

type TokenRepository interface {
	GetToken(ctx context.Context, connectionID string) (*models.OAuth2Token, error)
	SaveToken(ctx context.Context, token *models.OAuth2Token) error
	DeleteToken(ctx context.Context, connectionID string) error
}

// Matches reports whether the entry satisfies the query.
func (q LogQuery) Matches(entry *models.AutomationLogEntry) bool {
	if q.Status != "" && entry.Status != q.Status {
		return false
	}

	if q.Action != "" && entry.Action != q.Action {
		return false
	}

	if !q.Since.IsZero() && entry.StartTime.Before(q.Since) {
		return false
	}

	if !q.Until.IsZero() && entry.StartTime.After(q.Until) {
		return false
	}

	return true
}
