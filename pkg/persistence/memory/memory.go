// Package memory provides an in-process persistence implementation used for
// development, tests and single-node deployments.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// Persistence keeps every collection in maps guarded by a single lock.
// Records are cloned on the way in and out so callers never share state.
type Persistence struct {
	mu          sync.RWMutex
	definitions map[string]*models.IntegrationNodeDefinition
	connections map[string]*models.ConnectionDefinition
	scenarios   map[string]*models.Scenario
	logs        []*models.AutomationLogEntry
	logIDs      map[string]struct{}
	tokens      map[string]*models.OAuth2Token
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		definitions: make(map[string]*models.IntegrationNodeDefinition),
		connections: make(map[string]*models.ConnectionDefinition),
		scenarios:   make(map[string]*models.Scenario),
		logIDs:      make(map[string]struct{}),
		tokens:      make(map[string]*models.OAuth2Token),
	}
}

func (p *Persistence) NodeDefinitionRepository() persistence.NodeDefinitionRepository {
	return &definitionRepository{p}
}

func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return &connectionRepository{p}
}

func (p *Persistence) ScenarioRepository() persistence.ScenarioRepository {
	return &scenarioRepository{p}
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return &logRepository{p}
}

func (p *Persistence) TokenRepository() persistence.TokenRepository {
	return &tokenRepository{p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
