package memory

import (
	"cmp"
	"slices"

	"github.com/dukex/conduit/pkg/models"
)

// Snapshot is a point-in-time copy of every collection. Slices are sorted by
// key so encoding a snapshot is stable.
type Snapshot struct {
	Definitions []*models.IntegrationNodeDefinition
	Connections []*models.ConnectionDefinition
	Scenarios   []*models.Scenario
	Logs        []*models.AutomationLogEntry
	Tokens      []*models.OAuth2Token
}

// Snapshot copies the current state.
func (p *Persistence) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Definitions: make([]*models.IntegrationNodeDefinition, 0, len(p.definitions)),
		Connections: make([]*models.ConnectionDefinition, 0, len(p.connections)),
		Scenarios:   make([]*models.Scenario, 0, len(p.scenarios)),
		Logs:        make([]*models.AutomationLogEntry, 0, len(p.logs)),
		Tokens:      make([]*models.OAuth2Token, 0, len(p.tokens)),
	}

	for _, d := range p.definitions {
		s.Definitions = append(s.Definitions, d.Clone())
	}

	for _, c := range p.connections {
		s.Connections = append(s.Connections, c.Clone())
	}

	for _, sc := range p.scenarios {
		s.Scenarios = append(s.Scenarios, sc.Clone())
	}

	for _, e := range p.logs {
		s.Logs = append(s.Logs, e.Clone())
	}

	for _, t := range p.tokens {
		cp := *t
		s.Tokens = append(s.Tokens, &cp)
	}

	slices.SortFunc(s.Definitions, func(a, b *models.IntegrationNodeDefinition) int {
		return cmp.Compare(a.Identifier, b.Identifier)
	})
	slices.SortFunc(s.Connections, func(a, b *models.ConnectionDefinition) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Scenarios, func(a, b *models.Scenario) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Tokens, func(a, b *models.OAuth2Token) int { return cmp.Compare(a.ConnectionID, b.ConnectionID) })

	return s
}

// Restore replaces the current state with the snapshot. Log entries keep
// their snapshot order.
func (p *Persistence) Restore(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.definitions = make(map[string]*models.IntegrationNodeDefinition, len(s.Definitions))
	for _, d := range s.Definitions {
		p.definitions[d.Identifier] = d.Clone()
	}

	p.connections = make(map[string]*models.ConnectionDefinition, len(s.Connections))
	for _, c := range s.Connections {
		p.connections[c.ID] = c.Clone()
	}

	p.scenarios = make(map[string]*models.Scenario, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		p.scenarios[sc.ID] = sc.Clone()
	}

	p.logs = make([]*models.AutomationLogEntry, 0, len(s.Logs))
	p.logIDs = make(map[string]struct{}, len(s.Logs))

	for _, e := range s.Logs {
		p.logs = append(p.logs, e.Clone())
		p.logIDs[e.ID] = struct{}{}
	}

	p.tokens = make(map[string]*models.OAuth2Token, len(s.Tokens))
	for _, t := range s.Tokens {
		cp := *t
		p.tokens[t.ConnectionID] = &cp
	}
}
