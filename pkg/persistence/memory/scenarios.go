package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

type scenarioRepository struct {
	p *Persistence
}

func (r *scenarioRepository) GetScenario(_ context.Context, id string) (*models.Scenario, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	scenario, ok := r.p.scenarios[id]
	if !ok {
		return nil, persistence.NewRecordError("GetScenario", "scenario", id, persistence.ErrScenarioNotFound)
	}

	return scenario.Clone(), nil
}

func (r *scenarioRepository) InsertScenario(_ context.Context, scenario *models.Scenario) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.scenarios[scenario.ID]; ok {
		return persistence.NewRecordError("InsertScenario", "scenario", scenario.ID, persistence.ErrAlreadyExists)
	}

	r.p.scenarios[scenario.ID] = scenario.Clone()

	return nil
}

func (r *scenarioRepository) UpdateScenario(_ context.Context, scenario *models.Scenario) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.scenarios[scenario.ID]; !ok {
		return persistence.NewRecordError("UpdateScenario", "scenario", scenario.ID, persistence.ErrScenarioNotFound)
	}

	r.p.scenarios[scenario.ID] = scenario.Clone()

	return nil
}

func (r *scenarioRepository) PatchScenarioStatus(_ context.Context, id string, status models.ScenarioStatus) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	scenario, ok := r.p.scenarios[id]
	if !ok {
		return persistence.NewRecordError("PatchScenarioStatus", "scenario", id, persistence.ErrScenarioNotFound)
	}

	updated := scenario.Clone()
	updated.Status = status
	updated.UpdatedAt = time.Now().UTC()
	r.p.scenarios[id] = updated

	return nil
}

func (r *scenarioRepository) DeleteScenario(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.scenarios[id]; !ok {
		return persistence.NewRecordError("DeleteScenario", "scenario", id, persistence.ErrScenarioNotFound)
	}

	delete(r.p.scenarios, id)

	return nil
}

func (r *scenarioRepository) ListScenariosByOwner(_ context.Context, ownerID string) ([]*models.Scenario, error) {
	return r.list(func(s *models.Scenario) bool {
		return ownerID == "" || s.OwnerID == ownerID
	}), nil
}

func (r *scenarioRepository) ListScenariosByTrigger(
	_ context.Context,
	integrationID, triggerType string,
	status models.ScenarioStatus,
) ([]*models.Scenario, error) {
	return r.list(func(s *models.Scenario) bool {
		return s.IntegrationID == integrationID &&
			s.TriggerType == triggerType &&
			(status == "" || s.Status == status)
	}), nil
}

func (r *scenarioRepository) list(match func(*models.Scenario) bool) []*models.Scenario {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	result := make([]*models.Scenario, 0)

	for _, scenario := range r.p.scenarios {
		if match(scenario) {
			result = append(result, scenario.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *models.Scenario) int {
		return strings.Compare(a.ID, b.ID)
	})

	return result
}
