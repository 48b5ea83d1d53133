package memory

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

type logRepository struct {
	p *Persistence
}

func (r *logRepository) InsertLogEntry(_ context.Context, entry *models.AutomationLogEntry) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.logIDs[entry.ID]; ok {
		return persistence.NewRecordError("InsertLogEntry", "log entry", entry.ID, persistence.ErrAlreadyExists)
	}

	r.p.logIDs[entry.ID] = struct{}{}
	r.p.logs = append(r.p.logs, entry.Clone())

	return nil
}

func (r *logRepository) ListLogsByRun(_ context.Context, runID string) ([]*models.AutomationLogEntry, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	result := make([]*models.AutomationLogEntry, 0)

	for _, entry := range r.p.logs {
		if entry.RunID == runID {
			result = append(result, entry.Clone())
		}
	}

	return result, nil
}

func (r *logRepository) ListLogsByScenario(
	_ context.Context,
	scenarioID string,
	query persistence.LogQuery,
) ([]*models.AutomationLogEntry, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	result := make([]*models.AutomationLogEntry, 0)

	// Newest first, matching the SQL implementation.
	for i := len(r.p.logs) - 1; i >= 0; i-- {
		entry := r.p.logs[i]
		if entry.ScenarioID != scenarioID || !query.Matches(entry) {
			continue
		}

		result = append(result, entry.Clone())

		if query.Limit > 0 && len(result) >= query.Limit {
			break
		}
	}

	return result, nil
}
