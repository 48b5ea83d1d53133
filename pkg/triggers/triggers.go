// Package triggers turns inbound events from external sources into engine
// trigger calls.
package triggers

import (
	"context"
	"log/slog"

	"github.com/dukex/conduit/pkg/models"
)

// Processor runs every active scenario subscribed to a trigger.
type Processor interface {
	ProcessTrigger(ctx context.Context, integrationID, triggerType string, data map[string]any) ([]*models.RunResult, error)
}

// Trigger is a long-running event source.
type Trigger interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Dispatch calls the processor and logs the outcome of each run.
func Dispatch(ctx context.Context, logger *slog.Logger, processor Processor, integrationID, triggerType string, data map[string]any) ([]*models.RunResult, error) {
	results, err := processor.ProcessTrigger(ctx, integrationID, triggerType, data)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to process trigger",
			"integration_id", integrationID, "trigger_type", triggerType, "error", err)

		return nil, err
	}

	for _, r := range results {
		logger.InfoContext(ctx, "Scenario run finished",
			"integration_id", integrationID,
			"trigger_type", triggerType,
			"scenario_id", r.ScenarioID,
			"run_id", r.RunID,
			"status", r.Status,
			"duration", r.Duration)
	}

	return results, nil
}
