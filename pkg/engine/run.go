package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/mapper"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/scenario"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type run struct {
	engine   *Engine
	scenario *models.Scenario
	trigger  *models.Trigger
	id       string
	logger   *slog.Logger
	outputs  mapper.Outputs

	mu      sync.Mutex
	sinkErr error
}

func (r *run) execute(ctx context.Context, state *runState) *models.RunResult {
	e := r.engine
	start := e.clock.Now().UTC()

	result := &models.RunResult{
		RunID:      r.id,
		ScenarioID: r.scenario.ID,
		TriggerID:  r.trigger.ID,
		Status:     models.RunStatusRunning,
		StartTime:  start,
	}

	r.append(ctx, &models.AutomationLogEntry{
		Action:    models.LogActionScenarioStart,
		Status:    models.LogStatusRunning,
		InputData: r.trigger.Data,
		StartTime: start,
	})

	if err := r.err(); err != nil {
		// Without a start entry the run must not execute anything.
		result.Status = models.RunStatusError
		result.Error = err.Error()
		result.EndTime = e.clock.Now().UTC()
		result.Duration = result.EndTime.Sub(start)

		return result
	}

	r.logger.InfoContext(ctx, "Scenario run started")

	timeout := e.runTimeout
	if r.scenario.RunTimeout > 0 {
		timeout = r.scenario.RunTimeout
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = start.Add(timeout)
	}

	order, err := r.order()
	if err != nil {
		result.Status = models.RunStatusError
		result.Error = err.Error()
	}

	for _, node := range order {
		if stop := r.stopReason(ctx, state, deadline); stop != nil {
			result.Status = models.RunStatusCancelled
			result.Error = stop.Error()

			break
		}

		step := r.step(ctx, node)
		result.Steps = append(result.Steps, step)

		if step.Status == models.LogStatusError {
			result.Status = models.RunStatusError
			result.Error = fmt.Sprintf("node %s: %s", node.ID, step.Error)

			if ctx.Err() != nil {
				result.Status = models.RunStatusCancelled
			}

			break
		}

		if step.Status == models.LogStatusSuccess {
			r.outputs[node.ID] = step.Output
		}
	}

	if result.Status == models.RunStatusRunning {
		result.Status = models.RunStatusSuccess
	}

	end := e.clock.Now().UTC()
	result.EndTime = end
	result.Duration = end.Sub(start)

	terminal := &models.AutomationLogEntry{
		StartTime: start,
		EndTime:   &end,
		Duration:  result.Duration,
		Error:     result.Error,
	}

	switch result.Status {
	case models.RunStatusSuccess:
		terminal.Action = models.LogActionScenarioComplete
		terminal.Status = models.LogStatusSuccess
		terminal.OutputData = r.finalOutput(order)
	case models.RunStatusCancelled:
		terminal.Action = models.LogActionScenarioCancelled
		terminal.Status = models.LogStatusCancelled
	default:
		terminal.Action = models.LogActionScenarioError
		terminal.Status = models.LogStatusError
	}

	r.append(ctx, terminal)

	r.logger.InfoContext(ctx, "Scenario run finished",
		"status", result.Status,
		"steps", len(result.Steps),
		"duration", result.Duration,
	)

	return result
}

func (r *run) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sinkErr
}

func (r *run) order() ([]*models.ScenarioNode, error) {
	g, err := scenario.Build(r.scenario)
	if err != nil {
		return nil, err
	}

	return g.TopologicalOrder()
}

func (r *run) stopReason(ctx context.Context, state *runState, deadline time.Time) error {
	switch {
	case state.cancelled.Load():
		return ErrRunCancelled
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrRunCancelled, ctx.Err())
	case !deadline.IsZero() && !r.engine.clock.Now().Before(deadline):
		return ErrRunTimeout
	default:
		return nil
	}
}

// finalOutput is the output of the last node that produced one.
func (r *run) finalOutput(order []*models.ScenarioNode) map[string]any {
	for i := len(order) - 1; i >= 0; i-- {
		if out, ok := r.outputs[order[i].ID]; ok {
			return out
		}
	}

	return nil
}

// append writes an entry to the sink. Entries are never modified after this
// call; a later state is always a new entry.
func (r *run) append(ctx context.Context, entry *models.AutomationLogEntry) {
	entry.ID = uuid.NewString()
	entry.RunID = r.id
	entry.ScenarioID = r.scenario.ID

	err := r.engine.sink.InsertLogEntry(context.WithoutCancel(ctx), entry)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to write execution log", "action", entry.Action, "node_id", entry.NodeID, "error", err)

		r.mu.Lock()
		if r.sinkErr == nil {
			r.sinkErr = fmt.Errorf("write %s log entry: %w", entry.Action, err)
		}
		r.mu.Unlock()
	}
}

func (r *run) step(ctx context.Context, node *models.ScenarioNode) models.StepResult {
	e := r.engine

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.RunIDKey, r.id),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.NodeType),
	)
	defer span.End()

	logger := r.logger.With("node_id", node.ID, "node_type", node.NodeType)
	start := e.clock.Now().UTC()

	entry := &models.AutomationLogEntry{
		NodeID:    node.ID,
		NodeType:  node.NodeType,
		Action:    models.LogActionNodeExecute,
		StartTime: start,
	}

	finish := func(status models.LogStatus, output map[string]any, err error, warnings []string) models.StepResult {
		end := e.clock.Now().UTC()
		entry.Status = status
		entry.OutputData = output
		entry.Warnings = warnings
		entry.EndTime = &end
		entry.Duration = end.Sub(start)

		step := models.StepResult{
			NodeID:   node.ID,
			NodeType: node.NodeType,
			Status:   status,
			Output:   output,
			Warnings: warnings,
		}

		if err != nil {
			entry.Error = err.Error()
			step.Error = err.Error()
		}

		if status == models.LogStatusError {
			otelhelper.SetError(span, err)
			logger.WarnContext(ctx, "Node failed", "error", err)
		} else {
			logger.InfoContext(ctx, "Node finished", "status", status, "duration", entry.Duration)
		}

		r.append(ctx, entry)

		return step
	}

	if !node.HandlesTrigger(r.trigger.TriggerType) {
		return finish(models.LogStatusSkipped, nil,
			fmt.Errorf("node does not handle trigger type %s", r.trigger.TriggerType), nil)
	}

	input, mappingWarnings := mapper.Resolve(node.InputMapping, r.outputs)
	entry.InputData = input

	warnings := make([]string, 0, len(mappingWarnings))
	for _, w := range mappingWarnings {
		warnings = append(warnings, "mapping: "+w.String())
	}

	invalid := func(err error) models.StepResult {
		if node.Optional {
			return finish(models.LogStatusSkipped, nil, err, warnings)
		}

		return finish(models.LogStatusError, nil, err, warnings)
	}

	err := e.catalog.ValidateNodeConfig(ctx, node.NodeType, node.Config)
	if err != nil {
		return invalid(err)
	}

	err = e.catalog.ValidateInput(ctx, node.NodeType, input)
	if err != nil {
		return invalid(err)
	}

	executor, err := e.catalog.Executor(node.NodeType)
	if err != nil {
		return finish(models.LogStatusError, nil, err, warnings)
	}

	var conn *models.ConnectionDefinition

	if node.ConnectionID != "" {
		conn, err = e.connections.Get(ctx, node.ConnectionID)
		if err != nil {
			return finish(models.LogStatusError, nil, fmt.Errorf("load connection %s: %w", node.ConnectionID, err), warnings)
		}

		span.SetAttributes(attribute.String(otelhelper.ConnectionIDKey, conn.ID))

		if conn.Status == models.ConnectionStatusError {
			return finish(models.LogStatusError, nil,
				fmt.Errorf("%w: %s: %s", apiclient.ErrConnectionUnavailable, conn.ID, conn.LastError), warnings)
		}
	}

	caller := &boundCaller{run: r, node: node, conn: conn, entry: entry}

	ectx := &protocol.ExecutionContext{
		RunID:      r.id,
		ScenarioID: r.scenario.ID,
		NodeID:     node.ID,
		Trigger:    r.trigger,
		Config:     models.CloneMap(node.Config),
		Connection: conn.Public(),
		Client:     caller,
		Logger:     logger,
	}

	res := safeExecute(ctx, executor, ectx, input)
	warnings = append(warnings, ectx.Warnings()...)

	if res.Err != nil {
		r.flagConnection(ctx, conn, res.Err)

		return finish(models.LogStatusError, nil, res.Err, warnings)
	}

	return finish(models.LogStatusSuccess, res.Output, nil, warnings)
}

func safeExecute(ctx context.Context, executor protocol.Executor, ectx *protocol.ExecutionContext, input map[string]any) (res protocol.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = protocol.Failure(fmt.Errorf("node panicked: %v", rec))
		}
	}()

	return executor.Execute(ctx, ectx, input)
}

// flagConnection moves a connection to the error state after an auth
// failure so later runs fail without calling out.
func (r *run) flagConnection(ctx context.Context, conn *models.ConnectionDefinition, err error) {
	if conn == nil {
		return
	}

	var apiErr *apiclient.ExternalAPIError
	if !auth.IsAuthenticationError(err) && !(errors.As(err, &apiErr) && apiErr.Unauthorized()) {
		return
	}

	markErr := r.engine.connections.MarkError(context.WithoutCancel(ctx), conn.ID, err.Error())
	if markErr != nil {
		r.logger.ErrorContext(ctx, "Failed to flag connection", "connection_id", conn.ID, "error", markErr)

		return
	}

	r.logger.WarnContext(ctx, "Connection flagged as error", "connection_id", conn.ID, "error", err)
}
