// Package engine runs scenarios: it walks the node graph in order, maps data
// between steps, calls node executors and appends the execution log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrScenarioNotActive = errors.New("scenario is not active")
	ErrRunTimeout        = errors.New("run timeout exceeded")
	ErrRunCancelled      = errors.New("run cancelled")
)

// LogSink receives every execution log entry.
type LogSink interface {
	InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error
}

type ScenarioStore interface {
	GetScenario(ctx context.Context, id string) (*models.Scenario, error)
	ListScenariosByTrigger(ctx context.Context, integrationID, triggerType string, status models.ScenarioStatus) ([]*models.Scenario, error)
}

// ConnectionStore resolves connections and records auth failures on them.
type ConnectionStore interface {
	Get(ctx context.Context, id string) (*models.ConnectionDefinition, error)
	MarkError(ctx context.Context, id string, reason string) error
}

// NodeCatalog is the part of the registry the engine depends on.
type NodeCatalog interface {
	Executor(identifier string) (protocol.Executor, error)
	ValidateNodeConfig(ctx context.Context, identifier string, config map[string]any) error
	ValidateInput(ctx context.Context, identifier string, input map[string]any) error
}

// APIClient sends outbound calls on behalf of nodes.
type APIClient interface {
	Call(ctx context.Context, conn *models.ConnectionDefinition, req *auth.Request, opts ...apiclient.CallOption) (*apiclient.Response, error)
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithRunTimeout sets the wall-clock ceiling for runs whose scenario does not
// define one. Zero disables it.
func WithRunTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.runTimeout = timeout }
}

// WithMaxParallelRuns bounds how many scenarios one trigger runs at once.
func WithMaxParallelRuns(n int) Option {
	return func(e *Engine) { e.maxParallel = n }
}

// WithCaptureLimit bounds request and response bodies stored in the log.
func WithCaptureLimit(n int) Option {
	return func(e *Engine) { e.captureLimit = n }
}

type runState struct {
	scenarioID string
	cancelled  atomic.Bool
}

type Engine struct {
	logger       *slog.Logger
	catalog      NodeCatalog
	scenarios    ScenarioStore
	connections  ConnectionStore
	client       APIClient
	sink         LogSink
	tracer       trace.Tracer
	clock        clockwork.Clock
	runTimeout   time.Duration
	maxParallel  int
	captureLimit int

	mu   sync.Mutex
	runs map[string]*runState
}

func New(
	logger *slog.Logger,
	catalog NodeCatalog,
	scenarios ScenarioStore,
	connections ConnectionStore,
	client APIClient,
	sink LogSink,
	opts ...Option,
) *Engine {
	e := &Engine{
		logger:       logger.With("module", "engine"),
		catalog:      catalog,
		scenarios:    scenarios,
		connections:  connections,
		client:       client,
		sink:         sink,
		tracer:       otelhelper.Tracer("conduit.engine"),
		clock:        clockwork.NewRealClock(),
		maxParallel:  8,
		captureLimit: 4096,
		runs:         make(map[string]*runState),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ProcessTrigger runs every active scenario subscribed to the trigger. Runs
// of different scenarios proceed concurrently; node failures are reported in
// the results, not as an error.
func (e *Engine) ProcessTrigger(
	ctx context.Context,
	integrationID, triggerType string,
	data map[string]any,
) ([]*models.RunResult, error) {
	trigger := &models.Trigger{
		ID:            uuid.NewString(),
		IntegrationID: integrationID,
		TriggerType:   triggerType,
		Data:          data,
		ReceivedAt:    e.clock.Now().UTC(),
	}

	logger := e.logger.With("trigger_id", trigger.ID, "integration_id", integrationID, "trigger_type", triggerType)

	scenarios, err := e.scenarios.ListScenariosByTrigger(ctx, integrationID, triggerType, models.ScenarioStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list scenarios for %s/%s: %w", integrationID, triggerType, err)
	}

	if len(scenarios) == 0 {
		logger.InfoContext(ctx, "No active scenario for trigger")

		return nil, nil
	}

	logger.InfoContext(ctx, "Processing trigger", "scenarios", len(scenarios))

	results := make([]*models.RunResult, len(scenarios))

	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}

	for i, s := range scenarios {
		g.Go(func() error {
			result, err := e.Run(ctx, s, trigger)
			results[i] = result

			return err
		})
	}

	err = g.Wait()

	return slices.DeleteFunc(results, func(r *models.RunResult) bool { return r == nil }), err
}

// RunScenario runs one scenario by id, as a manual trigger would.
func (e *Engine) RunScenario(ctx context.Context, scenarioID string, data map[string]any) (*models.RunResult, error) {
	s, err := e.scenarios.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	if s.Status != models.ScenarioStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrScenarioNotActive, s.ID, s.Status)
	}

	return e.Run(ctx, s, &models.Trigger{
		ID:            uuid.NewString(),
		IntegrationID: s.IntegrationID,
		TriggerType:   s.TriggerType,
		Data:          data,
		ReceivedAt:    e.clock.Now().UTC(),
	})
}

// Cancel asks a running run to stop before its next step. It reports
// whether the run was found.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.runs[runID]
	if !ok {
		return false
	}

	state.cancelled.Store(true)

	return true
}

// Active lists the ids of runs in progress.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (e *Engine) track(runID, scenarioID string) *runState {
	state := &runState{scenarioID: scenarioID}

	e.mu.Lock()
	e.runs[runID] = state
	e.mu.Unlock()

	return state
}

func (e *Engine) untrack(runID string) {
	e.mu.Lock()
	delete(e.runs, runID)
	e.mu.Unlock()
}

// Run executes one scenario for one trigger. The returned error is only set
// when the execution log could not be written; node failures end up in the
// result.
func (e *Engine) Run(ctx context.Context, s *models.Scenario, trigger *models.Trigger) (*models.RunResult, error) {
	r := &run{
		engine:   e,
		scenario: s,
		trigger:  trigger,
		id:       uuid.NewString(),
		outputs:  map[string]map[string]any{models.TriggerNodeID: trigger.Data},
	}

	r.logger = e.logger.With("run_id", r.id, "scenario_id", s.ID, "trigger_id", trigger.ID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.RunIDKey, r.id),
		attribute.String(otelhelper.ScenarioIDKey, s.ID),
		attribute.String(otelhelper.ScenarioNameKey, s.Name),
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerTypeKey, trigger.TriggerType),
	)
	defer span.End()

	state := e.track(r.id, s.ID)
	defer e.untrack(r.id)

	result := r.execute(ctx, state)

	if result.Status == models.RunStatusError {
		otelhelper.SetError(span, errors.New(result.Error))
	}

	return result, r.err()
}
