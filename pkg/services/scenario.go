package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/scenario"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrScenarioNotFound is returned when a scenario is not found.
	ErrScenarioNotFound = persistence.ErrScenarioNotFound
)

// NodeCatalog resolves node types and checks node configs.
type NodeCatalog interface {
	Definition(ctx context.Context, identifier string) (*models.IntegrationNodeDefinition, error)
	ValidateNodeConfig(ctx context.Context, identifier string, config map[string]any) error
}

// CreateScenarioRequest represents the request to create a new scenario.
type CreateScenarioRequest struct {
	OwnerID       string `validate:"required"`
	Name          string `validate:"required,min=3"`
	Description   string
	IntegrationID string `validate:"required"`
	TriggerType   string `validate:"required"`
	RunTimeout    time.Duration
	Nodes         []*models.ScenarioNode `validate:"dive"`
	Edges         []*models.ScenarioEdge `validate:"dive"`
}

// Scenarios handles scenario-related business operations.
type Scenarios struct {
	persistence persistence.Persistence
	catalog     NodeCatalog
	validate    *validator.Validate
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewScenarios creates a new scenario service.
func NewScenarios(logger *slog.Logger, persistence persistence.Persistence, catalog NodeCatalog) *Scenarios {
	return &Scenarios{
		persistence: persistence,
		catalog:     catalog,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		clock:       clockwork.NewRealClock(),
		logger:      logger.With("module", "scenarios"),
	}
}

// Create stores a draft scenario after checking its graph.
func (s *Scenarios) Create(ctx context.Context, req CreateScenarioRequest) (*models.Scenario, error) {
	err := s.validate.Struct(req)
	if err != nil {
		if req.Name == "" {
			return nil, ErrScenarioNameRequired
		}

		return nil, NewValidationError("create scenario", "invalid_scenario", err.Error(), ErrInvalidRequest)
	}

	now := s.clock.Now().UTC()
	sc := &models.Scenario{
		ID:            uuid.New().String(),
		OwnerID:       req.OwnerID,
		Name:          req.Name,
		Description:   req.Description,
		Status:        models.ScenarioStatusDraft,
		IntegrationID: req.IntegrationID,
		TriggerType:   req.TriggerType,
		RunTimeout:    req.RunTimeout,
		Nodes:         req.Nodes,
		Edges:         req.Edges,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	assignEdgeIDs(sc)

	err = s.check(ctx, sc)
	if err != nil {
		return nil, err
	}

	err = s.persistence.ScenarioRepository().InsertScenario(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario: %w", err)
	}

	s.logger.InfoContext(ctx, "Scenario created", "scenario_id", sc.ID, "nodes", len(sc.Nodes))

	return sc, nil
}

func (s *Scenarios) Get(ctx context.Context, id string) (*models.Scenario, error) {
	return s.persistence.ScenarioRepository().GetScenario(ctx, id)
}

func (s *Scenarios) List(ctx context.Context, ownerID string) ([]*models.Scenario, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	return s.persistence.ScenarioRepository().ListScenariosByOwner(ctx, ownerID)
}

// AddNode appends a node to a scenario that is not active.
func (s *Scenarios) AddNode(ctx context.Context, scenarioID string, node *models.ScenarioNode) (*models.Scenario, error) {
	err := s.validate.Struct(node)
	if err != nil {
		return nil, NewValidationError("add node", "invalid_node", err.Error(), ErrInvalidRequest)
	}

	return s.modify(ctx, scenarioID, func(sc *models.Scenario) error {
		sc.Nodes = append(sc.Nodes, node)

		return nil
	})
}

// RemoveNode drops a node and the edges touching it.
func (s *Scenarios) RemoveNode(ctx context.Context, scenarioID, nodeID string) (*models.Scenario, error) {
	return s.modify(ctx, scenarioID, func(sc *models.Scenario) error {
		if sc.Node(nodeID) == nil {
			return fmt.Errorf("%w: node %s not found", ErrInvalidRequest, nodeID)
		}

		nodes := sc.Nodes[:0]
		for _, n := range sc.Nodes {
			if n.ID != nodeID {
				nodes = append(nodes, n)
			}
		}

		edges := sc.Edges[:0]
		for _, e := range sc.Edges {
			if e.Source != nodeID && e.Target != nodeID {
				edges = append(edges, e)
			}
		}

		sc.Nodes, sc.Edges = nodes, edges

		return nil
	})
}

// Connect adds an edge. Edges that would close a cycle are rejected.
func (s *Scenarios) Connect(ctx context.Context, scenarioID, source, target string) (*models.Scenario, error) {
	return s.modify(ctx, scenarioID, func(sc *models.Scenario) error {
		sc.Edges = append(sc.Edges, &models.ScenarioEdge{ID: uuid.New().String(), Source: source, Target: target})

		return nil
	})
}

// Activate makes the scenario receive triggers. Every node must reference a
// registered type with a valid config and a healthy connection.
func (s *Scenarios) Activate(ctx context.Context, id string) (*models.Scenario, error) {
	sc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sc.Status == models.ScenarioStatusActive {
		return sc, nil
	}

	if len(sc.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	err = s.check(ctx, sc)
	if err != nil {
		return nil, err
	}

	for _, node := range sc.Nodes {
		err = s.catalog.ValidateNodeConfig(ctx, node.NodeType, node.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %w", ErrInvalidNodeConfig, node.ID, err)
		}

		if node.ConnectionID == "" {
			continue
		}

		conn, err := s.persistence.ConnectionRepository().GetConnection(ctx, node.ConnectionID)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}

		if conn.Status == models.ConnectionStatusError {
			return nil, fmt.Errorf("%w: %s: %s", ErrConnectionNotHealthy, conn.ID, conn.LastError)
		}
	}

	return s.setStatus(ctx, sc, models.ScenarioStatusActive)
}

// Pause stops an active scenario from receiving triggers.
func (s *Scenarios) Pause(ctx context.Context, id string) (*models.Scenario, error) {
	sc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sc.Status != models.ScenarioStatusActive {
		return nil, fmt.Errorf("%w: %s scenario cannot be paused", ErrInvalidStatusChange, sc.Status)
	}

	return s.setStatus(ctx, sc, models.ScenarioStatusPaused)
}

// Delete removes the scenario with its nodes and edges.
func (s *Scenarios) Delete(ctx context.Context, id string) error {
	err := s.persistence.ScenarioRepository().DeleteScenario(ctx, id)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Scenario deleted", "scenario_id", id)

	return nil
}

// Logs returns the execution history of a scenario, newest first.
func (s *Scenarios) Logs(ctx context.Context, id string, query persistence.LogQuery) ([]*models.AutomationLogEntry, error) {
	_, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.persistence.LogRepository().ListLogsByScenario(ctx, id, query)
}

func (s *Scenarios) setStatus(ctx context.Context, sc *models.Scenario, status models.ScenarioStatus) (*models.Scenario, error) {
	err := s.persistence.ScenarioRepository().PatchScenarioStatus(ctx, sc.ID, status)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Scenario status changed", "scenario_id", sc.ID, "from", sc.Status, "to", status)

	sc.Status = status

	return sc, nil
}

func (s *Scenarios) modify(ctx context.Context, id string, change func(*models.Scenario) error) (*models.Scenario, error) {
	sc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sc.Status == models.ScenarioStatusActive {
		return nil, ErrCannotModifyActive
	}

	err = change(sc)
	if err != nil {
		return nil, err
	}

	err = s.check(ctx, sc)
	if err != nil {
		return nil, err
	}

	sc.UpdatedAt = s.clock.Now().UTC()

	err = s.persistence.ScenarioRepository().UpdateScenario(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to update scenario: %w", err)
	}

	return sc, nil
}

// check rejects graphs the engine could not run and unknown node types.
func (s *Scenarios) check(ctx context.Context, sc *models.Scenario) error {
	err := scenario.Validate(sc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenarioGraph, err)
	}

	for _, node := range sc.Nodes {
		_, err := s.catalog.Definition(ctx, node.NodeType)
		if errors.Is(err, persistence.ErrNodeDefinitionNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownNodeType, node.NodeType)
		}

		if err != nil {
			return fmt.Errorf("failed to resolve node type %s: %w", node.NodeType, err)
		}
	}

	return nil
}

func assignEdgeIDs(sc *models.Scenario) {
	for _, e := range sc.Edges {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
	}
}
