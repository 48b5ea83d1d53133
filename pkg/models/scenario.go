package models

import (
	"slices"
	"time"
)

// ScenarioStatus represents the lifecycle state of a scenario.
type ScenarioStatus string

const (
	ScenarioStatusDraft  ScenarioStatus = "draft"  // Editable, not executable
	ScenarioStatusActive ScenarioStatus = "active" // Receives triggers
	ScenarioStatusPaused ScenarioStatus = "paused" // Kept but ignores triggers
)

// Scenario is a user-authored automation graph bound to one trigger.
type Scenario struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"                  validate:"required,min=3"`
	Description   string          `json:"description"`
	Status        ScenarioStatus  `json:"status"`
	IntegrationID string          `json:"integration_id"        validate:"required"`
	TriggerType   string          `json:"trigger_type"          validate:"required"`
	RunTimeout    time.Duration   `json:"run_timeout,omitempty"`
	Nodes         []*ScenarioNode `json:"nodes"`
	Edges         []*ScenarioEdge `json:"edges"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ScenarioNode is an instance of a node type placed in a scenario.
type ScenarioNode struct {
	ID           string            `json:"id"                       validate:"required"`
	NodeType     string            `json:"node_type"                validate:"required"`
	Name         string            `json:"name"`
	ConnectionID string            `json:"connection_id,omitempty"`
	Config       map[string]any    `json:"config"`
	InputMapping map[string]string `json:"input_mapping"`
	TriggerTypes []string          `json:"trigger_types,omitempty"` // Empty means every trigger type
	Optional     bool              `json:"optional"`                // Skip instead of failing on validation errors
	PositionX    int               `json:"position_x"`
	PositionY    int               `json:"position_y"`
}

// ScenarioEdge orders two nodes of the same scenario.
type ScenarioEdge struct {
	ID     string `json:"id"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// HandlesTrigger reports whether the node runs for the given trigger type.
func (n *ScenarioNode) HandlesTrigger(triggerType string) bool {
	return len(n.TriggerTypes) == 0 || slices.Contains(n.TriggerTypes, triggerType)
}

// Clone returns a deep copy of the scenario with its nodes and edges.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}

	c := *s
	c.Nodes = make([]*ScenarioNode, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		c.Nodes = append(c.Nodes, n.Clone())
	}

	c.Edges = make([]*ScenarioEdge, 0, len(s.Edges))
	for _, e := range s.Edges {
		ec := *e
		c.Edges = append(c.Edges, &ec)
	}

	return &c
}

// Clone returns a deep copy of the node.
func (n *ScenarioNode) Clone() *ScenarioNode {
	c := *n
	c.Config = CloneMap(n.Config)
	c.TriggerTypes = slices.Clone(n.TriggerTypes)

	if n.InputMapping != nil {
		c.InputMapping = make(map[string]string, len(n.InputMapping))
		for k, v := range n.InputMapping {
			c.InputMapping[k] = v
		}
	}

	return &c
}

// Node returns the node with the given ID, or nil.
func (s *Scenario) Node(id string) *ScenarioNode {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
