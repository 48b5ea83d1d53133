// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test ScenarioNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.ScenarioNode)) *models.ScenarioNode {
	node := &models.ScenarioNode{
		ID:           uuid.New().String(),
		NodeType:     "log.write",
		Name:         "Test Node",
		Config:       map[string]any{"message": "test", "level": "info"},
		InputMapping: map[string]string{},
		PositionX:    100,
		PositionY:    200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.ScenarioNode) {
	return func(n *models.ScenarioNode) {
		n.Config = config
	}
}

// WithMapping sets the node input mapping.
func WithMapping(mapping map[string]string) func(*models.ScenarioNode) {
	return func(n *models.ScenarioNode) {
		n.InputMapping = mapping
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.ScenarioNode) {
	return func(n *models.ScenarioNode) {
		n.NodeType = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.ScenarioNode) {
	return func(n *models.ScenarioNode) {
		n.ID = id
	}
}

// WithConnection binds the node to a connection.
func WithConnection(connectionID string) func(*models.ScenarioNode) {
	return func(n *models.ScenarioNode) {
		n.ConnectionID = connectionID
	}
}

// CreateTestScenario creates a draft scenario listening for published WordPress posts.
func CreateTestScenario(nodes ...*models.ScenarioNode) *models.Scenario {
	s := &models.Scenario{
		ID:            uuid.New().String(),
		OwnerID:       "test-user",
		Name:          "Test Scenario",
		Description:   "A scenario for testing",
		Status:        models.ScenarioStatusDraft,
		IntegrationID: "wordpress",
		TriggerType:   "wordpress.post_published",
		Nodes:         nodes,
		Edges:         []*models.ScenarioEdge{},
	}

	return s
}

// Chain creates a scenario whose nodes run in the given order.
func Chain(nodes ...*models.ScenarioNode) *models.Scenario {
	s := CreateTestScenario(nodes...)

	for i := 1; i < len(nodes); i++ {
		s.Edges = append(s.Edges, CreateTestEdge(nodes[i-1].ID, nodes[i].ID))
	}

	return s
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(sourceNodeID, targetNodeID string) *models.ScenarioEdge {
	return &models.ScenarioEdge{
		ID:     uuid.New().String(),
		Source: sourceNodeID,
		Target: targetNodeID,
	}
}
