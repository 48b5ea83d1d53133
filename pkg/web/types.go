// Package web provides HTTP request and response types for the conduit API.
package web

import (
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/services"
)

// CreateConnectionRequest represents the request body for creating a connection.
type CreateConnectionRequest struct {
	NodeType string            `json:"node_type" validate:"required"`
	Name     string            `json:"name"      validate:"required,min=3"`
	OwnerID  string            `json:"owner_id"  validate:"required"`
	Config   map[string]any    `json:"config"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Secrets  map[string]string `json:"secrets,omitempty"`
}

func (r CreateConnectionRequest) toService() services.CreateConnectionRequest {
	return services.CreateConnectionRequest{
		NodeType: r.NodeType,
		Name:     r.Name,
		OwnerID:  r.OwnerID,
		Config:   r.Config,
		Metadata: r.Metadata,
		Secrets:  r.Secrets,
	}
}

// UpdateConnectionRequest represents a partial connection update.
type UpdateConnectionRequest struct {
	Name     *string           `json:"name,omitempty"     validate:"omitempty,min=3"`
	Config   map[string]any    `json:"config,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Secrets  map[string]string `json:"secrets,omitempty"`
}

func (r UpdateConnectionRequest) toService() services.UpdateConnectionRequest {
	return services.UpdateConnectionRequest{
		Name:     r.Name,
		Config:   r.Config,
		Metadata: r.Metadata,
		Secrets:  r.Secrets,
	}
}

// CreateScenarioRequest represents the request body for creating a scenario.
// RunTimeout is a Go duration string such as "30s".
type CreateScenarioRequest struct {
	OwnerID       string                 `json:"owner_id"       validate:"required"`
	Name          string                 `json:"name"           validate:"required,min=3"`
	Description   string                 `json:"description"`
	IntegrationID string                 `json:"integration_id" validate:"required"`
	TriggerType   string                 `json:"trigger_type"   validate:"required"`
	RunTimeout    string                 `json:"run_timeout,omitempty"`
	Nodes         []*models.ScenarioNode `json:"nodes"`
	Edges         []*models.ScenarioEdge `json:"edges"`
}

func (r CreateScenarioRequest) toService() (services.CreateScenarioRequest, error) {
	var timeout time.Duration

	if r.RunTimeout != "" {
		var err error

		timeout, err = time.ParseDuration(r.RunTimeout)
		if err != nil {
			return services.CreateScenarioRequest{}, err
		}
	}

	return services.CreateScenarioRequest{
		OwnerID:       r.OwnerID,
		Name:          r.Name,
		Description:   r.Description,
		IntegrationID: r.IntegrationID,
		TriggerType:   r.TriggerType,
		RunTimeout:    timeout,
		Nodes:         r.Nodes,
		Edges:         r.Edges,
	}, nil
}

// CreateEdgeRequest connects two nodes of a scenario.
type CreateEdgeRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// RunScenarioRequest carries the trigger data for a manual run.
type RunScenarioRequest struct {
	Data map[string]any `json:"data"`
}

// LogsResponse wraps an execution log listing.
type LogsResponse struct {
	Logs  []*models.AutomationLogEntry `json:"logs"`
	Total int                          `json:"total"`
}

func newLogsResponse(entries []*models.AutomationLogEntry) LogsResponse {
	if entries == nil {
		entries = []*models.AutomationLogEntry{}
	}

	return LogsResponse{Logs: entries, Total: len(entries)}
}

// logQuery reads the status, action, since, until and limit filters.
func logQuery(status, action, since, until string, limit int) (persistence.LogQuery, error) {
	q := persistence.LogQuery{
		Status: models.LogStatus(status),
		Action: models.LogAction(action),
		Limit:  limit,
	}

	var err error

	if since != "" {
		q.Since, err = time.Parse(time.RFC3339, since)
		if err != nil {
			return q, err
		}
	}

	if until != "" {
		q.Until, err = time.Parse(time.RFC3339, until)
		if err != nil {
			return q, err
		}
	}

	return q, nil
}
