package engine

import (
	"context"
	"sync"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
)

// boundCaller is the API client as a node sees it: tied to the node's
// connection, with every attempt appended to the run's log.
type boundCaller struct {
	run   *run
	node  *models.ScenarioNode
	conn  *models.ConnectionDefinition
	entry *models.AutomationLogEntry

	mu sync.Mutex
}

func (c *boundCaller) Call(ctx context.Context, req *auth.Request) (*apiclient.Response, error) {
	return c.run.engine.client.Call(ctx, c.conn, req, apiclient.WithAttemptObserver(c.observe))
}

func (c *boundCaller) observe(ctx context.Context, attempt apiclient.Attempt) {
	limit := c.run.engine.captureLimit

	request := captureRequest(attempt.Request, limit)
	response := captureResponse(attempt.Response, limit)

	end := attempt.StartedAt.Add(attempt.Duration).UTC()
	entry := &models.AutomationLogEntry{
		NodeID:    c.node.ID,
		NodeType:  c.node.NodeType,
		Action:    models.LogActionHTTPAttempt,
		Status:    models.LogStatusSuccess,
		Attempt:   attempt.Number,
		Request:   request,
		Response:  response,
		StartTime: attempt.StartedAt.UTC(),
		EndTime:   &end,
		Duration:  attempt.Duration,
	}

	if attempt.Err != nil {
		entry.Status = models.LogStatusError
		entry.Error = attempt.Err.Error()
	}

	c.run.append(ctx, entry)

	// The node entry carries the last exchange.
	c.mu.Lock()
	c.entry.Request = request
	c.entry.Response = response
	c.mu.Unlock()
}

func captureRequest(req *auth.Request, limit int) *models.HTTPCapture {
	if req == nil {
		return nil
	}

	capture := &models.HTTPCapture{
		Method:  req.Method,
		Headers: req.Header.Clone(),
		Body:    truncate(req.Body, limit),
	}

	if req.URL != nil {
		capture.URL = req.URL.Redacted()
	}

	return capture
}

func captureResponse(resp *apiclient.Response, limit int) *models.HTTPCapture {
	if resp == nil {
		return nil
	}

	return &models.HTTPCapture{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       truncate(resp.Body, limit),
	}
}

func truncate(body []byte, limit int) string {
	if limit > 0 && len(body) > limit {
		return string(body[:limit])
	}

	return string(body)
}
