package models

import (
	"slices"
	"time"
)

// LogAction names the kind of event an automation log entry records.
type LogAction string

const (
	LogActionScenarioStart     LogAction = "scenario_start"
	LogActionNodeExecute       LogAction = "node_execute"
	LogActionHTTPAttempt       LogAction = "http_attempt"
	LogActionScenarioComplete  LogAction = "scenario_complete"
	LogActionScenarioError     LogAction = "scenario_error"
	LogActionScenarioCancelled LogAction = "scenario_cancelled"
)

// IsTerminal reports whether the action closes a run.
func (a LogAction) IsTerminal() bool {
	switch a {
	case LogActionScenarioComplete, LogActionScenarioError, LogActionScenarioCancelled:
		return true
	default:
		return false
	}
}

// LogStatus is the outcome recorded on an automation log entry.
type LogStatus string

const (
	LogStatusRunning   LogStatus = "running"
	LogStatusSuccess   LogStatus = "success"
	LogStatusError     LogStatus = "error"
	LogStatusSkipped   LogStatus = "skipped"
	LogStatusCancelled LogStatus = "cancelled"
)

// HTTPCapture records one side of an external HTTP exchange.
type HTTPCapture struct {
	Method     string              `json:"method,omitempty"`
	URL        string              `json:"url,omitempty"`
	StatusCode int                 `json:"status_code,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
	Body       string              `json:"body,omitempty"`
}

// AutomationLogEntry is one append-only row of the execution log. Entries
// are written once and never updated.
type AutomationLogEntry struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	ScenarioID string         `json:"scenario_id"`
	NodeID     string         `json:"node_id,omitempty"`
	NodeType   string         `json:"node_type,omitempty"`
	Action     LogAction      `json:"action"`
	Status     LogStatus      `json:"status"`
	Attempt    int            `json:"attempt,omitempty"`
	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Request    *HTTPCapture   `json:"request,omitempty"`
	Response   *HTTPCapture   `json:"response,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
}

// Clone returns a deep copy of the capture, headers included.
func (h *HTTPCapture) Clone() *HTTPCapture {
	if h == nil {
		return nil
	}

	c := *h
	if h.Headers != nil {
		c.Headers = make(map[string][]string, len(h.Headers))
		for k, v := range h.Headers {
			c.Headers[k] = slices.Clone(v)
		}
	}

	return &c
}

// Clone returns a deep copy of the entry.
func (e *AutomationLogEntry) Clone() *AutomationLogEntry {
	if e == nil {
		return nil
	}

	c := *e
	c.InputData = CloneMap(e.InputData)
	c.OutputData = CloneMap(e.OutputData)
	c.Warnings = slices.Clone(e.Warnings)

	c.Request = e.Request.Clone()
	c.Response = e.Response.Clone()

	if e.EndTime != nil {
		t := *e.EndTime
		c.EndTime = &t
	}

	return &c
}
