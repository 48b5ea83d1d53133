package models

import "time"

// RunStatus is the final status of a scenario run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// StepResult summarizes the execution of a single scenario node.
type StepResult struct {
	NodeID   string         `json:"node_id"`
	NodeType string         `json:"node_type"`
	Status   LogStatus      `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// RunResult is returned by the engine once a run has reached a terminal state.
type RunResult struct {
	RunID      string        `json:"run_id"`
	ScenarioID string        `json:"scenario_id"`
	TriggerID  string        `json:"trigger_id"`
	Status     RunStatus     `json:"status"`
	Steps      []StepResult  `json:"steps"`
	Error      string        `json:"error,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
}
