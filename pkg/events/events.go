// Package events defines the notifications conduit publishes on its event bus.
package events

import (
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every conduit event.
const Topic = "conduit.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// LogEntryAppendedEvent is published after an automation log entry is stored.
	LogEntryAppendedEvent EventType = "log.entry.appended"
	// RunFinishedEvent is published when a run reaches a terminal state.
	RunFinishedEvent EventType = "run.finished"
	// TriggerReceivedEvent carries a trigger to be processed asynchronously.
	TriggerReceivedEvent EventType = "trigger.received"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, scenarioID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		ScenarioID: scenarioID,
		Metadata:   make(map[string]any),
	}
}

type LogEntryAppended struct {
	BaseEvent

	Entry *models.AutomationLogEntry `json:"entry"`
}

func (e LogEntryAppended) GetType() EventType {
	return LogEntryAppendedEvent
}

func NewLogEntryAppended(entry *models.AutomationLogEntry) LogEntryAppended {
	return LogEntryAppended{
		BaseEvent: NewBaseEvent(LogEntryAppendedEvent, entry.ScenarioID),
		Entry:     entry,
	}
}

type RunFinished struct {
	BaseEvent

	RunID     string           `json:"run_id"`
	TriggerID string           `json:"trigger_id"`
	Status    models.RunStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

func NewRunFinished(result *models.RunResult) RunFinished {
	return RunFinished{
		BaseEvent: NewBaseEvent(RunFinishedEvent, result.ScenarioID),
		RunID:     result.RunID,
		TriggerID: result.TriggerID,
		Status:    result.Status,
		Error:     result.Error,
		Duration:  result.Duration,
	}
}

type TriggerReceived struct {
	BaseEvent

	Trigger models.Trigger `json:"trigger"`
}

func (e TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

func NewTriggerReceived(trigger models.Trigger) TriggerReceived {
	return TriggerReceived{
		BaseEvent: NewBaseEvent(TriggerReceivedEvent, ""),
		Trigger:   trigger,
	}
}
