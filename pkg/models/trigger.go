package models

import "time"

// TriggerNodeID is the reserved source name trigger payloads are mapped from.
const TriggerNodeID = "trigger"

// Trigger is an inbound event that starts scenario runs.
type Trigger struct {
	ID            string         `json:"id"`
	IntegrationID string         `json:"integration_id"`
	TriggerType   string         `json:"trigger_type"`
	Data          map[string]any `json:"data"`
	ReceivedAt    time.Time      `json:"received_at"`
}
