// Package models defines the core domain models for integration scenario automation
package models

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// CategoryType represents the category of an integration node.
type CategoryType string

const (
	CategoryTypeAction    CategoryType = "action"    // Calls an external API or performs a side effect
	CategoryTypeTrigger   CategoryType = "trigger"   // Describes an event an integration can emit
	CategoryTypeTransform CategoryType = "transform" // Pure data shaping without external calls
)

// IntegrationNodeDefinition is the catalog entry describing a node type.
type IntegrationNodeDefinition struct {
	Identifier      string          `json:"identifier"              validate:"required"`
	Name            string          `json:"name"                    validate:"required"`
	Description     string          `json:"description"`
	Category        CategoryType    `json:"category"                validate:"required,oneof=action trigger transform"`
	IntegrationType string          `json:"integration_type"        validate:"required"`
	Version         string          `json:"version"                 validate:"required"`
	InputSchema     json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema    json.RawMessage `json:"output_schema,omitempty"`
	ConfigSchema    json.RawMessage `json:"config_schema,omitempty"`
	UIConfig        map[string]any  `json:"ui_config,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Deprecated      bool            `json:"deprecated"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the definition.
func (d *IntegrationNodeDefinition) Clone() *IntegrationNodeDefinition {
	if d == nil {
		return nil
	}

	c := *d
	c.InputSchema = slices.Clone(d.InputSchema)
	c.OutputSchema = slices.Clone(d.OutputSchema)
	c.ConfigSchema = slices.Clone(d.ConfigSchema)
	c.UIConfig = maps.Clone(d.UIConfig)
	c.Tags = slices.Clone(d.Tags)

	return &c
}
