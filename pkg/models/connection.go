package models

import (
	"maps"
	"slices"
	"time"
)

// ConnectionStatus represents the health of a configured connection.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusError        ConnectionStatus = "error"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// ConnectionDefinition is a configured, credentialed link to an external
// service. Secrets hold the sealed credential blob and never leave the
// service layer.
type ConnectionDefinition struct {
	ID        string           `json:"id"`
	NodeType  string           `json:"node_type"            validate:"required"`
	Name      string           `json:"name"                 validate:"required,min=1"`
	OwnerID   string           `json:"owner_id"`
	Status    ConnectionStatus `json:"status"`
	Config    map[string]any   `json:"config"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	Secrets   []byte           `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the connection including its sealed secrets.
func (c *ConnectionDefinition) Clone() *ConnectionDefinition {
	if c == nil {
		return nil
	}

	cp := *c
	cp.Config = CloneMap(c.Config)
	cp.Metadata = CloneMap(c.Metadata)
	cp.Secrets = slices.Clone(c.Secrets)

	return &cp
}

// Public returns a copy safe to hand to callers outside the service layer.
func (c *ConnectionDefinition) Public() *ConnectionDefinition {
	cp := c.Clone()
	if cp != nil {
		cp.Secrets = nil
	}

	return cp
}

// ConfigString reads a string entry from the connection config.
func (c *ConnectionDefinition) ConfigString(key string) string {
	if c == nil {
		return ""
	}

	v, _ := c.Config[key].(string)

	return v
}

// CloneMap deep copies nested maps and slices of a JSON-like value tree.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		s := slices.Clone(t)
		for i := range s {
			s[i] = cloneValue(s[i])
		}

		return s
	default:
		return v
	}
}
