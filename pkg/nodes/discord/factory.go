// Package discord provides the Discord channel message node.
package discord

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	Identifier = "discord.send_message"
	APIBase    = "https://discord.com/api/v10"
)

func New() protocol.Node {
	return protocol.Node{Definition: Definition(), Executor: SendMessage{}}
}

func Definition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(Identifier, "Send Message",
		"Posts a message to a Discord channel as the connected bot", models.CategoryTypeAction)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel_id": map[string]any{"type": "string", "description": "Target channel snowflake"},
		},
		"required": []string{"channel_id"},
	})

	def.InputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "Message text, up to 2000 characters"},
			"tts":     map[string]any{"type": "boolean"},
			"embeds": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object"},
			},
		},
		"required": []string{"content"},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":         map[string]any{"type": "string"},
			"channel_id": map[string]any{"type": "string"},
			"content":    map[string]any{"type": "string"},
			"timestamp":  map[string]any{"type": "string"},
		},
	})

	def.UIConfig = map[string]any{"icon": "discord", "color": "#5865f2"}

	return def
}
