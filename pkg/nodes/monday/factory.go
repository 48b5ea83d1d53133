// Package monday provides monday.com GraphQL nodes.
package monday

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	Identifier = "monday.create_item"
	APIURL     = "https://api.monday.com/v2"
	APIVersion = "2024-10"
)

func New() protocol.Node {
	return protocol.Node{Definition: Definition(), Executor: CreateItem{}}
}

func Definition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(Identifier, "Create Item",
		"Creates an item on a monday.com board", models.CategoryTypeAction)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"board_id": map[string]any{"type": "string"},
			"group_id": map[string]any{"type": "string", "description": "Defaults to the board's top group"},
		},
		"required": []string{"board_id"},
	})

	def.InputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"item_name": map[string]any{"type": "string"},
			"column_values": map[string]any{
				"type":        "object",
				"description": "Column id to value, as accepted by the create_item mutation",
			},
		},
		"required": []string{"item_name"},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":   map[string]any{"type": "string"},
			"name": map[string]any{"type": "string"},
		},
	})

	def.UIConfig = map[string]any{"icon": "monday", "color": "#ff3d57"}

	return def
}
