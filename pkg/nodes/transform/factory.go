// Package transform provides the template transform node.
package transform

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const Identifier = "transform.template"

func New() protocol.Node {
	return protocol.Node{Definition: Definition(), Executor: Node{}}
}

func Definition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(Identifier, "Transform",
		"Reshapes data with a Go template. JSON, number and boolean results are decoded", models.CategoryTypeTransform)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": `Template over .input, .trigger, .config and .run, e.g. {"title": {{ json .input.title }}}`,
			},
		},
		"required": []string{"expression"},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"description": "Rendered value"},
		},
	})

	return def
}
