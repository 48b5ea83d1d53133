// Package log provides the log node, which writes a templated message to the
// engine logger.
package log

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const Identifier = "log.write"

func New() protocol.Node {
	return protocol.Node{Definition: Definition(), Executor: Node{}}
}

func Definition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(Identifier, "Log",
		"Logs messages at different levels (debug, info, warn, error) with template support for dynamic content",
		models.CategoryTypeTransform)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templates over .input, .trigger, .config and .run",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        levelNames(),
				"default":     "info",
			},
		},
		"required": []string{"message"},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string", "description": "The logged message"},
			"level":   map[string]any{"type": "string", "description": "The log level used"},
			"logged":  map[string]any{"type": "boolean"},
		},
	})

	return def
}
