// Package httprequest provides the generic HTTP request node.
package httprequest

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const Identifier = "httprequest.request"

// New returns the node with its definition and executor.
func New() protocol.Node {
	return protocol.Node{Definition: Definition(), Executor: Executor{}}
}

// Definition describes the HTTP request node.
func Definition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(Identifier, "HTTP Request",
		"Sends an HTTP request through the node's connection and returns the response", models.CategoryTypeAction)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute URL, or a path appended to the connection base_url",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Static request headers",
			},
		},
		"required": []string{"url"},
	})

	def.InputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Overrides the configured URL",
			},
			"body": map[string]any{
				"description": "Request body. Strings are sent as is, other values as JSON",
			},
			"query": map[string]any{
				"type":        "object",
				"description": "Query parameters added to the URL",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Headers merged over the configured ones",
			},
		},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status_code": map[string]any{"type": "integer"},
			"headers":     map[string]any{"type": "object"},
			"body":        map[string]any{"description": "Decoded JSON body, or the raw text"},
		},
	})

	def.UIConfig = map[string]any{"icon": "globe", "color": "#4a5568"}

	return def
}
