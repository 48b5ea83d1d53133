// Package vimeo provides Vimeo API nodes.
package vimeo

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	Identifier = "vimeo.update_video"
	APIBase    = "https://api.vimeo.com"
	// Accept pins the API version.
	Accept = "application/vnd.vimeo.*+json;version=3.4"
)

var privacyViews = []string{"anybody", "nobody", "password", "unlisted", "disable", "contacts", "users"}

func New() protocol.Node {
	return protocol.Node{Definition: Definition(), Executor: UpdateVideo{}}
}

func Definition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(Identifier, "Update Video",
		"Edits the metadata of a Vimeo video", models.CategoryTypeAction)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"video_id": map[string]any{"type": "string", "description": "Used when the input does not carry one"},
		},
	})

	def.InputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"video_id":    map[string]any{"type": "string"},
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"privacy":     map[string]any{"type": "string", "enum": privacyViews},
		},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"uri":         map[string]any{"type": "string"},
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"link":        map[string]any{"type": "string"},
		},
	})

	def.UIConfig = map[string]any{"icon": "vimeo", "color": "#1ab7ea"}

	return def
}
