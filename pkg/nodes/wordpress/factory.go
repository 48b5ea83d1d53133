// Package wordpress provides WordPress REST API nodes.
package wordpress

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	CreatePostIdentifier    = "wordpress.create_post"
	PostPublishedIdentifier = "wordpress.post_published"
)

var postStatuses = []string{"draft", "publish", "pending", "private"}

// Nodes returns every WordPress node.
func Nodes() []protocol.Node {
	return []protocol.Node{
		{Definition: CreatePostDefinition(), Executor: CreatePost{}},
		{Definition: PostPublishedDefinition(), Executor: protocol.ExecutorFunc(passthrough)},
	}
}

func CreatePostDefinition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(CreatePostIdentifier, "Create Post",
		"Creates a post through the WordPress REST API", models.CategoryTypeAction)

	def.ConfigSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"site_url": map[string]any{
				"type":        "string",
				"description": "Site root, e.g. https://blog.example.com. Defaults to the connection's site_url",
			},
			"status": map[string]any{
				"type":        "string",
				"description": "Status used when the input does not set one",
				"enum":        postStatuses,
				"default":     "draft",
			},
		},
	})

	def.InputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":      map[string]any{"type": "string"},
			"content":    map[string]any{"type": "string"},
			"excerpt":    map[string]any{"type": "string"},
			"status":     map[string]any{"type": "string", "enum": postStatuses},
			"categories": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
		"required": []string{"title"},
	})

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":     map[string]any{"type": "integer"},
			"link":   map[string]any{"type": "string"},
			"status": map[string]any{"type": "string"},
			"title":  map[string]any{"type": "string"},
		},
	})

	def.UIConfig = map[string]any{"icon": "wordpress", "color": "#21759b"}

	return def
}

// PostPublishedDefinition describes the event emitted when a post goes live.
// Scenarios map its fields from the trigger payload.
func PostPublishedDefinition() models.IntegrationNodeDefinition {
	def := nodeutil.Definition(PostPublishedIdentifier, "Post Published",
		"Fires when a WordPress post is published", models.CategoryTypeTrigger)

	def.OutputSchema = nodeutil.Schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"post_id": map[string]any{"type": "integer"},
			"title":   map[string]any{"type": "string"},
			"link":    map[string]any{"type": "string"},
			"author":  map[string]any{"type": "string"},
			"excerpt": map[string]any{"type": "string"},
		},
	})

	def.UIConfig = map[string]any{"icon": "wordpress", "color": "#21759b"}

	return def
}
