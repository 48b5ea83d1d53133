package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Concatenation(t *testing.T) {
	t.Parallel()

	resolved, warnings := Resolve(
		map[string]string{"target": "{{node1.foo}}-{{node2.bar}}"},
		Outputs{"node1": {"foo": "x"}, "node2": {"bar": "y"}},
	)

	assert.Empty(t, warnings)
	assert.Equal(t, map[string]any{"target": "x-y"}, resolved)
}

func TestResolve_MissingReference(t *testing.T) {
	t.Parallel()

	resolved, warnings := Resolve(
		map[string]string{
			"title": "Post {{node1.missing}}!",
			"body":  "{{ghost.content}}",
		},
		Outputs{"node1": {"foo": "x"}},
	)

	assert.Equal(t, "Post !", resolved["title"])
	assert.Equal(t, "", resolved["body"])
	require.Len(t, warnings, 2)
	assert.Equal(t, Warning{Target: "body", Placeholder: "ghost.content", Reason: "node has no output"}, warnings[0])
	assert.Equal(t, "title", warnings[1].Target)
	assert.Equal(t, "node1.missing", warnings[1].Placeholder)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	outputs := Outputs{
		"trigger": {"id": float64(42), "action": "publish_post", "author": map[string]any{"name": "Ada"}},
		"fetch":   {"tags": []any{"go", "api"}, "ok": true},
	}

	tests := []struct {
		name     string
		template string
		want     any
	}{
		{"literal", "hello", "hello"},
		{"native number", "{{trigger.id}}", float64(42)},
		{"native with spaces", "  {{ trigger.id }} ", float64(42)},
		{"number in string", "post-{{trigger.id}}", "post-42"},
		{"nested field", "{{trigger.author.name}}", "Ada"},
		{"array index", "{{fetch.tags.1}}", "api"},
		{"array in string", "tags={{fetch.tags}}", `tags=["go","api"]`},
		{"bool in string", "ok={{fetch.ok}}", "ok=true"},
		{"whole output", "{{trigger.author}}", map[string]any{"name": "Ada"}},
		{"unterminated", "{{trigger.id", "{{trigger.id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolved, warnings := Resolve(map[string]string{"v": tt.template}, outputs)
			assert.Empty(t, warnings)
			assert.Equal(t, tt.want, resolved["v"])
		})
	}
}

func TestResolve_OrderIndependent(t *testing.T) {
	t.Parallel()

	mapping := map[string]string{
		"a": "{{n.a}}", "b": "{{n.b}}", "c": "{{n.c}}", "d": "{{n.missing}}", "e": "{{n.a}}{{n.b}}",
	}
	outputs := Outputs{"n": {"a": "1", "b": "2", "c": "3"}}

	first, firstWarnings := Resolve(mapping, outputs)

	for range 20 {
		again, againWarnings := Resolve(mapping, outputs)
		assert.Equal(t, first, again)
		assert.Equal(t, firstWarnings, againWarnings)
	}

	assert.Equal(t, "12", first["e"])
}

func TestResolve_BadIndex(t *testing.T) {
	t.Parallel()

	_, warnings := Resolve(map[string]string{"v": "{{n.list.9}}"}, Outputs{"n": {"list": []any{"a"}}})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "out of range")
}

func TestReferences(t *testing.T) {
	t.Parallel()

	refs := References("{{trigger.id}} and {{node_1.data.title}} and {{ whole }}")
	require.Len(t, refs, 3)
	assert.Equal(t, Reference{NodeID: "trigger", Path: []string{"id"}}, refs[0])
	assert.Equal(t, "node_1.data.title", refs[1].String())
	assert.Equal(t, "whole", refs[2].String())
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	catalog := []Source{
		{NodeID: "trigger", Field: "title"},
		{NodeID: "trigger", Field: "post_id"},
		{NodeID: "fetch", Field: "Title"},
	}

	mapping := Suggest([]string{"title", "postId", "content"}, catalog)

	assert.Equal(t, map[string]string{
		"title":  "{{fetch.Title}}",
		"postId": "{{trigger.post_id}}",
	}, mapping)
}
