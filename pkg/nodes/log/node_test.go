package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/conduit/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Execute_Info(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ectx := testutil.ExecutionContext(t, nil, map[string]any{
		"message": "Processing post: {{ .input.title }}",
		"level":   "info",
	})
	ectx.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	res := Node{}.Execute(t.Context(), ectx, map[string]any{"title": "Hello"})

	require.NoError(t, res.Err)
	assert.Equal(t, "Processing post: Hello", res.Output["message"])
	assert.Equal(t, "info", res.Output["level"])
	assert.Equal(t, true, res.Output["logged"])
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), `msg="Processing post: Hello"`)
	assert.Contains(t, buf.String(), "run_id=run-test")
}

func TestNode_Execute_Levels(t *testing.T) {
	t.Parallel()

	for _, level := range levelNames() {
		t.Run(level, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			ectx := testutil.ExecutionContext(t, nil, map[string]any{"message": "m", "level": level})
			ectx.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			res := Node{}.Execute(t.Context(), ectx, nil)

			require.NoError(t, res.Err)
			assert.Equal(t, level, res.Output["level"])
			assert.NotEmpty(t, buf.String())
		})
	}
}

func TestNode_Execute_InvalidConfig(t *testing.T) {
	t.Parallel()

	res := Node{}.Execute(t.Context(), testutil.ExecutionContext(t, nil, map[string]any{}), nil)
	require.Error(t, res.Err)

	res = Node{}.Execute(t.Context(), testutil.ExecutionContext(t, nil, map[string]any{"message": "m", "level": "fatal"}), nil)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid log level")
}

func TestNode_Execute_TriggerData(t *testing.T) {
	t.Parallel()

	ectx := testutil.ExecutionContext(t, nil, map[string]any{"message": "post {{ .trigger.post_id }} published"})
	ectx.Trigger.Data = map[string]any{"post_id": 42}

	res := Node{}.Execute(t.Context(), ectx, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "post 42 published", res.Output["message"])
}
