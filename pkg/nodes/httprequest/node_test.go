package httprequest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/schema"
	"github.com/dukex/conduit/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_SchemasParse(t *testing.T) {
	t.Parallel()

	def := Definition()
	assert.Equal(t, "httprequest", def.IntegrationType)

	for _, doc := range [][]byte{def.InputSchema, def.OutputSchema, def.ConfigSchema} {
		_, err := schema.Parse(doc)
		require.NoError(t, err)
	}
}

func TestExecute_PostsJSONBody(t *testing.T) {
	t.Parallel()

	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/hooks", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("page"))
		assert.Equal(t, "conduit", r.Header.Get("X-Source"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	ectx := testutil.ExecutionContext(t, nil, map[string]any{
		"url":     server.URL + "/hooks",
		"method":  "post",
		"headers": map[string]any{"X-Source": "conduit"},
	})

	res := Executor{}.Execute(t.Context(), ectx, map[string]any{
		"body":  map[string]any{"title": "Hello"},
		"query": map[string]any{"page": 42},
	})

	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusCreated, res.Output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, res.Output["body"])
	assert.Equal(t, "application/json", res.Output["headers"].(map[string]any)["Content-Type"])
	assert.Equal(t, map[string]any{"title": "Hello"}, got)
}

func TestExecute_RelativeURLUsesConnectionBase(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/status", r.URL.Path)
		_, _ = w.Write([]byte("fine"))
	}))
	defer server.Close()

	conn := testutil.Connection(Identifier, server.URL+"/v1/")
	ectx := testutil.ExecutionContext(t, conn, map[string]any{"url": "/status"})

	res := Executor{}.Execute(t.Context(), ectx, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "fine", res.Output["body"])
}

func TestExecute_ErrorStatusFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "missing"}`))
	}))
	defer server.Close()

	ectx := testutil.ExecutionContext(t, nil, map[string]any{"url": server.URL})

	res := Executor{}.Execute(t.Context(), ectx, nil)

	var apiErr *apiclient.ExternalAPIError
	require.ErrorAs(t, res.Err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig(map[string]any{})
	require.Error(t, err)

	cfg, err := ParseConfig(map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, cfg.Method)
	assert.Empty(t, cfg.Headers)
}
