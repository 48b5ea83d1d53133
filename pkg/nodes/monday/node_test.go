package monday

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/conduit/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItem(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, APIVersion, r.Header.Get("API-Version"))

		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "create_item")
		assert.Equal(t, "123", req.Variables["board"])
		assert.Equal(t, "topics", req.Variables["group"])
		assert.Equal(t, "Hello world", req.Variables["name"])
		assert.JSONEq(t, `{"status": {"label": "Done"}}`, req.Variables["columns"].(string))

		_, _ = w.Write([]byte(`{"data": {"create_item": {"id": "555", "name": "Hello world"}}}`))
	}))
	defer server.Close()

	conn := testutil.Connection(Identifier, server.URL)
	ectx := testutil.ExecutionContext(t, conn, map[string]any{"board_id": "123", "group_id": "topics"})

	res := CreateItem{}.Execute(t.Context(), ectx, map[string]any{
		"item_name":     "Hello world",
		"column_values": map[string]any{"status": map[string]any{"label": "Done"}},
	})

	require.NoError(t, res.Err)
	assert.Equal(t, map[string]any{"id": "555", "name": "Hello world"}, res.Output)
}

func TestCreateItem_GraphQLErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "Board not found"}]}`))
	}))
	defer server.Close()

	conn := testutil.Connection(Identifier, server.URL)
	ectx := testutil.ExecutionContext(t, conn, map[string]any{"board_id": "404"})

	res := CreateItem{}.Execute(t.Context(), ectx, map[string]any{"item_name": "x"})

	require.ErrorIs(t, res.Err, ErrGraphQL)
	assert.Contains(t, res.Err.Error(), "Board not found")
}
