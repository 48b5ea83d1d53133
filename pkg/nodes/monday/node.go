package monday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

var ErrGraphQL = errors.New("monday api returned errors")

const createItemMutation = `mutation ($board: ID!, $group: String, $name: String!, $columns: JSON) {
  create_item (board_id: $board, group_id: $group, item_name: $name, column_values: $columns) {
    id
    name
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		CreateItem *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"create_item"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	ErrorMessage string `json:"error_message"`
}

// CreateItem runs the create_item mutation.
type CreateItem struct{}

func (CreateItem) Execute(ctx context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	board, err := nodeutil.RequireSetting(ectx, "board_id")
	if err != nil {
		return protocol.Failure(err)
	}

	name := nodeutil.String(input, "item_name")
	if name == "" {
		return protocol.Failure(fmt.Errorf("%w: item_name", nodeutil.ErrMissingInput))
	}

	variables := map[string]any{"board": board, "name": name}

	if group := nodeutil.Setting(ectx, "group_id"); group != "" {
		variables["group"] = group
	}

	// column_values travels as a JSON-encoded string.
	if columns, ok := input["column_values"]; ok && columns != nil {
		encoded, err := json.Marshal(columns)
		if err != nil {
			return protocol.Failure(fmt.Errorf("failed to encode column_values: %w", err))
		}

		variables["columns"] = string(encoded)
	}

	header := http.Header{}
	header.Set("API-Version", APIVersion)

	resp, err := nodeutil.CallJSON(ctx, ectx, http.MethodPost, nodeutil.BaseURL(ectx, APIURL),
		graphQLRequest{Query: createItemMutation, Variables: variables}, header)
	if err != nil {
		return protocol.Failure(err)
	}

	var out graphQLResponse

	err = resp.JSON(&out)
	if err != nil {
		return protocol.Failure(err)
	}

	if len(out.Errors) > 0 || out.ErrorMessage != "" {
		messages := make([]string, 0, len(out.Errors)+1)
		for _, e := range out.Errors {
			messages = append(messages, e.Message)
		}

		if out.ErrorMessage != "" {
			messages = append(messages, out.ErrorMessage)
		}

		return protocol.Failure(fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(messages, "; ")))
	}

	if out.Data.CreateItem == nil {
		return protocol.Failure(fmt.Errorf("%w: create_item returned no item", ErrGraphQL))
	}

	return protocol.Success(map[string]any{
		"id":   out.Data.CreateItem.ID,
		"name": out.Data.CreateItem.Name,
	})
}
