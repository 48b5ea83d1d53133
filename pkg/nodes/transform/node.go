package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

// Node renders the configured expression. Object results are also spread
// into the output so downstream mappings can address their fields directly.
type Node struct{}

func (Node) Execute(_ context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	expression, ok := ectx.Config["expression"].(string)
	if !ok {
		return protocol.Failure(errors.New("missing required field 'expression'"))
	}

	result, err := template.RenderWithContext(expression, ectx, input)
	if err != nil {
		return protocol.Failure(fmt.Errorf("transformation failed: %w", err))
	}

	output := map[string]any{}

	if fields, ok := result.(map[string]any); ok {
		for k, v := range fields {
			output[k] = v
		}
	}

	output["result"] = result

	return protocol.Success(output)
}
