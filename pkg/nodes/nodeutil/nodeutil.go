// Package nodeutil holds helpers shared by the built-in integration nodes.
package nodeutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/conduit/pkg/apiclient"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

var (
	ErrNoClient      = errors.New("node has no api client")
	ErrMissingConfig = errors.New("missing required config")
	ErrMissingInput  = errors.New("missing required input")
)

// Version is the definition version shared by the built-in nodes.
const Version = "1.0.0"

// Schema encodes a schema literal. It panics on values JSON cannot encode,
// which only happens for programming errors in a node definition.
func Schema(doc map[string]any) json.RawMessage {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("nodeutil: invalid schema literal: %v", err))
	}

	return b
}

// Definition fills the fields every built-in definition shares.
func Definition(identifier, name, description string, category models.CategoryType) models.IntegrationNodeDefinition {
	integration, _, _ := strings.Cut(identifier, ".")

	return models.IntegrationNodeDefinition{
		Identifier:      identifier,
		Name:            name,
		Description:     description,
		Category:        category,
		IntegrationType: integration,
		Version:         Version,
		Tags:            []string{integration},
	}
}

// BaseURL returns the connection's base_url override, or fallback.
// The result never ends in a slash.
func BaseURL(ectx *protocol.ExecutionContext, fallback string) string {
	base := fallback
	if override := ectx.Connection.ConfigString("base_url"); override != "" {
		base = override
	}

	return strings.TrimRight(base, "/")
}

// Setting reads a string from the node config, then the connection config.
func Setting(ectx *protocol.ExecutionContext, key string) string {
	if v := ectx.ConfigString(key); v != "" {
		return v
	}

	return ectx.Connection.ConfigString(key)
}

// RequireSetting is Setting that fails when the value is empty.
func RequireSetting(ectx *protocol.ExecutionContext, key string) (string, error) {
	v := Setting(ectx, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingConfig, key)
	}

	return v, nil
}

// String reads a string input field.
func String(input map[string]any, key string) string {
	v, _ := input[key].(string)

	return v
}

// Compact drops nil values and empty strings so optional fields are not
// sent to APIs that reject them.
func Compact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))

	for k, v := range fields {
		if v == nil {
			continue
		}

		if s, ok := v.(string); ok && s == "" {
			continue
		}

		out[k] = v
	}

	return out
}

// CallJSON sends body encoded as JSON through the node's client. A nil body
// sends no payload.
func CallJSON(ctx context.Context, ectx *protocol.ExecutionContext, method, rawURL string, body any, header http.Header) (*apiclient.Response, error) {
	if ectx.Client == nil {
		return nil, ErrNoClient
	}

	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := auth.NewRequest(method, rawURL, payload)
	if err != nil {
		return nil, err
	}

	for key, values := range header {
		req.Header[key] = values
	}

	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	return ectx.Client.Call(ctx, req)
}

// DecodeObject decodes a JSON object response body.
func DecodeObject(resp *apiclient.Response) (map[string]any, error) {
	out := map[string]any{}
	if len(resp.Body) == 0 {
		return out, nil
	}

	err := resp.JSON(&out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Pick copies the listed keys that are present in src.
func Pick(src map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))

	for _, k := range keys {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}

	return out
}
