package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/mapper"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

// Config is the parsed node configuration.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
}

// ParseConfig reads the node config, applying defaults.
func ParseConfig(config map[string]any) (Config, error) {
	cfg := Config{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return cfg, fmt.Errorf("%w: url", nodeutil.ErrMissingConfig)
	}

	cfg.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		cfg.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				cfg.Headers[k] = strVal
			}
		}
	}

	return cfg, nil
}

// Executor performs the request.
type Executor struct{}

func (Executor) Execute(ctx context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	cfg, err := ParseConfig(ectx.Config)
	if err != nil {
		return protocol.Failure(err)
	}

	if ectx.Client == nil {
		return protocol.Failure(nodeutil.ErrNoClient)
	}

	target := cfg.URL
	if override := nodeutil.String(input, "url"); override != "" {
		target = override
	}

	if !strings.Contains(target, "://") {
		target = nodeutil.BaseURL(ectx, "") + "/" + strings.TrimLeft(target, "/")
	}

	body, err := encodeBody(input["body"])
	if err != nil {
		return protocol.Failure(err)
	}

	req, err := auth.NewRequest(cfg.Method, target, body)
	if err != nil {
		return protocol.Failure(err)
	}

	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	if headers, ok := input["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, mapper.Stringify(v))
		}
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if query, ok := input["query"].(map[string]any); ok {
		for k, v := range query {
			req.SetQuery(k, mapper.Stringify(v))
		}
	}

	resp, err := ectx.Client.Call(ctx, req)
	if err != nil {
		return protocol.Failure(err)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		decoded = string(resp.Body)
	}

	return protocol.Success(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        decoded,
	})
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	default:
		out, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		return out, nil
	}
}
