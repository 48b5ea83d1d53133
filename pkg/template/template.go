// Package template renders Go text/template expressions used by transform
// and log nodes.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/conduit/pkg/protocol"
)

// Data builds the template root for a node execution: the resolved input,
// the trigger payload, the node config and run identifiers.
func Data(ectx *protocol.ExecutionContext, input map[string]any) map[string]any {
	data := map[string]any{
		"input":  input,
		"config": ectx.Config,
		"run": map[string]any{
			"id":          ectx.RunID,
			"scenario_id": ectx.ScenarioID,
			"node_id":     ectx.NodeID,
		},
	}

	if ectx.Trigger != nil {
		data["trigger"] = ectx.Trigger.Data
		data["trigger_type"] = ectx.Trigger.TriggerType
	}

	return data
}

func RenderWithContext(input string, ectx *protocol.ExecutionContext, nodeInput map[string]any) (any, error) {
	return Render(input, Data(ectx, nodeInput))
}

// Render executes templateStr against data. Output that looks like JSON,
// a number or a boolean is decoded into the matching Go value.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)

				return string(b), err
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
