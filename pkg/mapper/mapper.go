// Package mapper resolves {{nodeId.field}} templates against the outputs of
// earlier steps and the trigger payload.
package mapper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/dukex/conduit/pkg/models"
)

// TriggerNodeID addresses the trigger payload in templates.
const TriggerNodeID = models.TriggerNodeID

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_-]+)((?:\.[A-Za-z0-9_-]+)*)\s*\}\}`)

// Outputs maps a node id to the output it produced.
type Outputs map[string]map[string]any

// Reference is one placeholder found in a template.
type Reference struct {
	NodeID string
	Path   []string
}

func (r Reference) String() string {
	if len(r.Path) == 0 {
		return r.NodeID
	}

	return r.NodeID + "." + strings.Join(r.Path, ".")
}

// Warning flags a placeholder that could not be resolved.
type Warning struct {
	Target      string `json:"target"`
	Placeholder string `json:"placeholder"`
	Reason      string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: {{%s}} %s", w.Target, w.Placeholder, w.Reason)
}

// References lists the placeholders of a template in order of appearance.
func References(template string) []Reference {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	refs := make([]Reference, 0, len(matches))

	for _, m := range matches {
		refs = append(refs, parseReference(m))
	}

	return refs
}

func parseReference(match []string) Reference {
	ref := Reference{NodeID: match[1]}
	if match[2] != "" {
		ref.Path = strings.Split(strings.TrimPrefix(match[2], "."), ".")
	}

	return ref
}

// Resolve renders every target of the mapping. Unresolved placeholders become
// empty strings and produce a warning. A template made of exactly one
// placeholder yields the referenced value with its original type.
func Resolve(mapping map[string]string, outputs Outputs) (map[string]any, []Warning) {
	resolved := make(map[string]any, len(mapping))

	var warnings []Warning

	targets := make([]string, 0, len(mapping))
	for target := range mapping {
		targets = append(targets, target)
	}

	slices.Sort(targets)

	for _, target := range targets {
		value, targetWarnings := resolveTemplate(target, mapping[target], outputs)
		resolved[target] = value
		warnings = append(warnings, targetWarnings...)
	}

	return resolved, warnings
}

func resolveTemplate(target, template string, outputs Outputs) (any, []Warning) {
	trimmed := strings.TrimSpace(template)

	if loc := placeholderPattern.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		ref := parseReference(placeholderPattern.FindStringSubmatch(trimmed))

		value, reason := Lookup(outputs, ref)
		if reason != "" {
			return "", []Warning{{Target: target, Placeholder: ref.String(), Reason: reason}}
		}

		return value, nil
	}

	var warnings []Warning

	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		ref := parseReference(placeholderPattern.FindStringSubmatch(match))

		value, reason := Lookup(outputs, ref)
		if reason != "" {
			warnings = append(warnings, Warning{Target: target, Placeholder: ref.String(), Reason: reason})

			return ""
		}

		return Stringify(value)
	})

	return rendered, warnings
}

// Lookup follows a reference through the outputs. The reason is empty when
// the value was found.
func Lookup(outputs Outputs, ref Reference) (any, string) {
	output, ok := outputs[ref.NodeID]
	if !ok {
		return nil, "node has no output"
	}

	var current any = output

	for i, segment := range ref.Path {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[segment]
			if !ok {
				return nil, fmt.Sprintf("field %q not found", strings.Join(ref.Path[:i+1], "."))
			}

			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Sprintf("index %q out of range", strings.Join(ref.Path[:i+1], "."))
			}

			current = v[idx]
		default:
			return nil, fmt.Sprintf("field %q not found", strings.Join(ref.Path[:i+1], "."))
		}
	}

	return current, ""
}

// Stringify renders a value for substitution inside a larger string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(b)
	}
}
