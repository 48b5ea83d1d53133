package mapper

import (
	"strings"
)

// Source is one upstream field offered for mapping.
type Source struct {
	NodeID string `json:"node_id"`
	Field  string `json:"field"`
}

// Suggest proposes a mapping for the target fields by matching field names
// against the catalog. Names match ignoring case, '_' and '-'. When several
// sources match, the last one in the catalog wins, so callers list sources
// in execution order to prefer the closest upstream node.
func Suggest(targetFields []string, catalog []Source) map[string]string {
	mapping := make(map[string]string)

	for _, target := range targetFields {
		want := normalize(target)

		for i := len(catalog) - 1; i >= 0; i-- {
			if normalize(catalog[i].Field) == want {
				mapping[target] = "{{" + catalog[i].NodeID + "." + catalog[i].Field + "}}"

				break
			}
		}
	}

	return mapping
}

func normalize(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(name))
}
