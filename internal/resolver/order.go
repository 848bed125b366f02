package resolver

import (
	"strings"

	"entity-graphql/internal/store"
)

const reversePrefix = "reverse:"

// parseOrder splits a comma separated order argument. A clause prefixed
// with "reverse:" or suffixed with ".desc" sorts descending; ".asc" is
// accepted and ignored.
func parseOrder(raw string, edge bool) []store.Order {
	var out []store.Order
	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		o := store.Order{Edge: edge}
		if strings.HasPrefix(clause, reversePrefix) {
			o.Desc = true
			clause = strings.TrimSpace(strings.TrimPrefix(clause, reversePrefix))
		}
		lower := strings.ToLower(clause)
		switch {
		case strings.HasSuffix(lower, ".desc"):
			o.Desc = true
			clause = clause[:len(clause)-len(".desc")]
		case strings.HasSuffix(lower, ".asc"):
			clause = clause[:len(clause)-len(".asc")]
		}
		if clause == "" {
			continue
		}
		o.Field = clause
		out = append(out, o)
	}
	return out
}
