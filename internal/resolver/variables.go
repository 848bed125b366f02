package resolver

import (
	"entity-graphql/internal/scalars"
)

// VarFunc is a filter value computed from the operation's bound variables
// at resolve time.
type VarFunc func(vars map[string]interface{}) interface{}

// varRefKey marks a {"$var": "name"} reference inside a JSON filter.
const varRefKey = "$var"

// substituteVariables returns a copy of value with every variable reference
// replaced by its bound value. Maps and lists are processed recursively.
func substituteVariables(value interface{}, vars map[string]interface{}) interface{} {
	switch v := value.(type) {
	case VarFunc:
		return v(vars)
	case func(map[string]interface{}) interface{}:
		return v(vars)
	case scalars.Variable:
		return vars[v.Name]
	case map[string]interface{}:
		if len(v) == 1 {
			if name, ok := v[varRefKey].(string); ok {
				return vars[name]
			}
		}
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = substituteVariables(item, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = substituteVariables(item, vars)
		}
		return out
	default:
		return value
	}
}

// filterArg reads a JSON filter argument and resolves its variables.
func filterArg(args map[string]interface{}, name string, vars map[string]interface{}) map[string]interface{} {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil
	}
	resolved, _ := substituteVariables(raw, vars).(map[string]interface{})
	return resolved
}
