// Package scalars holds the custom GraphQL scalars shared by every
// generated schema. Each scalar is a process-wide singleton because a
// schema may only contain one type per name.
package scalars

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// Variable marks a query variable referenced from inside a JSON literal.
// The value is bound lazily by the resolver from the request variables.
type Variable struct {
	Name string
}

var (
	nonNegativeInt = newNonNegativeInt()
	jsonScalar     = newJSON()
	dateScalar     = newDate()
)

// NonNegativeInt returns the shared NonNegativeInt scalar.
func NonNegativeInt() *graphql.Scalar { return nonNegativeInt }

// JSON returns the shared JSON scalar.
func JSON() *graphql.Scalar { return jsonScalar }

// Date returns the shared Date scalar.
func Date() *graphql.Scalar { return dateScalar }

func newNonNegativeInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "NonNegativeInt",
		Description: "An integer greater than or equal to zero.",
		Serialize: func(value interface{}) interface{} {
			if parsed, ok := coerceNonNegativeInt(value); ok {
				return parsed
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			if parsed, ok := coerceNonNegativeInt(value); ok {
				return parsed
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			intValue, ok := valueAST.(*ast.IntValue)
			if !ok {
				return nil
			}
			parsed, err := strconv.Atoi(intValue.Value)
			if err != nil || parsed < 0 {
				return nil
			}
			return parsed
		},
	})
}

func newJSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "Arbitrary JSON value.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err != nil {
					return string(v)
				}
				return decoded
			case json.RawMessage:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err != nil {
					slog.Default().Warn("failed to serialize JSON scalar", slog.String("error", err.Error()))
					return nil
				}
				return decoded
			default:
				return v
			}
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: parseJSONLiteral,
	})
}

func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if parsed, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return int(parsed)
		}
		return nil
	case *ast.FloatValue:
		if parsed, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return parsed
		}
		return nil
	case *ast.EnumValue:
		return v.Value
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = parseJSONLiteral(field.Value)
		}
		return out
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, parseJSONLiteral(item))
		}
		return out
	case *ast.Variable:
		return Variable{Name: v.Name.Value}
	default:
		return nil
	}
}

func newDate() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Date",
		Description: "Timestamp serialized as RFC 3339.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v.UTC().Format(time.RFC3339)
			case *time.Time:
				if v == nil {
					return nil
				}
				return v.UTC().Format(time.RFC3339)
			case string:
				return v
			case []byte:
				return string(v)
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v
			case string:
				return parseDate(v)
			default:
				return nil
			}
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return parseDate(sv.Value)
			}
			return nil
		},
	})
}

func parseDate(s string) interface{} {
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return parsed.UTC()
	}
	if parsed, err := time.Parse("2006-01-02", s); err == nil {
		return parsed
	}
	return nil
}

func coerceNonNegativeInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v < 0 {
			return 0, false
		}
		return v, true
	case int32:
		if v < 0 {
			return 0, false
		}
		return int(v), true
	case int64:
		if v < 0 || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
