package store

import (
	"fmt"
	"sort"

	"entity-graphql/internal/entity"
)

// Filter operators.
const (
	OpEq      = "eq"
	OpNe      = "ne"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLt      = "lt"
	OpLte     = "lte"
	OpIn      = "in"
	OpNotIn   = "notIn"
	OpLike    = "like"
	OpNotLike = "notLike"
	OpIsNull  = "isNull"
)

// Condition is a single field comparison.
type Condition struct {
	Field string
	Op    string
	Value interface{}
}

// Expr is a parsed filter: either a conjunction, a disjunction or a leaf.
type Expr struct {
	And  []Expr
	Or   []Expr
	Cond *Condition
}

// Empty reports whether the expression matches everything.
func (e Expr) Empty() bool {
	return e.Cond == nil && len(e.And) == 0 && len(e.Or) == 0
}

// ParseFilter validates f against d and returns its expression tree. The
// top level is a conjunction of the field conditions and and/or groups.
// Keys are visited in sorted order so generated SQL is stable.
func ParseFilter(d *entity.Descriptor, f Filter) (Expr, error) {
	var out Expr
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := f[key]
		switch key {
		case "and", "AND", "or", "OR":
			items, err := filterList(key, value)
			if err != nil {
				return Expr{}, err
			}
			group := make([]Expr, 0, len(items))
			for _, item := range items {
				sub, err := ParseFilter(d, item)
				if err != nil {
					return Expr{}, err
				}
				if !sub.Empty() {
					group = append(group, sub)
				}
			}
			if len(group) == 0 {
				continue
			}
			if key == "and" || key == "AND" {
				out.And = append(out.And, Expr{And: group})
			} else {
				out.And = append(out.And, Expr{Or: group})
			}
		default:
			if !d.HasField(key) {
				return Expr{}, fmt.Errorf("unknown filter field %s on %s", key, d.Name)
			}
			conds, err := fieldConditions(key, value)
			if err != nil {
				return Expr{}, err
			}
			for i := range conds {
				out.And = append(out.And, Expr{Cond: &conds[i]})
			}
		}
	}
	return out, nil
}

func filterList(key string, value interface{}) ([]Filter, error) {
	switch v := value.(type) {
	case []interface{}:
		out := make([]Filter, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s array items must be objects", key)
			}
			out = append(out, m)
		}
		return out, nil
	case []map[string]interface{}:
		out := make([]Filter, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array", key)
	}
}

func fieldConditions(field string, value interface{}) ([]Condition, error) {
	switch v := value.(type) {
	case nil:
		return []Condition{{Field: field, Op: OpIsNull, Value: true}}, nil
	case []interface{}:
		return []Condition{{Field: field, Op: OpIn, Value: v}}, nil
	case map[string]interface{}:
		ops := make([]string, 0, len(v))
		for op := range v {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		conds := make([]Condition, 0, len(ops))
		for _, op := range ops {
			operand := v[op]
			switch op {
			case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpLike, OpNotLike:
			case OpIn, OpNotIn:
				if _, ok := operand.([]interface{}); !ok {
					return nil, fmt.Errorf("%s operator requires an array", op)
				}
			case OpIsNull:
				if _, ok := operand.(bool); !ok {
					return nil, fmt.Errorf("isNull operator requires a boolean")
				}
			default:
				return nil, fmt.Errorf("unknown filter operator: %s", op)
			}
			conds = append(conds, Condition{Field: field, Op: op, Value: operand})
		}
		return conds, nil
	default:
		return []Condition{{Field: field, Op: OpEq, Value: v}}, nil
	}
}
