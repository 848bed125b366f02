package memstore

import (
	"fmt"
	"sort"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/store"
)

// selectRows applies filters, ordering and pagination to candidates. When
// through is set, each candidate carries its through row under throughKey
// and edge filters and orders read from it.
func (s *Store) selectRows(d, through *entity.Descriptor, throughKey string, candidates []entity.Record, opts store.FindOptions) ([]entity.Record, error) {
	where, err := s.scopes.Apply(d.Name, opts.Scope, opts.Where)
	if err != nil {
		return nil, err
	}
	expr, err := store.ParseFilter(d, where)
	if err != nil {
		return nil, err
	}
	var edgeExpr store.Expr
	if through != nil && len(opts.WhereEdges) > 0 {
		edgeExpr, err = store.ParseFilter(through, opts.WhereEdges)
		if err != nil {
			return nil, err
		}
	}
	for _, o := range opts.Order {
		owner := d
		if o.Edge {
			if through == nil {
				return nil, fmt.Errorf("edge order on %s without a through entity", d.Name)
			}
			owner = through
		}
		if !owner.HasField(o.Field) {
			return nil, fmt.Errorf("unknown order field %s on %s", o.Field, owner.Name)
		}
	}

	out := make([]entity.Record, 0, len(candidates))
	for _, row := range candidates {
		if opts.Paranoid && softDeleted(d, row) {
			continue
		}
		if !matchExpr(row, expr) {
			continue
		}
		if through != nil && !edgeExpr.Empty() {
			edge, _ := row[throughKey].(entity.Record)
			if edge == nil || !matchExpr(edge, edgeExpr) {
				continue
			}
		}
		out = append(out, row)
	}

	if len(opts.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range opts.Order {
				a, b := orderValue(out[i], o, throughKey), orderValue(out[j], o, throughKey)
				c := compareForSort(a, b)
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			out = out[:0]
		} else {
			out = out[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}

	result := make([]entity.Record, len(out))
	for i, row := range out {
		result[i] = copyRecord(row)
	}
	return result, nil
}

func orderValue(row entity.Record, o store.Order, throughKey string) interface{} {
	if o.Edge {
		edge, _ := row[throughKey].(entity.Record)
		if edge == nil {
			return nil
		}
		return edge[o.Field]
	}
	return row[o.Field]
}

func matchExpr(row entity.Record, e store.Expr) bool {
	if e.Cond != nil {
		return matchCondition(row[e.Cond.Field], *e.Cond)
	}
	for _, sub := range e.And {
		if !matchExpr(row, sub) {
			return false
		}
	}
	if len(e.Or) > 0 {
		for _, sub := range e.Or {
			if matchExpr(row, sub) {
				return true
			}
		}
		return false
	}
	return true
}

// matchCondition follows SQL semantics: comparisons against NULL are false.
func matchCondition(value interface{}, c store.Condition) bool {
	switch c.Op {
	case store.OpIsNull:
		want, _ := c.Value.(bool)
		return (value == nil) == want
	case store.OpEq:
		if c.Value == nil {
			return value == nil
		}
		return value != nil && equalValues(value, c.Value)
	case store.OpNe:
		if c.Value == nil {
			return value != nil
		}
		return value != nil && !equalValues(value, c.Value)
	case store.OpIn, store.OpNotIn:
		if value == nil {
			return false
		}
		items, _ := c.Value.([]interface{})
		found := false
		for _, item := range items {
			if equalValues(value, item) {
				found = true
				break
			}
		}
		return found == (c.Op == store.OpIn)
	case store.OpLike, store.OpNotLike:
		if value == nil {
			return false
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		return likeMatch(fmt.Sprint(value), pattern) == (c.Op == store.OpLike)
	default:
		if value == nil || c.Value == nil {
			return false
		}
		cmp, ok := compareValues(value, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case store.OpGt:
			return cmp > 0
		case store.OpGte:
			return cmp >= 0
		case store.OpLt:
			return cmp < 0
		case store.OpLte:
			return cmp <= 0
		}
	}
	return false
}

func matchesKeys(row, keys entity.Record) bool {
	for k, v := range keys {
		if !equalValues(row[k], v) {
			return false
		}
	}
	return true
}

func copyRecord(rec entity.Record) entity.Record {
	out := make(entity.Record, len(rec))
	for k, v := range rec {
		if nested, ok := v.(entity.Record); ok {
			v = copyRecord(nested)
		}
		out[k] = v
	}
	return out
}
