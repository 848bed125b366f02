package sqlstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/sqlutil"
	"entity-graphql/internal/store"
)

// buildWhere converts a filter into a squirrel condition with columns
// qualified by alias. A nil condition means no restriction.
func buildWhere(d *entity.Descriptor, alias string, f store.Filter) (sq.Sqlizer, error) {
	if len(f) == 0 {
		return nil, nil
	}
	expr, err := store.ParseFilter(d, f)
	if err != nil {
		return nil, err
	}
	return exprSqlizer(d, alias, expr)
}

func exprSqlizer(d *entity.Descriptor, alias string, e store.Expr) (sq.Sqlizer, error) {
	if e.Cond != nil {
		return conditionSqlizer(d, alias, *e.Cond)
	}
	if len(e.Or) > 0 {
		parts, err := groupSqlizers(d, alias, e.Or)
		if err != nil {
			return nil, err
		}
		return sq.Or(parts), nil
	}
	if len(e.And) == 0 {
		return nil, nil
	}
	parts, err := groupSqlizers(d, alias, e.And)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return sq.And(parts), nil
}

func groupSqlizers(d *entity.Descriptor, alias string, exprs []store.Expr) ([]sq.Sqlizer, error) {
	parts := make([]sq.Sqlizer, 0, len(exprs))
	for _, sub := range exprs {
		cond, err := exprSqlizer(d, alias, sub)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			parts = append(parts, cond)
		}
	}
	return parts, nil
}

func conditionSqlizer(d *entity.Descriptor, alias string, c store.Condition) (sq.Sqlizer, error) {
	f, ok := d.Field(c.Field)
	if !ok {
		return nil, fmt.Errorf("unknown filter field %s on %s", c.Field, d.Name)
	}
	column := sqlutil.QualifiedIdentifier(alias, f.ColumnName())

	switch c.Op {
	case store.OpEq:
		return sq.Eq{column: c.Value}, nil
	case store.OpNe:
		return sq.NotEq{column: c.Value}, nil
	case store.OpLt:
		return sq.Lt{column: c.Value}, nil
	case store.OpLte:
		return sq.LtOrEq{column: c.Value}, nil
	case store.OpGt:
		return sq.Gt{column: c.Value}, nil
	case store.OpGte:
		return sq.GtOrEq{column: c.Value}, nil
	case store.OpIn:
		return sq.Eq{column: c.Value}, nil
	case store.OpNotIn:
		return sq.NotEq{column: c.Value}, nil
	case store.OpLike:
		return sq.Like{column: c.Value}, nil
	case store.OpNotLike:
		return sq.NotLike{column: c.Value}, nil
	case store.OpIsNull:
		if want, _ := c.Value.(bool); want {
			return sq.Eq{column: nil}, nil
		}
		return sq.NotEq{column: nil}, nil
	default:
		return nil, fmt.Errorf("unknown filter operator: %s", c.Op)
	}
}
