package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/sqlutil"
	"entity-graphql/internal/store"
)

// relatedQuery selects the targets of acc linked to source. The boolean is
// false when source carries no key to join on.
func (s *Store) relatedQuery(acc store.Accessor, source entity.Record, cols []string) (sq.SelectBuilder, bool, error) {
	a := acc.Association
	target := acc.Target
	q := sq.Select(cols...).From(fromClause(target, tableAlias))

	switch a.Kind {
	case entity.ToOneOwning:
		fk := source[a.ForeignKey]
		if fk == nil {
			return q, false, nil
		}
		return q.Where(sq.Eq{sqlutil.QualifiedIdentifier(tableAlias, column(target, target.PrimaryKey())): fk}), true, nil
	case entity.ToOne, entity.ToMany:
		key := source[acc.Source.PrimaryKey()]
		if key == nil {
			return q, false, nil
		}
		return q.Where(sq.Eq{sqlutil.QualifiedIdentifier(tableAlias, column(target, a.ForeignKey)): key}), true, nil
	case entity.ToManyThrough:
		through := acc.Through
		if through == nil {
			return q, false, fmt.Errorf("association %s has no through entity", a.Name)
		}
		key := source[acc.Source.PrimaryKey()]
		if key == nil {
			return q, false, nil
		}
		join := fmt.Sprintf("%s ON %s = %s",
			fromClause(through, throughAlias),
			sqlutil.QualifiedIdentifier(throughAlias, column(through, a.OtherKey)),
			sqlutil.QualifiedIdentifier(tableAlias, column(target, target.PrimaryKey())))
		q = q.Join(join).Where(sq.Eq{sqlutil.QualifiedIdentifier(throughAlias, column(through, a.ForeignKey)): key})
		if through.Paranoid {
			q = q.Where(sq.Eq{sqlutil.QualifiedIdentifier(throughAlias, column(through, entity.DeletedAtField)): nil})
		}
		return q, true, nil
	}
	return q, false, fmt.Errorf("unsupported association kind %q", a.Kind)
}

func (s *Store) Related(ctx context.Context, acc store.Accessor, source entity.Record, opts store.FindOptions) ([]entity.Record, error) {
	cols := selectColumns(acc.Target, tableAlias)
	if acc.Through != nil {
		cols = append(cols, selectColumns(acc.Through, throughAlias)...)
	}
	q, ok, err := s.relatedQuery(acc, source, cols)
	if err != nil || !ok {
		return nil, err
	}
	q, err = s.applyOptions(q, acc.Target, acc.Through, opts)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, q, acc.Target, acc.Through, acc.ThroughKey())
}

func (s *Store) CountRelated(ctx context.Context, acc store.Accessor, source entity.Record, opts store.FindOptions) (int, error) {
	q, ok, err := s.relatedQuery(acc, source, []string{"COUNT(*)"})
	if err != nil || !ok {
		return 0, err
	}
	opts.Limit, opts.Offset, opts.Order = 0, 0, nil
	q, err = s.applyOptions(q, acc.Target, acc.Through, opts)
	if err != nil {
		return 0, err
	}
	return s.queryCount(ctx, q)
}

// setColumn runs UPDATE table SET col = value WHERE cond.
func (s *Store) setColumn(ctx context.Context, d *entity.Descriptor, field string, value interface{}, cond sq.Sqlizer) error {
	q := sq.Update(sqlutil.QuoteIdentifier(d.TableName())).
		Set(sqlutil.QuoteIdentifier(column(d, field)), value).
		Where(cond)
	_, err := s.execAffected(ctx, q)
	return err
}

func (s *Store) Add(ctx context.Context, acc store.Accessor, source, target, through entity.Record) (entity.Record, error) {
	a := acc.Association
	sourceKey := source[acc.Source.PrimaryKey()]
	targetKey := target[acc.Target.PrimaryKey()]
	targetPK := sqlutil.QuoteIdentifier(column(acc.Target, acc.Target.PrimaryKey()))
	fkCol := sqlutil.QuoteIdentifier(column(acc.Target, a.ForeignKey))

	switch a.Kind {
	case entity.ToMany, entity.ToOne:
		if targetKey == nil {
			return nil, fmt.Errorf("%s record has no %s", acc.Target.Name, acc.Target.PrimaryKey())
		}
		if a.Kind == entity.ToOne {
			if err := s.setColumn(ctx, acc.Target, a.ForeignKey, nil, sq.And{sq.Eq{fkCol: sourceKey}, sq.NotEq{targetPK: targetKey}}); err != nil {
				return nil, err
			}
		}
		if err := s.setColumn(ctx, acc.Target, a.ForeignKey, sourceKey, sq.Eq{targetPK: targetKey}); err != nil {
			return nil, err
		}
		out := copyRecord(target)
		out[a.ForeignKey] = sourceKey
		return out, nil
	case entity.ToOneOwning:
		sourcePK := sqlutil.QuoteIdentifier(column(acc.Source, acc.Source.PrimaryKey()))
		if err := s.setColumn(ctx, acc.Source, a.ForeignKey, targetKey, sq.Eq{sourcePK: sourceKey}); err != nil {
			return nil, err
		}
		return copyRecord(target), nil
	case entity.ToManyThrough:
		link := store.Filter{a.ForeignKey: sourceKey, a.OtherKey: targetKey}
		existing, err := s.Find(ctx, acc.Through, store.FindOptions{Where: link, Limit: 1, Paranoid: true})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			values := acc.Through.ScalarValues(through)
			if len(values) > 0 {
				if _, err := s.Update(ctx, acc.Through, values, link); err != nil {
					return nil, err
				}
			}
			out := existing[0]
			for k, v := range values {
				out[k] = v
			}
			return out, nil
		}
		values := copyRecord(through)
		values[a.ForeignKey] = sourceKey
		values[a.OtherKey] = targetKey
		return s.Create(ctx, acc.Through, values)
	}
	return nil, fmt.Errorf("unsupported association kind %q", a.Kind)
}

func (s *Store) Set(ctx context.Context, acc store.Accessor, source entity.Record, targets []entity.Record) error {
	a := acc.Association
	sourceKey := source[acc.Source.PrimaryKey()]
	keep := targetKeys(acc.Target, targets)

	switch a.Kind {
	case entity.ToMany, entity.ToOne:
		targetPK := sqlutil.QuoteIdentifier(column(acc.Target, acc.Target.PrimaryKey()))
		fkCol := sqlutil.QuoteIdentifier(column(acc.Target, a.ForeignKey))
		var unlink sq.Sqlizer = sq.Eq{fkCol: sourceKey}
		if len(keep) > 0 {
			unlink = sq.And{sq.Eq{fkCol: sourceKey}, sq.NotEq{targetPK: keep}}
		}
		if err := s.setColumn(ctx, acc.Target, a.ForeignKey, nil, unlink); err != nil {
			return err
		}
		if len(keep) == 0 {
			return nil
		}
		return s.setColumn(ctx, acc.Target, a.ForeignKey, sourceKey, sq.Eq{targetPK: keep})
	case entity.ToOneOwning:
		sourcePK := sqlutil.QuoteIdentifier(column(acc.Source, acc.Source.PrimaryKey()))
		var value interface{}
		if len(keep) > 0 {
			value = keep[0]
		}
		return s.setColumn(ctx, acc.Source, a.ForeignKey, value, sq.Eq{sourcePK: sourceKey})
	case entity.ToManyThrough:
		fkCol := sqlutil.QuoteIdentifier(column(acc.Through, a.ForeignKey))
		otherCol := sqlutil.QuoteIdentifier(column(acc.Through, a.OtherKey))
		var drop sq.Sqlizer = sq.Eq{fkCol: sourceKey}
		if len(keep) > 0 {
			drop = sq.And{sq.Eq{fkCol: sourceKey}, sq.NotEq{otherCol: keep}}
		}
		if _, err := s.execAffected(ctx, sq.Delete(sqlutil.QuoteIdentifier(acc.Through.TableName())).Where(drop)); err != nil {
			return err
		}
		if len(keep) == 0 {
			return nil
		}
		present, err := s.Find(ctx, acc.Through, store.FindOptions{Where: store.Filter{a.ForeignKey: sourceKey, a.OtherKey: keep}})
		if err != nil {
			return err
		}
		have := map[string]bool{}
		for _, link := range present {
			have[fmt.Sprint(link[a.OtherKey])] = true
		}
		for _, key := range keep {
			if have[fmt.Sprint(key)] {
				continue
			}
			if _, err := s.Create(ctx, acc.Through, entity.Record{a.ForeignKey: sourceKey, a.OtherKey: key}); err != nil {
				return err
			}
			have[fmt.Sprint(key)] = true
		}
		return nil
	}
	return fmt.Errorf("unsupported association kind %q", a.Kind)
}

func (s *Store) Remove(ctx context.Context, acc store.Accessor, source entity.Record, targets []entity.Record) error {
	a := acc.Association
	sourceKey := source[acc.Source.PrimaryKey()]
	drop := targetKeys(acc.Target, targets)
	if len(drop) == 0 {
		return nil
	}

	switch a.Kind {
	case entity.ToMany, entity.ToOne:
		targetPK := sqlutil.QuoteIdentifier(column(acc.Target, acc.Target.PrimaryKey()))
		fkCol := sqlutil.QuoteIdentifier(column(acc.Target, a.ForeignKey))
		return s.setColumn(ctx, acc.Target, a.ForeignKey, nil, sq.And{sq.Eq{fkCol: sourceKey}, sq.Eq{targetPK: drop}})
	case entity.ToOneOwning:
		sourcePK := sqlutil.QuoteIdentifier(column(acc.Source, acc.Source.PrimaryKey()))
		fkCol := sqlutil.QuoteIdentifier(column(acc.Source, a.ForeignKey))
		return s.setColumn(ctx, acc.Source, a.ForeignKey, nil, sq.And{sq.Eq{sourcePK: sourceKey}, sq.Eq{fkCol: drop}})
	case entity.ToManyThrough:
		fkCol := sqlutil.QuoteIdentifier(column(acc.Through, a.ForeignKey))
		otherCol := sqlutil.QuoteIdentifier(column(acc.Through, a.OtherKey))
		q := sq.Delete(sqlutil.QuoteIdentifier(acc.Through.TableName())).
			Where(sq.And{sq.Eq{fkCol: sourceKey}, sq.Eq{otherCol: drop}})
		_, err := s.execAffected(ctx, q)
		return err
	}
	return fmt.Errorf("unsupported association kind %q", a.Kind)
}

func targetKeys(d *entity.Descriptor, targets []entity.Record) []interface{} {
	pk := d.PrimaryKey()
	keys := make([]interface{}, 0, len(targets))
	for _, t := range targets {
		if t[pk] != nil {
			keys = append(keys, t[pk])
		}
	}
	return keys
}

func copyRecord(rec entity.Record) entity.Record {
	out := make(entity.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
