package memstore

import (
	"context"
	"fmt"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/store"
)

func (s *Store) Related(ctx context.Context, acc store.Accessor, source entity.Record, opts store.FindOptions) ([]entity.Record, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	candidates, err := relatedCandidates(st, acc, source)
	if err != nil {
		return nil, err
	}
	return s.selectRows(acc.Target, acc.Through, acc.ThroughKey(), candidates, opts)
}

func (s *Store) CountRelated(ctx context.Context, acc store.Accessor, source entity.Record, opts store.FindOptions) (int, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	candidates, err := relatedCandidates(st, acc, source)
	if err != nil {
		return 0, err
	}
	opts.Limit, opts.Offset, opts.Order = 0, 0, nil
	rows, err := s.selectRows(acc.Target, acc.Through, acc.ThroughKey(), candidates, opts)
	return len(rows), err
}

// relatedCandidates returns the target rows linked to source before any
// filtering. Through rows are attached to copies of their targets.
func relatedCandidates(st *state, acc store.Accessor, source entity.Record) ([]entity.Record, error) {
	a := acc.Association
	targetPK := acc.Target.PrimaryKey()
	sourceKey := source[acc.Source.PrimaryKey()]

	switch a.Kind {
	case entity.ToOneOwning:
		fk := source[a.ForeignKey]
		if fk == nil {
			return nil, nil
		}
		return rowsWhere(st.tables[acc.Target.Name], targetPK, fk), nil
	case entity.ToOne, entity.ToMany:
		if sourceKey == nil {
			return nil, nil
		}
		return rowsWhere(st.tables[acc.Target.Name], a.ForeignKey, sourceKey), nil
	case entity.ToManyThrough:
		if acc.Through == nil {
			return nil, fmt.Errorf("association %s has no through entity", a.Name)
		}
		if sourceKey == nil {
			return nil, nil
		}
		var out []entity.Record
		for _, link := range rowsWhere(st.tables[acc.Through.Name], a.ForeignKey, sourceKey) {
			if softDeleted(acc.Through, link) {
				continue
			}
			for _, target := range rowsWhere(st.tables[acc.Target.Name], targetPK, link[a.OtherKey]) {
				withEdge := copyRecord(target)
				withEdge[acc.ThroughKey()] = copyRecord(link)
				out = append(out, withEdge)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported association kind %q", a.Kind)
}

func rowsWhere(rows []entity.Record, field string, value interface{}) []entity.Record {
	var out []entity.Record
	for _, row := range rows {
		if equalValues(row[field], value) {
			out = append(out, row)
		}
	}
	return out
}

func findRow(st *state, d *entity.Descriptor, rec entity.Record) (entity.Record, error) {
	pk := d.PrimaryKey()
	if rec[pk] == nil {
		return nil, fmt.Errorf("%s record has no %s", d.Name, pk)
	}
	for _, row := range st.tables[d.Name] {
		if equalValues(row[pk], rec[pk]) && !softDeleted(d, row) {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%s with %s=%v not found", d.Name, pk, rec[pk])
}

func (s *Store) Add(ctx context.Context, acc store.Accessor, source, target, through entity.Record) (entity.Record, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a := acc.Association
	sourceKey := source[acc.Source.PrimaryKey()]
	targetKey := target[acc.Target.PrimaryKey()]

	switch a.Kind {
	case entity.ToMany, entity.ToOne:
		row, err := findRow(st, acc.Target, target)
		if err != nil {
			return nil, err
		}
		if a.Kind == entity.ToOne {
			for _, other := range rowsWhere(st.tables[acc.Target.Name], a.ForeignKey, sourceKey) {
				other[a.ForeignKey] = nil
			}
		}
		row[a.ForeignKey] = sourceKey
		return copyRecord(row), nil
	case entity.ToOneOwning:
		row, err := findRow(st, acc.Source, source)
		if err != nil {
			return nil, err
		}
		row[a.ForeignKey] = targetKey
		return copyRecord(target), nil
	case entity.ToManyThrough:
		for _, link := range rowsWhere(st.tables[acc.Through.Name], a.ForeignKey, sourceKey) {
			if equalValues(link[a.OtherKey], targetKey) && !softDeleted(acc.Through, link) {
				for k, v := range acc.Through.ScalarValues(through) {
					link[k] = v
				}
				return copyRecord(link), nil
			}
		}
		values := copyRecord(through)
		values[a.ForeignKey] = sourceKey
		values[a.OtherKey] = targetKey
		return s.insert(st, acc.Through, values)
	}
	return nil, fmt.Errorf("unsupported association kind %q", a.Kind)
}

func (s *Store) Set(ctx context.Context, acc store.Accessor, source entity.Record, targets []entity.Record) error {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	a := acc.Association
	sourceKey := source[acc.Source.PrimaryKey()]
	keep := targetKeys(acc.Target, targets)

	switch a.Kind {
	case entity.ToMany, entity.ToOne:
		for _, row := range rowsWhere(st.tables[acc.Target.Name], a.ForeignKey, sourceKey) {
			if !keep.has(row[acc.Target.PrimaryKey()]) {
				row[a.ForeignKey] = nil
			}
		}
		for _, target := range targets {
			row, err := findRow(st, acc.Target, target)
			if err != nil {
				return err
			}
			row[a.ForeignKey] = sourceKey
		}
		return nil
	case entity.ToOneOwning:
		row, err := findRow(st, acc.Source, source)
		if err != nil {
			return err
		}
		row[a.ForeignKey] = nil
		if len(targets) > 0 {
			row[a.ForeignKey] = targets[0][acc.Target.PrimaryKey()]
		}
		return nil
	case entity.ToManyThrough:
		links := st.tables[acc.Through.Name]
		kept := links[:0]
		present := keySet{}
		for _, link := range links {
			if equalValues(link[a.ForeignKey], sourceKey) {
				if !keep.has(link[a.OtherKey]) {
					continue
				}
				present.add(link[a.OtherKey])
			}
			kept = append(kept, link)
		}
		st.tables[acc.Through.Name] = kept
		for _, target := range targets {
			targetKey := target[acc.Target.PrimaryKey()]
			if present.has(targetKey) {
				continue
			}
			if _, err := s.insert(st, acc.Through, entity.Record{a.ForeignKey: sourceKey, a.OtherKey: targetKey}); err != nil {
				return err
			}
			present.add(targetKey)
		}
		return nil
	}
	return fmt.Errorf("unsupported association kind %q", a.Kind)
}

func (s *Store) Remove(ctx context.Context, acc store.Accessor, source entity.Record, targets []entity.Record) error {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	a := acc.Association
	sourceKey := source[acc.Source.PrimaryKey()]
	drop := targetKeys(acc.Target, targets)

	switch a.Kind {
	case entity.ToMany, entity.ToOne:
		for _, row := range rowsWhere(st.tables[acc.Target.Name], a.ForeignKey, sourceKey) {
			if drop.has(row[acc.Target.PrimaryKey()]) {
				row[a.ForeignKey] = nil
			}
		}
		return nil
	case entity.ToOneOwning:
		row, err := findRow(st, acc.Source, source)
		if err != nil {
			return err
		}
		if drop.has(row[a.ForeignKey]) {
			row[a.ForeignKey] = nil
		}
		return nil
	case entity.ToManyThrough:
		links := st.tables[acc.Through.Name]
		kept := links[:0]
		for _, link := range links {
			if equalValues(link[a.ForeignKey], sourceKey) && drop.has(link[a.OtherKey]) {
				continue
			}
			kept = append(kept, link)
		}
		st.tables[acc.Through.Name] = kept
		return nil
	}
	return fmt.Errorf("unsupported association kind %q", a.Kind)
}

type keySet []interface{}

func (k *keySet) add(v interface{}) {
	*k = append(*k, v)
}

func (k keySet) has(v interface{}) bool {
	for _, existing := range k {
		if equalValues(existing, v) {
			return true
		}
	}
	return false
}

func targetKeys(d *entity.Descriptor, targets []entity.Record) keySet {
	keys := keySet{}
	pk := d.PrimaryKey()
	for _, t := range targets {
		if t[pk] != nil {
			keys.add(t[pk])
		}
	}
	return keys
}
