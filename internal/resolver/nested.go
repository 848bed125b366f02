package resolver

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/store"
)

// write is one record write with its nested association payloads. A nil
// where creates the record.
type write struct {
	entity   *entity.Descriptor
	payload  entity.Record
	where    store.Filter
	existing entity.Record
	replace  bool
}

// writeRecord performs w and returns the stored record with the nested
// results merged in. Owning to-one payloads are written first so their keys
// can be stored on the record; every other association is written after it.
func (e *Engine) writeRecord(ctx context.Context, w write) (entity.Record, error) {
	d := w.entity
	values := entity.Record{}
	nested := map[string]interface{}{}
	for k, v := range w.payload {
		if _, ok := d.Association(k); ok {
			nested[k] = v
			continue
		}
		if d.HasField(k) {
			values[k] = v
		}
	}
	names := make([]string, 0, len(nested))
	for k := range nested {
		names = append(names, k)
	}
	sort.Strings(names)

	merged := map[string]interface{}{}
	for _, name := range names {
		a, _ := d.Association(name)
		if a.Kind != entity.ToOneOwning {
			continue
		}
		acc, err := e.Accessor(d, a)
		if err != nil {
			return nil, err
		}
		switch v := nested[name].(type) {
		case nil:
			values[a.ForeignKey] = nil
			merged[name] = nil
		case map[string]interface{}:
			child, err := e.nestedUpsert(ctx, acc.Target, v, w.replace)
			if err != nil {
				return nil, err
			}
			values[a.ForeignKey] = child[acc.Target.PrimaryKey()]
			merged[name] = child
		default:
			values[a.ForeignKey] = v
		}
	}

	rec, err := e.writePrimary(ctx, w, values)
	if err != nil || rec == nil {
		return nil, err
	}

	for _, name := range names {
		a, _ := d.Association(name)
		if a.Kind == entity.ToOneOwning {
			continue
		}
		acc, err := e.Accessor(d, a)
		if err != nil {
			return nil, err
		}
		switch a.Kind {
		case entity.ToOne:
			merged[name], err = e.linkOne(ctx, acc, rec, nested[name], w.replace)
		case entity.ToMany:
			merged[name], err = e.linkMany(ctx, acc, rec, nested[name], w.replace)
		case entity.ToManyThrough:
			merged[name], err = e.linkThrough(ctx, acc, rec, nested[name], w.replace)
		}
		if err != nil {
			return nil, err
		}
	}

	out := make(entity.Record, len(rec)+len(merged))
	for k, v := range rec {
		out[k] = v
	}
	for k, v := range merged {
		out[k] = v
	}
	return out, nil
}

func (e *Engine) writePrimary(ctx context.Context, w write, values entity.Record) (entity.Record, error) {
	d := w.entity
	if w.where == nil {
		rec, err := e.store.Create(ctx, d, values)
		if err != nil {
			return nil, gqlerr.Storage(string(entity.OpCreate), d.Name, err)
		}
		return rec, nil
	}

	if len(d.ScalarValues(values)) > 0 {
		if _, err := e.store.Update(ctx, d, values, w.where); err != nil {
			return nil, gqlerr.Storage(string(entity.OpUpdate), d.Name, err)
		}
	}
	if w.existing == nil {
		return nil, nil
	}
	key := entity.Record{}
	for k, v := range w.existing {
		key[k] = v
	}
	for k, v := range values {
		key[k] = v
	}
	rows, err := e.store.Find(ctx, d, store.FindOptions{Where: store.PrimaryKeyFilter(d, key), Limit: 1})
	if err != nil {
		return nil, gqlerr.Storage(string(entity.OpUpdate), d.Name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// nestedUpsert writes an association payload: an update when it carries an
// existing primary key, a create otherwise. Before and overwrite hooks of
// the target entity apply.
func (e *Engine) nestedUpsert(ctx context.Context, d *entity.Descriptor, payload map[string]interface{}, replace bool) (rec entity.Record, err error) {
	ctx, span := startResolverSpan(ctx, "graphql.mutation.nested", attribute.String("graphql.entity", d.Name))
	defer func() { finishResolverSpan(span, err) }()

	payload = stripMeta(payload)
	pk, complete := d.PrimaryKeyValues(payload)
	var existing entity.Record
	if complete {
		rows, err := e.store.Find(ctx, d, store.FindOptions{Where: pk, Limit: 1, Paranoid: d.Paranoid})
		if err != nil {
			return nil, gqlerr.Storage("snapshot", d.Name, err)
		}
		if len(rows) > 0 {
			existing = rows[0]
		}
	}
	op := entity.OpCreate
	if existing != nil {
		op = entity.OpUpdate
	}
	span.SetAttributes(attribute.String("graphql.operation", string(op)))

	in := &entity.HookInput{Entity: d, Operation: op, Payload: payload, Previous: existing}
	if hook, ok := d.Graph.Overwrite.Lookup(op); ok {
		res, err := hook(ctx, in)
		if err != nil {
			return nil, err
		}
		out, _ := res.(map[string]interface{})
		return out, nil
	}
	if hook, ok := d.Graph.Before.Lookup(op); ok {
		if _, err := hook(ctx, in); err != nil {
			return nil, err
		}
		payload = in.Payload
	}

	if existing != nil {
		return e.writeRecord(ctx, write{entity: d, payload: payload, where: pk, existing: existing, replace: replace})
	}
	return e.writeRecord(ctx, write{entity: d, payload: payload, replace: replace})
}

func (e *Engine) findByKey(ctx context.Context, d *entity.Descriptor, key interface{}) (entity.Record, error) {
	rows, err := e.store.Find(ctx, d, store.FindOptions{Where: store.Filter{d.PrimaryKey(): key}, Limit: 1, Paranoid: d.Paranoid})
	if err != nil {
		return nil, gqlerr.Storage(string(entity.OpFetch), d.Name, err)
	}
	if len(rows) == 0 {
		return nil, gqlerr.NewValidationError(d.Name, d.PrimaryKey(), "%s with %s %v does not exist", d.Name, d.PrimaryKey(), key)
	}
	return rows[0], nil
}

// linkOne writes a to-one payload whose foreign key lives on the target.
func (e *Engine) linkOne(ctx context.Context, acc store.Accessor, parent entity.Record, value interface{}, replace bool) (interface{}, error) {
	a := acc.Association
	var child entity.Record
	switch v := value.(type) {
	case nil:
		if err := e.store.Set(ctx, acc, parent, nil); err != nil {
			return nil, gqlerr.Storage("set"+acc.Suffix, acc.Source.Name, err)
		}
		return nil, nil
	case map[string]interface{}:
		payload := copyArgs(v)
		payload[a.ForeignKey] = parent[acc.Source.PrimaryKey()]
		var err error
		if child, err = e.nestedUpsert(ctx, acc.Target, payload, replace); err != nil {
			return nil, err
		}
	default:
		var err error
		if child, err = e.findByKey(ctx, acc.Target, v); err != nil {
			return nil, err
		}
	}
	if child == nil {
		return nil, nil
	}
	if err := e.store.Set(ctx, acc, parent, []entity.Record{child}); err != nil {
		return nil, gqlerr.Storage("set"+acc.Suffix, acc.Source.Name, err)
	}
	child[a.ForeignKey] = parent[acc.Source.PrimaryKey()]
	return child, nil
}

// linkMany writes a to-many payload. With replace, existing children left
// out of the payload are destroyed one by one.
func (e *Engine) linkMany(ctx context.Context, acc store.Accessor, parent entity.Record, value interface{}, replace bool) ([]entity.Record, error) {
	a := acc.Association
	items, err := payloadList(acc, value)
	if err != nil {
		return nil, err
	}
	parentKey := parent[acc.Source.PrimaryKey()]
	targetPK := acc.Target.PrimaryKey()

	children := make([]entity.Record, 0, len(items))
	for _, item := range items {
		var child entity.Record
		if m, ok := item.(map[string]interface{}); ok {
			payload := copyArgs(m)
			payload[a.ForeignKey] = parentKey
			if child, err = e.nestedUpsert(ctx, acc.Target, payload, replace); err != nil {
				return nil, err
			}
		} else if child, err = e.findByKey(ctx, acc.Target, item); err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		if _, err := e.store.Add(ctx, acc, parent, child, nil); err != nil {
			return nil, gqlerr.Storage("add"+acc.Suffix, acc.Source.Name, err)
		}
		child[a.ForeignKey] = parentKey
		children = append(children, child)
	}

	if replace {
		existing, err := e.store.Related(ctx, acc, parent, store.FindOptions{Paranoid: acc.Target.Paranoid})
		if err != nil {
			return nil, gqlerr.Storage("get"+acc.Suffix, acc.Source.Name, err)
		}
		keep := make(map[string]bool, len(children))
		for _, child := range children {
			keep[fmt.Sprint(child[targetPK])] = true
		}
		for _, row := range existing {
			if keep[fmt.Sprint(row[targetPK])] {
				continue
			}
			if _, err := e.store.Destroy(ctx, acc.Target, store.PrimaryKeyFilter(acc.Target, row)); err != nil {
				return nil, gqlerr.Storage(string(entity.OpDestroy), acc.Target.Name, err)
			}
		}
	}
	return children, nil
}

// linkThrough writes a through association payload. Each item names the
// target either by nested instance or by foreign key; the remaining fields
// are stored on the through row.
func (e *Engine) linkThrough(ctx context.Context, acc store.Accessor, parent entity.Record, value interface{}, replace bool) ([]entity.Record, error) {
	a := acc.Association
	items, err := payloadList(acc, value)
	if err != nil {
		return nil, err
	}
	instanceKey := e.catalog.ThroughTargetField(acc.Through, acc.Target)

	if replace {
		if err := e.store.Set(ctx, acc, parent, nil); err != nil {
			return nil, gqlerr.Storage("set"+acc.Suffix, acc.Source.Name, err)
		}
	}

	nodes := make([]entity.Record, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]interface{})
		var child entity.Record
		if obj, ok := m[instanceKey].(map[string]interface{}); ok {
			if child, err = e.nestedUpsert(ctx, acc.Target, obj, replace); err != nil {
				return nil, err
			}
		} else if child, err = e.findByKey(ctx, acc.Target, m[a.OtherKey]); err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}

		edgeValues := entity.Record{}
		for k, v := range stripMeta(m) {
			if k == instanceKey || k == a.OtherKey || k == a.ForeignKey {
				continue
			}
			if acc.Through.HasField(k) {
				edgeValues[k] = v
			}
		}
		edge, err := e.store.Add(ctx, acc, parent, child, edgeValues)
		if err != nil {
			return nil, gqlerr.Storage("add"+acc.Suffix, acc.Source.Name, err)
		}
		node := make(entity.Record, len(child)+1)
		for k, v := range child {
			node[k] = v
		}
		node[acc.ThroughKey()] = edge
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func payloadList(acc store.Accessor, value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, nil
	default:
		return nil, gqlerr.NewValidationError(acc.Source.Name, acc.Association.Name, "%s expects a list", acc.Association.Name)
	}
}

// validatePayload checks every nested association payload before anything
// is written. Through items must name their target exactly one way.
func (e *Engine) validatePayload(d *entity.Descriptor, payload map[string]interface{}) error {
	names := make([]string, 0, len(payload))
	for k := range payload {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		a, ok := d.Association(name)
		if !ok {
			continue
		}
		acc, err := e.Accessor(d, a)
		if err != nil {
			return err
		}
		value := payload[name]
		switch a.Kind {
		case entity.ToOne, entity.ToOneOwning:
			if m, ok := value.(map[string]interface{}); ok {
				if err := e.validatePayload(acc.Target, m); err != nil {
					return err
				}
			}
		case entity.ToMany:
			items, err := payloadList(acc, value)
			if err != nil {
				return err
			}
			for _, item := range items {
				if m, ok := item.(map[string]interface{}); ok {
					if err := e.validatePayload(acc.Target, m); err != nil {
						return err
					}
				}
			}
		case entity.ToManyThrough:
			items, err := payloadList(acc, value)
			if err != nil {
				return err
			}
			instanceKey := e.catalog.ThroughTargetField(acc.Through, acc.Target)
			for _, item := range items {
				m, ok := item.(map[string]interface{})
				if !ok {
					return gqlerr.NewValidationError(d.Name, name, "%s items must be objects", name)
				}
				obj, hasInstance := m[instanceKey].(map[string]interface{})
				hasKey := m[a.OtherKey] != nil
				switch {
				case hasInstance && hasKey:
					return gqlerr.NewValidationError(d.Name, name, "Cannot define both foreignKey for association (%s) AND Instance for creation (%s) in your mutation!", a.OtherKey, instanceKey)
				case !hasInstance && !hasKey:
					return gqlerr.NewValidationError(d.Name, name, "You must specify foreignKey for association (%s) OR Instance for creation (%s) in your mutation!", a.OtherKey, instanceKey)
				case hasInstance:
					if err := e.validatePayload(acc.Target, obj); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
