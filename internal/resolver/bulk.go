package resolver

import (
	"context"

	"github.com/google/uuid"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/store"
)

// bulkCreate inserts every item in one batch. When the entity's bulk create
// option names a tag field, items lacking it receive one shared correlation
// id and the created records are returned instead of the count.
func (e *Engine) bulkCreate(ctx context.Context, req Request) (outcome, error) {
	d := req.Entity
	tag := d.Graph.Bulk.Create.Tag

	items := make([]entity.Record, len(req.Items))
	for i, item := range req.Items {
		items[i] = d.ScalarValues(stripMeta(item))
	}
	if tag != "" {
		id := uuid.NewString()
		for _, item := range items {
			if entity.IsEmpty(item[tag]) {
				item[tag] = id
			}
		}
		if mc := MutationContextFromContext(ctx); mc != nil {
			mc.setCorrelationID(id)
		}
	}

	in := req.hookInput(entity.OpBulkCreate)
	in.Items = items
	if hook, ok := d.Graph.Before.Lookup(entity.OpBulkCreate); ok {
		if _, err := hook(ctx, in); err != nil {
			return outcome{}, err
		}
		items = in.Items
	}

	created, err := e.store.BulkCreate(ctx, d, items)
	if err != nil {
		return outcome{}, gqlerr.Storage(string(entity.OpBulkCreate), d.Name, err)
	}

	var result interface{} = len(created)
	if tag != "" {
		result = created
	}
	if hook, ok := d.Graph.Extend.Lookup(entity.OpBulkCreate); ok {
		in.Result = result
		if result, err = hook(ctx, in); err != nil {
			return outcome{}, err
		}
	}
	return outcome{
		result: result,
		event:  &pubsub.ChangeEvent{Kind: pubsub.BulkCreated, Nodes: created},
	}, nil
}

// bulkUpdate applies each item by primary key and returns the updated rows
// from one follow-up read.
func (e *Engine) bulkUpdate(ctx context.Context, req Request) (outcome, error) {
	d := req.Entity

	items := make([]entity.Record, len(req.Items))
	keys := make([]entity.Record, len(req.Items))
	for i, item := range req.Items {
		items[i] = d.ScalarValues(stripMeta(item))
		pk, complete := d.PrimaryKeyValues(items[i])
		if !complete {
			return outcome{}, gqlerr.NewValidationError(d.Name, d.PrimaryKey(), "%s item %d is missing its primary key", entity.OpBulkUpdate, i)
		}
		keys[i] = pk
	}
	where := keySetFilter(d, keys)

	previous, err := e.store.Find(ctx, d, store.FindOptions{Where: where, Paranoid: d.Paranoid})
	if err != nil {
		return outcome{}, gqlerr.Storage("snapshot", d.Name, err)
	}

	in := req.hookInput(entity.OpBulkUpdate)
	in.Items = items
	in.Where = where
	if hook, ok := d.Graph.Before.Lookup(entity.OpBulkUpdate); ok {
		if _, err := hook(ctx, in); err != nil {
			return outcome{}, err
		}
		items = in.Items
	}

	for _, item := range items {
		pk, _ := d.PrimaryKeyValues(item)
		if _, err := e.store.Update(ctx, d, item, pk); err != nil {
			return outcome{}, gqlerr.Storage(string(entity.OpBulkUpdate), d.Name, err)
		}
	}

	updated, err := e.store.Find(ctx, d, store.FindOptions{Where: where, Paranoid: d.Paranoid})
	if err != nil {
		return outcome{}, gqlerr.Storage(string(entity.OpBulkUpdate), d.Name, err)
	}

	var result interface{} = updated
	if hook, ok := d.Graph.Extend.Lookup(entity.OpBulkUpdate); ok {
		in.Result = result
		if result, err = hook(ctx, in); err != nil {
			return outcome{}, err
		}
	}
	ev := &pubsub.ChangeEvent{Kind: pubsub.Updated, Nodes: updated}
	if len(previous) == 1 {
		ev.PreviousValues = previous[0]
	}
	return outcome{result: result, event: ev}, nil
}

// keySetFilter matches any of the given primary key sets: an IN list for a
// single key, an or of equalities for composite keys.
func keySetFilter(d *entity.Descriptor, keys []entity.Record) store.Filter {
	pks := d.PrimaryKeys()
	if len(pks) == 1 {
		values := make([]interface{}, len(keys))
		for i, k := range keys {
			values[i] = k[pks[0]]
		}
		return store.Filter{pks[0]: map[string]interface{}{"in": values}}
	}
	alts := make([]interface{}, len(keys))
	for i, k := range keys {
		eq := map[string]interface{}{}
		for _, pk := range pks {
			eq[pk] = k[pk]
		}
		alts[i] = eq
	}
	return store.Filter{"or": alts}
}
