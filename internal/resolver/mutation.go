package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/store"
)

// Request describes one top-level mutation.
type Request struct {
	Entity *entity.Descriptor
	// Op is create, update, destroy, upsert, bulkCreate or bulkUpdate.
	Op      entity.Operation
	Payload entity.Record
	// Items holds the payloads of bulk operations.
	Items []entity.Record
	Where store.Filter
	// Transaction asks for the whole operation to run in one transaction.
	Transaction bool
	// Replace makes list association payloads replace the existing links.
	Replace bool
	// MutationName is the event name the change is published on. It
	// defaults to the resolved field name.
	MutationName string
	Source       interface{}
	Args         map[string]interface{}
	Info         graphql.ResolveInfo
}

func (r Request) hookInput(op entity.Operation) *entity.HookInput {
	return &entity.HookInput{
		Entity:    r.Entity,
		Operation: op,
		Source:    r.Source,
		Args:      r.Args,
		Info:      r.Info,
		Payload:   r.Payload,
		Items:     r.Items,
		Where:     r.Where,
	}
}

type outcome struct {
	result interface{}
	event  *pubsub.ChangeEvent
}

// Execute runs a top-level mutation. Destroy returns the affected row count,
// bulk create returns a count or the created records, and everything else
// returns the written record.
func (e *Engine) Execute(ctx context.Context, req Request) (result interface{}, err error) {
	d := req.Entity
	if d == nil {
		return nil, fmt.Errorf("mutation without an entity")
	}
	started := time.Now()
	ctx, span := startResolverSpan(ctx, spanName("mutation", req.Op), entityAttrs(d, req.Op)...)
	defer func() {
		finishResolverSpan(span, err)
		e.metrics.RecordMutation(ctx, d.Name, string(req.Op), time.Since(started), err)
	}()

	if err := e.authorize(ctx, AuthRequest{Entity: d.Name, Operation: req.Op, Source: req.Source, Args: req.Args, Info: req.Info}); err != nil {
		return nil, err
	}
	if req.MutationName == "" {
		req.MutationName = req.Info.FieldName
	}

	if hook, ok := d.Graph.Overwrite.Lookup(req.Op); ok {
		result, err := hook(ctx, req.hookInput(req.Op))
		return result, e.classify(err)
	}

	mc := NewMutationContext(nil)
	if req.Transaction {
		if e.transactions {
			tx, err := e.store.Begin(ctx)
			if err != nil {
				return nil, e.classify(gqlerr.Storage("begin", d.Name, err))
			}
			mc = NewMutationContext(tx)
		} else {
			e.warnTransactionsDisabled(ctx)
		}
	}
	ctx = WithMutationContext(ctx, mc)

	var out outcome
	switch req.Op {
	case entity.OpBulkCreate:
		out, err = e.bulkCreate(ctx, req)
	case entity.OpBulkUpdate:
		out, err = e.bulkUpdate(ctx, req)
	case entity.OpCreate, entity.OpUpdate, entity.OpDestroy, entity.OpUpsert:
		out, err = e.executeOne(ctx, req)
	default:
		err = fmt.Errorf("unsupported mutation operation %q", req.Op)
	}
	if err != nil {
		mc.MarkError()
		if ferr := mc.Finalize(); ferr != nil {
			e.loggerFor(ctx).Error("rollback failed", slog.String("entity", d.Name), slog.String("error", ferr.Error()))
		}
		return nil, e.classify(err)
	}
	if err := mc.Finalize(); err != nil {
		return nil, e.classify(gqlerr.Storage("commit", d.Name, err))
	}

	if out.event != nil {
		out.event.CorrelationID = mc.CorrelationID()
		e.publish(ctx, req.MutationName, *out.event)
	}
	e.logResult(ctx, LogEntry{Entity: d.Name, Operation: req.Op, Result: out.result, Source: req.Source, Args: req.Args, Info: req.Info})
	e.loggerFor(ctx).Debug("mutation applied",
		slog.String("entity", d.Name),
		slog.String("operation", string(req.Op)),
		slog.String("mutation", req.MutationName),
		slog.Duration("elapsed", time.Since(started)))
	return out.result, nil
}

func (e *Engine) executeOne(ctx context.Context, req Request) (outcome, error) {
	d := req.Entity
	payload := stripMeta(req.Payload)
	where := req.Where
	kind := pubsub.Updated

	update := false
	switch req.Op {
	case entity.OpCreate:
		kind = pubsub.Created
	case entity.OpUpsert:
		kind = pubsub.Created
		if pk, complete := d.PrimaryKeyValues(payload); complete {
			where, update, kind = pk, true, pubsub.Updated
		}
	case entity.OpUpdate, entity.OpDestroy:
		update = req.Op == entity.OpUpdate
		if req.Op == entity.OpDestroy {
			kind = pubsub.Deleted
		}
		if len(where) == 0 {
			pk, complete := d.PrimaryKeyValues(payload)
			if !complete {
				return outcome{}, gqlerr.NewValidationError(d.Name, d.PrimaryKey(), "%s requires a where clause or the primary key", req.Op)
			}
			where = pk
		}
	}

	if req.Op != entity.OpDestroy {
		if err := e.validatePayload(d, payload); err != nil {
			return outcome{}, err
		}
	}

	var previous entity.Record
	if update || req.Op == entity.OpDestroy {
		rows, err := e.store.Find(ctx, d, store.FindOptions{Where: where, Limit: 1, Paranoid: d.Paranoid})
		if err != nil {
			return outcome{}, gqlerr.Storage("snapshot", d.Name, err)
		}
		if len(rows) > 0 {
			previous = rows[0]
		}
	}

	in := req.hookInput(req.Op)
	in.Payload = payload
	in.Where = where
	in.Previous = previous
	if hook, ok := d.Graph.Before.Lookup(req.Op); ok {
		if _, err := hook(ctx, in); err != nil {
			return outcome{}, err
		}
		payload = in.Payload
	}

	ev := &pubsub.ChangeEvent{Kind: kind, PreviousValues: previous}
	var result interface{}
	switch {
	case req.Op == entity.OpDestroy:
		n, err := e.store.Destroy(ctx, d, where)
		if err != nil {
			return outcome{}, gqlerr.Storage(string(entity.OpDestroy), d.Name, err)
		}
		result = n
		ev.Node = previous
	case update:
		rec, err := e.writeRecord(ctx, write{entity: d, payload: payload, where: where, existing: previous, replace: req.Replace})
		if err != nil {
			return outcome{}, err
		}
		ev.Node = rec
		ev.UpdatedFields = changedFields(d, previous, payload)
		if rec != nil {
			result = rec
		}
	default:
		rec, err := e.writeRecord(ctx, write{entity: d, payload: payload, replace: req.Replace})
		if err != nil {
			return outcome{}, err
		}
		ev.Node = rec
		result = rec
	}

	if hook, ok := d.Graph.Extend.Lookup(req.Op); ok {
		in.Result = result
		extended, err := hook(ctx, in)
		if err != nil {
			return outcome{}, err
		}
		result = extended
	}
	return outcome{result: result, event: ev}, nil
}

func (e *Engine) publish(ctx context.Context, name string, ev pubsub.ChangeEvent) {
	ev.Name = name
	ev.At = e.now()
	delivered := e.bus.Publish(ctx, name, ev)
	e.loggerFor(ctx).Debug("change event published",
		slog.String("event", name),
		slog.String("kind", string(ev.Kind)),
		slog.Int("delivered", delivered))
}

// stripMeta copies payload without the reserved metadata field.
func stripMeta(payload entity.Record) entity.Record {
	out := make(entity.Record, len(payload))
	for k, v := range payload {
		if k == naming.MetaFieldName {
			continue
		}
		out[k] = v
	}
	return out
}

// changedFields lists the scalar payload fields whose value differs from
// the snapshot.
func changedFields(d *entity.Descriptor, previous, payload entity.Record) []string {
	var out []string
	for k, v := range payload {
		if !d.HasField(k) {
			continue
		}
		if previous != nil && reflect.DeepEqual(previous[k], v) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WhereFromArgs builds a mutation filter from the where argument and the
// primary key arguments present in args. Variables are resolved from vars.
func WhereFromArgs(d *entity.Descriptor, args map[string]interface{}, vars map[string]interface{}) store.Filter {
	where := store.Filter{}
	for k, v := range filterArg(args, "where", vars) {
		where[k] = v
	}
	for _, pk := range d.PrimaryKeys() {
		if v, ok := args[pk]; ok && v != nil {
			where[pk] = v
		}
	}
	if len(where) == 0 {
		return nil
	}
	return where
}
