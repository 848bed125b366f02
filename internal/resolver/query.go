package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/cursor"
	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/store"
)

// FetchRequest describes a read of Entity. Accessor is set when the read
// resolves an association of Parent.
type FetchRequest struct {
	Entity   *entity.Descriptor
	Accessor *store.Accessor
	Parent   entity.Record
	Source   interface{}
	Args     map[string]interface{}
	Info     graphql.ResolveInfo
}

func (r FetchRequest) nested() bool {
	return r.Accessor != nil
}

func (r FetchRequest) hookInput(op entity.Operation) *entity.HookInput {
	return &entity.HookInput{
		Entity:    r.Entity,
		Operation: op,
		Source:    r.Source,
		Args:      r.Args,
		Info:      r.Info,
	}
}

type fetchResult struct {
	value   interface{}
	opts    store.FindOptions
	hasNext bool
}

// Fetch resolves a list read. The result is []entity.Record unless a fetch
// hook replaced it.
func (e *Engine) Fetch(ctx context.Context, req FetchRequest) (interface{}, error) {
	res, err := e.fetch(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return res.value, nil
}

// FetchOne resolves a to-one association: the first matching record or nil.
func (e *Engine) FetchOne(ctx context.Context, req FetchRequest) (interface{}, error) {
	if req.Args == nil {
		req.Args = map[string]interface{}{}
	}
	if _, ok := req.Args["limit"]; !ok {
		args := copyArgs(req.Args)
		args["limit"] = 1
		req.Args = args
	}
	res, err := e.fetch(ctx, req, false)
	if err != nil {
		return nil, err
	}
	rows, ok := res.value.([]entity.Record)
	if !ok {
		return res.value, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (e *Engine) fetch(ctx context.Context, req FetchRequest, probeNext bool) (res fetchResult, err error) {
	d := req.Entity
	ctx, span := startResolverSpan(ctx, spanName("query", entity.OpFetch), entityAttrs(d, entity.OpFetch)...)
	defer func() {
		err = e.classify(err)
		finishResolverSpan(span, err)
		e.metrics.RecordQuery(ctx, d.Name, string(entity.OpFetch), err)
	}()

	if !req.nested() {
		if err := e.authorize(ctx, AuthRequest{Entity: d.Name, Operation: entity.OpFetch, Source: req.Source, Args: req.Args, Info: req.Info}); err != nil {
			return res, err
		}
	}

	if hook, ok := d.Graph.Overwrite.Lookup(entity.OpFetch); ok {
		res.value, err = hook(ctx, req.hookInput(entity.OpFetch))
		return res, err
	}

	opts, err := e.findOptions(req)
	if err != nil {
		return res, err
	}
	if hook, ok := d.Graph.Before.Lookup(entity.OpFetch); ok {
		in := req.hookInput(entity.OpFetch)
		in.Options = &opts
		if _, err := hook(ctx, in); err != nil {
			return res, err
		}
	}
	res.opts = opts

	query := opts
	if probeNext && opts.Limit > 0 {
		query.Limit = opts.Limit + 1
	}
	var rows []entity.Record
	if req.nested() {
		rows, err = e.store.Related(ctx, *req.Accessor, req.Parent, query)
	} else {
		rows, err = e.store.Find(ctx, d, query)
	}
	if err != nil {
		return res, gqlerr.Storage(string(entity.OpFetch), d.Name, err)
	}
	if probeNext && opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
		res.hasNext = true
	}
	res.value = rows

	if hook, ok := d.Graph.Extend.Lookup(entity.OpFetch); ok {
		in := req.hookInput(entity.OpFetch)
		in.Options = &opts
		in.Result = rows
		res.value, err = hook(ctx, in)
	}
	return res, err
}

// findOptions assembles store options from the call arguments.
func (e *Engine) findOptions(req FetchRequest) (store.FindOptions, error) {
	d := req.Entity
	args := req.Args
	vars := req.Info.VariableValues

	opts := store.FindOptions{
		Where:    filterArg(args, "where", vars),
		Paranoid: d.Paranoid,
	}
	if req.nested() && req.Accessor.Through != nil {
		opts.WhereEdges = filterArg(args, "whereEdges", vars)
	}

	if raw, ok := args["order"].(string); ok {
		opts.Order = append(opts.Order, parseOrder(raw, false)...)
	}
	if raw, ok := args["orderEdges"].(string); ok {
		if !req.nested() || req.Accessor.Through == nil {
			return opts, gqlerr.NewValidationError(d.Name, "orderEdges", "orderEdges is only valid on through associations")
		}
		opts.Order = append(opts.Order, parseOrder(raw, true)...)
	}

	if n, ok := intArg(args, "limit"); ok {
		opts.Limit = n
	}
	if n, ok := intArg(args, "first"); ok {
		opts.Limit = n
	}
	if n, ok := intArg(args, "offset"); ok {
		opts.Offset = n
	}
	if raw, ok := args["after"].(string); ok && raw != "" {
		offset, err := cursor.After(raw, d.Name, orderKey(args))
		if err != nil {
			return opts, gqlerr.NewValidationError(d.Name, "after", "%s", err.Error())
		}
		opts.Offset = offset
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return opts, gqlerr.NewValidationError(d.Name, "limit", "limit and offset must not be negative")
	}

	if paranoid, ok := args["paranoid"].(bool); ok && !paranoid {
		opts.Paranoid = false
	}
	if includesDeleted(opts.Where) {
		opts.Paranoid = false
	}

	if scope := d.Graph.Scope; scope != nil && scope.Name != "" {
		call := &store.ScopeCall{Name: scope.Name}
		if scope.ArgPath != "" {
			value, found := lookupPath(args, scope.ArgPath)
			if !found || value == nil {
				value = scope.Default
			}
			call.Args = []interface{}{value}
		}
		opts.Scope = call
	}
	return opts, nil
}

// includesDeleted reports whether where asks for soft-deleted rows with
// deletedAt: {ne: null}.
func includesDeleted(where map[string]interface{}) bool {
	cond, ok := where[entity.DeletedAtField].(map[string]interface{})
	if !ok {
		return false
	}
	v, present := cond["ne"]
	return present && v == nil
}

func orderKey(args map[string]interface{}) string {
	order, _ := args["order"].(string)
	edges, _ := args["orderEdges"].(string)
	if edges != "" {
		return order + "|" + edges
	}
	return order
}

func intArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// lookupPath reads a dotted path such as "filter.region" from args.
func lookupPath(args map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = args
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func copyArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	return out
}

// Count resolves {Entity}Count.
func (e *Engine) Count(ctx context.Context, req FetchRequest) (n int, err error) {
	d := req.Entity
	ctx, span := startResolverSpan(ctx, spanName("query", entity.OpCount), entityAttrs(d, entity.OpCount)...)
	defer func() {
		err = e.classify(err)
		finishResolverSpan(span, err)
		e.metrics.RecordQuery(ctx, d.Name, string(entity.OpCount), err)
	}()

	if err := e.authorize(ctx, AuthRequest{Entity: d.Name, Operation: entity.OpCount, Source: req.Source, Args: req.Args, Info: req.Info}); err != nil {
		return 0, err
	}
	opts, err := e.findOptions(FetchRequest{Entity: d, Args: countArgs(req.Args), Info: req.Info})
	if err != nil {
		return 0, err
	}
	n, err = e.store.Count(ctx, d, opts)
	if err != nil {
		return 0, gqlerr.Storage(string(entity.OpCount), d.Name, err)
	}
	return n, nil
}

func countArgs(args map[string]interface{}) map[string]interface{} {
	out := copyArgs(args)
	for _, k := range []string{"limit", "offset", "first", "after", "order"} {
		delete(out, k)
	}
	return out
}

// ByPk resolves {Entity}ByPk: the record matching the primary key arguments.
func (e *Engine) ByPk(ctx context.Context, req FetchRequest) (rec interface{}, err error) {
	d := req.Entity
	ctx, span := startResolverSpan(ctx, spanName("query", entity.OpByPk), entityAttrs(d, entity.OpByPk)...)
	defer func() {
		err = e.classify(err)
		finishResolverSpan(span, err)
		e.metrics.RecordQuery(ctx, d.Name, string(entity.OpByPk), err)
	}()

	if err := e.authorize(ctx, AuthRequest{Entity: d.Name, Operation: entity.OpByPk, Source: req.Source, Args: req.Args, Info: req.Info}); err != nil {
		return nil, err
	}
	where, complete := d.PrimaryKeyValues(req.Args)
	if !complete {
		return nil, gqlerr.NewValidationError(d.Name, d.PrimaryKey(), "all primary key arguments are required")
	}
	rows, err := e.store.Find(ctx, d, store.FindOptions{Where: where, Limit: 1, Paranoid: d.Paranoid})
	if err != nil {
		return nil, gqlerr.Storage(string(entity.OpByPk), d.Name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Defaults returns the declared field defaults of d.
func (e *Engine) Defaults(d *entity.Descriptor) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range d.Fields {
		if f.HasDefault() {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Connection resolves a to-many association as a page of edges.
func (e *Engine) Connection(ctx context.Context, req FetchRequest) (*Connection, error) {
	if !req.nested() {
		return nil, fmt.Errorf("connection on %s requires an association", req.Entity.Name)
	}
	res, err := e.fetch(ctx, req, true)
	if err != nil {
		return nil, err
	}
	rows, ok := res.value.([]entity.Record)
	if !ok {
		return nil, fmt.Errorf("fetch hook for %s returned %T, want records", req.Entity.Name, res.value)
	}
	return newConnection(rows, *req.Accessor, req.Parent, res.opts, orderKey(req.Args), res.hasNext), nil
}

// ConnectionFromRecords wraps records produced by a nested write so the
// connection fields can resolve them without another read.
func (e *Engine) ConnectionFromRecords(rows []entity.Record, acc store.Accessor, parent entity.Record) *Connection {
	return newConnection(rows, acc, parent, store.FindOptions{Paranoid: acc.Target.Paranoid}, "", false)
}

// CountRelated resolves a connection's count field: the rows matching the
// connection's filters, ignoring pagination.
func (e *Engine) CountRelated(ctx context.Context, c *Connection) (int, error) {
	opts := c.Options
	opts.Limit, opts.Offset, opts.Order = 0, 0, nil
	n, err := e.store.CountRelated(ctx, c.Accessor, c.Parent, opts)
	if err != nil {
		return 0, e.classify(gqlerr.Storage(string(entity.OpCount), c.Accessor.Target.Name, err))
	}
	return n, nil
}
