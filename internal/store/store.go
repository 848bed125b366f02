// Package store defines the storage collaborator the resolvers delegate to.
// Implementations live in memstore (in-process) and sqlstore (MySQL).
package store

import (
	"context"
	"fmt"

	"entity-graphql/internal/entity"
)

// Filter is a where map: field -> value, field -> {op: value}, or
// and/or -> [Filter].
type Filter = map[string]interface{}

// Order is one ordering clause. Edge clauses sort by through-entity fields.
type Order struct {
	Field string
	Desc  bool
	Edge  bool
}

// ScopeCall selects a named scope and its arguments.
type ScopeCall struct {
	Name string
	Args []interface{}
}

// FindOptions controls a read.
type FindOptions struct {
	Where      Filter
	WhereEdges Filter
	Order      []Order
	// Limit of zero means unlimited.
	Limit  int
	Offset int
	// Paranoid hides soft-deleted rows of paranoid entities.
	Paranoid bool
	Scope    *ScopeCall
}

// Accessor addresses one association of a source entity. It corresponds to
// the get/count/add/set/remove{Suffix} operations.
type Accessor struct {
	Association entity.Association
	Suffix      string
	Source      *entity.Descriptor
	Target      *entity.Descriptor
	Through     *entity.Descriptor
}

// ThroughKey is the key under which Related attaches through rows to
// targets of a ToManyThrough association.
func (a Accessor) ThroughKey() string {
	if a.Through == nil {
		return ""
	}
	return a.Through.Name
}

// Tx is an open storage transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the storage collaborator. Calls made with a context carrying a
// Tx (see WithTx) run inside that transaction.
type Store interface {
	Find(ctx context.Context, d *entity.Descriptor, opts FindOptions) ([]entity.Record, error)
	Count(ctx context.Context, d *entity.Descriptor, opts FindOptions) (int, error)
	Create(ctx context.Context, d *entity.Descriptor, values entity.Record) (entity.Record, error)
	BulkCreate(ctx context.Context, d *entity.Descriptor, values []entity.Record) ([]entity.Record, error)
	Update(ctx context.Context, d *entity.Descriptor, values entity.Record, where Filter) (int, error)
	Destroy(ctx context.Context, d *entity.Descriptor, where Filter) (int, error)

	Related(ctx context.Context, acc Accessor, source entity.Record, opts FindOptions) ([]entity.Record, error)
	CountRelated(ctx context.Context, acc Accessor, source entity.Record, opts FindOptions) (int, error)
	// Add links target to source. For ToManyThrough the through row is
	// created from through and returned.
	Add(ctx context.Context, acc Accessor, source, target, through entity.Record) (entity.Record, error)
	// Set replaces the linked targets. An empty list unlinks everything.
	Set(ctx context.Context, acc Accessor, source entity.Record, targets []entity.Record) error
	Remove(ctx context.Context, acc Accessor, source entity.Record, targets []entity.Record) error

	Begin(ctx context.Context) (Tx, error)
}

type txKey struct{}

// WithTx returns a context whose store calls join tx.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx.
func TxFromContext(ctx context.Context) (Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok && tx != nil
}

// ScopeFunc builds the filter a named scope contributes.
type ScopeFunc func(args ...interface{}) Filter

// Scopes holds named scopes per entity name.
type Scopes map[string]map[string]ScopeFunc

// Register adds a scope for an entity.
func (s Scopes) Register(entityName, name string, fn ScopeFunc) {
	if s[entityName] == nil {
		s[entityName] = make(map[string]ScopeFunc)
	}
	s[entityName][name] = fn
}

// Apply returns where combined with the scope filter.
func (s Scopes) Apply(entityName string, call *ScopeCall, where Filter) (Filter, error) {
	if call == nil || call.Name == "" {
		return where, nil
	}
	fn, ok := s[entityName][call.Name]
	if !ok {
		return nil, fmt.Errorf("unknown scope %q for %s", call.Name, entityName)
	}
	scoped := fn(call.Args...)
	if len(where) == 0 {
		return scoped, nil
	}
	if len(scoped) == 0 {
		return where, nil
	}
	return Filter{"and": []interface{}{where, scoped}}, nil
}

// PrimaryKeyFilter builds an equality filter on the primary keys of rec.
func PrimaryKeyFilter(d *entity.Descriptor, rec entity.Record) Filter {
	where := Filter{}
	for _, pk := range d.PrimaryKeys() {
		where[pk] = rec[pk]
	}
	return where
}
