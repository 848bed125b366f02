// Package memstore is an in-process store.Store. It backs the "memory"
// storage driver and serves as the storage fake in resolver tests.
//
// A transaction works on a private copy of every table and replaces the
// committed tables on Commit, so concurrent writers outside the transaction
// are overwritten. That is acceptable for a development and test store.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/store"
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("memstore: transaction already finished")

type state struct {
	tables map[string][]entity.Record
	seq    map[string]int
}

func newState() *state {
	return &state{
		tables: make(map[string][]entity.Record),
		seq:    make(map[string]int),
	}
}

func (st *state) clone() *state {
	out := newState()
	for name, rows := range st.tables {
		copied := make([]entity.Record, len(rows))
		for i, row := range rows {
			copied[i] = copyRecord(row)
		}
		out.tables[name] = copied
	}
	for name, n := range st.seq {
		out.seq[name] = n
	}
	return out
}

// Store is an in-memory store.Store.
type Store struct {
	mu     sync.Mutex
	state  *state
	scopes store.Scopes
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithScopes registers named scopes.
func WithScopes(scopes store.Scopes) Option {
	return func(s *Store) {
		s.scopes = scopes
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state:  newState(),
		scopes: store.Scopes{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

type tx struct {
	store *Store
	mu    sync.Mutex
	state *state
	done  bool
}

// Begin snapshots the committed tables into a new transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &tx{store: s, state: s.state.clone()}, nil
}

func (t *tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}

// acquire locks and returns the state a call should operate on.
func (s *Store) acquire(ctx context.Context) (*state, func(), error) {
	if current, ok := store.TxFromContext(ctx); ok {
		if t, ok := current.(*tx); ok && t.store == s {
			t.mu.Lock()
			if t.done {
				t.mu.Unlock()
				return nil, nil, ErrTxDone
			}
			return t.state, t.mu.Unlock, nil
		}
	}
	s.mu.Lock()
	return s.state, s.mu.Unlock, nil
}

// Rows returns a copy of the committed rows of an entity, including
// soft-deleted ones.
func (s *Store) Rows(name string) []entity.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.state.tables[name]
	out := make([]entity.Record, len(rows))
	for i, row := range rows {
		out[i] = copyRecord(row)
	}
	return out
}

func (s *Store) Find(ctx context.Context, d *entity.Descriptor, opts store.FindOptions) ([]entity.Record, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.selectRows(d, nil, "", st.tables[d.Name], opts)
}

func (s *Store) Count(ctx context.Context, d *entity.Descriptor, opts store.FindOptions) (int, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	opts.Limit, opts.Offset, opts.Order = 0, 0, nil
	rows, err := s.selectRows(d, nil, "", st.tables[d.Name], opts)
	return len(rows), err
}

func (s *Store) Create(ctx context.Context, d *entity.Descriptor, values entity.Record) (entity.Record, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.insert(st, d, values)
}

func (s *Store) BulkCreate(ctx context.Context, d *entity.Descriptor, values []entity.Record) ([]entity.Record, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// All or nothing: insert into a scratch copy of the table first.
	scratch := &state{tables: map[string][]entity.Record{d.Name: append([]entity.Record(nil), st.tables[d.Name]...)}, seq: map[string]int{d.Name: st.seq[d.Name]}}
	out := make([]entity.Record, 0, len(values))
	for _, v := range values {
		rec, err := s.insert(scratch, d, v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	st.tables[d.Name] = scratch.tables[d.Name]
	st.seq[d.Name] = scratch.seq[d.Name]
	return out, nil
}

func (s *Store) insert(st *state, d *entity.Descriptor, values entity.Record) (entity.Record, error) {
	rec := copyRecord(d.ScalarValues(values))
	for _, f := range d.Fields {
		if _, ok := rec[f.Name]; !ok && f.HasDefault() {
			rec[f.Name] = f.Default
		}
	}

	for _, pk := range d.PrimaryKeys() {
		f, declared := d.Field(pk)
		if !entity.IsEmpty(rec[pk]) {
			if n, ok := toInt(rec[pk]); ok && n > st.seq[d.Name] {
				st.seq[d.Name] = n
			}
			continue
		}
		if !declared || f.AutoIncrement {
			st.seq[d.Name]++
			rec[pk] = st.seq[d.Name]
		}
	}

	if pkWhere, complete := d.PrimaryKeyValues(rec); complete {
		for _, row := range st.tables[d.Name] {
			if matchesKeys(row, pkWhere) {
				return nil, fmt.Errorf("duplicate primary key for %s: %v", d.Name, pkWhere)
			}
		}
	}

	now := s.now()
	for _, ts := range []string{entity.CreatedAtField, entity.UpdatedAtField} {
		if d.HasField(ts) && rec[ts] == nil {
			rec[ts] = now
		}
	}
	st.tables[d.Name] = append(st.tables[d.Name], rec)
	return copyRecord(rec), nil
}

func (s *Store) Update(ctx context.Context, d *entity.Descriptor, values entity.Record, where store.Filter) (int, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	expr, err := store.ParseFilter(d, where)
	if err != nil {
		return 0, err
	}
	set := d.ScalarValues(values)
	now := s.now()
	count := 0
	for _, row := range st.tables[d.Name] {
		if softDeleted(d, row) || !matchExpr(row, expr) {
			continue
		}
		for k, v := range set {
			row[k] = v
		}
		if d.HasField(entity.UpdatedAtField) {
			row[entity.UpdatedAtField] = now
		}
		count++
	}
	return count, nil
}

func (s *Store) Destroy(ctx context.Context, d *entity.Descriptor, where store.Filter) (int, error) {
	st, unlock, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	expr, err := store.ParseFilter(d, where)
	if err != nil {
		return 0, err
	}
	rows := st.tables[d.Name]
	kept := rows[:0]
	count := 0
	now := s.now()
	for _, row := range rows {
		if softDeleted(d, row) || !matchExpr(row, expr) {
			kept = append(kept, row)
			continue
		}
		count++
		if d.Paranoid {
			row[entity.DeletedAtField] = now
			kept = append(kept, row)
		}
	}
	st.tables[d.Name] = kept
	return count, nil
}

func softDeleted(d *entity.Descriptor, row entity.Record) bool {
	return d.Paranoid && row[entity.DeletedAtField] != nil
}
