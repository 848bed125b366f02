// Package sqlstore implements store.Store over a MySQL-compatible database
// using squirrel-built statements.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"entity-graphql/internal/dbexec"
	"entity-graphql/internal/entity"
	"entity-graphql/internal/sqlutil"
	"entity-graphql/internal/store"
)

const (
	tableAlias   = "t"
	throughAlias = "j"
)

// ErrNoTransactions is returned by Begin when the executor cannot open
// transactions.
var ErrNoTransactions = errors.New("sqlstore: executor does not support transactions")

// Store is a SQL-backed store.Store.
type Store struct {
	exec   dbexec.QueryExecutor
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

// New creates a store running statements on exec. Transactions require exec
// to implement dbexec.Beginner.
func New(exec dbexec.QueryExecutor, opts ...Option) *Store {
	s := &Store{
		exec:   exec,
		scopes: store.Scopes{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

// Begin opens a database transaction. The returned value also implements
// dbexec.TxExecutor.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	b, ok := s.exec.(dbexec.Beginner)
	if !ok {
		return nil, ErrNoTransactions
	}
	return b.BeginTx(ctx)
}

func (s *Store) executor(ctx context.Context) dbexec.QueryExecutor {
	if tx, ok := store.TxFromContext(ctx); ok {
		if exec, ok := tx.(dbexec.TxExecutor); ok {
			return exec
		}
	}
	return s.exec
}

func column(d *entity.Descriptor, name string) string {
	if f, ok := d.Field(name); ok {
		return f.ColumnName()
	}
	return name
}

func selectColumns(d *entity.Descriptor, alias string) []string {
	cols := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		cols = append(cols, sqlutil.QualifiedIdentifier(alias, f.ColumnName()))
	}
	return cols
}

func fromClause(d *entity.Descriptor, alias string) string {
	return sqlutil.QuoteIdentifier(d.TableName()) + " AS " + sqlutil.QuoteIdentifier(alias)
}

// applyOptions adds filters, soft-delete handling, ordering and pagination.
func (s *Store) applyOptions(q sq.SelectBuilder, d, through *entity.Descriptor, opts store.FindOptions) (sq.SelectBuilder, error) {
	where, err := s.scopes.Apply(d.Name, opts.Scope, opts.Where)
	if err != nil {
		return q, err
	}
	cond, err := buildWhere(d, tableAlias, where)
	if err != nil {
		return q, err
	}
	if cond != nil {
		q = q.Where(cond)
	}
	if through != nil && len(opts.WhereEdges) > 0 {
		edge, err := buildWhere(through, throughAlias, opts.WhereEdges)
		if err != nil {
			return q, err
		}
		if edge != nil {
			q = q.Where(edge)
		}
	}
	if opts.Paranoid && d.Paranoid {
		q = q.Where(sq.Eq{sqlutil.QualifiedIdentifier(tableAlias, column(d, entity.DeletedAtField)): nil})
	}
	for _, o := range opts.Order {
		owner, alias := d, tableAlias
		if o.Edge {
			if through == nil {
				return q, fmt.Errorf("edge order on %s without a through entity", d.Name)
			}
			owner, alias = through, throughAlias
		}
		f, ok := owner.Field(o.Field)
		if !ok {
			return q, fmt.Errorf("unknown order field %s on %s", o.Field, owner.Name)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		q = q.OrderBy(sqlutil.QualifiedIdentifier(alias, f.ColumnName()) + " " + dir)
	}
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		if opts.Limit == 0 {
			// MySQL requires a LIMIT alongside OFFSET.
			q = q.Limit(^uint64(0) >> 1)
		}
		q = q.Offset(uint64(opts.Offset))
	}
	return q, nil
}

func (s *Store) queryRecords(ctx context.Context, q sq.SelectBuilder, d, through *entity.Descriptor, throughKey string) ([]entity.Record, error) {
	query, args, err := q.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows, d, through, throughKey)
}

func (s *Store) queryCount(ctx context.Context, q sq.SelectBuilder) (int, error) {
	query, args, err := q.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := s.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (s *Store) Find(ctx context.Context, d *entity.Descriptor, opts store.FindOptions) ([]entity.Record, error) {
	q := sq.Select(selectColumns(d, tableAlias)...).From(fromClause(d, tableAlias))
	q, err := s.applyOptions(q, d, nil, opts)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, q, d, nil, "")
}

func (s *Store) Count(ctx context.Context, d *entity.Descriptor, opts store.FindOptions) (int, error) {
	opts.Limit, opts.Offset, opts.Order = 0, 0, nil
	q := sq.Select("COUNT(*)").From(fromClause(d, tableAlias))
	q, err := s.applyOptions(q, d, nil, opts)
	if err != nil {
		return 0, err
	}
	return s.queryCount(ctx, q)
}

// prepareInsert fills defaults and timestamps and reports which primary
// key the database is expected to generate.
func (s *Store) prepareInsert(d *entity.Descriptor, values entity.Record, now time.Time) (entity.Record, string) {
	rec := d.ScalarValues(values)
	for _, f := range d.Fields {
		if _, ok := rec[f.Name]; !ok && f.HasDefault() {
			rec[f.Name] = f.Default
		}
	}
	generated := ""
	for _, pk := range d.PrimaryKeys() {
		if !entity.IsEmpty(rec[pk]) {
			continue
		}
		if f, declared := d.Field(pk); !declared || f.AutoIncrement {
			delete(rec, pk)
			generated = pk
		}
	}
	for _, ts := range []string{entity.CreatedAtField, entity.UpdatedAtField} {
		if d.HasField(ts) && rec[ts] == nil {
			rec[ts] = now
		}
	}
	return rec, generated
}

func (s *Store) Create(ctx context.Context, d *entity.Descriptor, values entity.Record) (entity.Record, error) {
	rec, generated := s.prepareInsert(d, values, s.now())

	q := sq.Insert(sqlutil.QuoteIdentifier(d.TableName()))
	var cols []string
	var vals []interface{}
	for _, f := range d.Fields {
		if v, ok := rec[f.Name]; ok {
			cols = append(cols, sqlutil.QuoteIdentifier(f.ColumnName()))
			vals = append(vals, v)
		}
	}
	q = q.Columns(cols...).Values(vals...)
	query, args, err := q.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if generated != "" {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		rec[generated] = int(id)
	}

	where, complete := d.PrimaryKeyValues(rec)
	if !complete {
		return rec, nil
	}
	found, err := s.Find(ctx, d, store.FindOptions{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return rec, nil
	}
	return found[0], nil
}

// BulkCreate inserts every row in one statement. Generated keys are derived
// from the first insert id, which holds for InnoDB consecutive allocation.
func (s *Store) BulkCreate(ctx context.Context, d *entity.Descriptor, values []entity.Record) ([]entity.Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	now := s.now()
	recs := make([]entity.Record, len(values))
	generated := ""
	used := map[string]bool{}
	for i, v := range values {
		var gen string
		recs[i], gen = s.prepareInsert(d, v, now)
		if gen != "" {
			generated = gen
		}
		for k := range recs[i] {
			used[k] = true
		}
	}

	var cols []string
	var names []string
	for _, f := range d.Fields {
		if used[f.Name] {
			cols = append(cols, sqlutil.QuoteIdentifier(f.ColumnName()))
			names = append(names, f.Name)
		}
	}
	q := sq.Insert(sqlutil.QuoteIdentifier(d.TableName())).Columns(cols...)
	for _, rec := range recs {
		row := make([]interface{}, len(names))
		for i, name := range names {
			row[i] = rec[name]
		}
		q = q.Values(row...)
	}
	query, args, err := q.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if generated != "" {
		first, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		next := int(first)
		for _, rec := range recs {
			if entity.IsEmpty(rec[generated]) {
				rec[generated] = next
				next++
			}
		}
	}
	return recs, nil
}

func (s *Store) Update(ctx context.Context, d *entity.Descriptor, values entity.Record, where store.Filter) (int, error) {
	set := d.ScalarValues(values)
	if d.HasField(entity.UpdatedAtField) {
		set[entity.UpdatedAtField] = s.now()
	}
	if len(set) == 0 {
		return s.Count(ctx, d, store.FindOptions{Where: where, Paranoid: true})
	}

	q := sq.Update(sqlutil.QuoteIdentifier(d.TableName()))
	for _, f := range d.Fields {
		if v, ok := set[f.Name]; ok {
			q = q.Set(sqlutil.QuoteIdentifier(f.ColumnName()), v)
		}
	}
	cond, err := buildWhere(d, "", where)
	if err != nil {
		return 0, err
	}
	if cond != nil {
		q = q.Where(cond)
	}
	if d.Paranoid {
		q = q.Where(sq.Eq{sqlutil.QuoteIdentifier(column(d, entity.DeletedAtField)): nil})
	}
	return s.execAffected(ctx, q)
}

func (s *Store) Destroy(ctx context.Context, d *entity.Descriptor, where store.Filter) (int, error) {
	cond, err := buildWhere(d, "", where)
	if err != nil {
		return 0, err
	}
	if d.Paranoid {
		deletedAt := sqlutil.QuoteIdentifier(column(d, entity.DeletedAtField))
		q := sq.Update(sqlutil.QuoteIdentifier(d.TableName())).
			Set(deletedAt, s.now()).
			Where(sq.Eq{deletedAt: nil})
		if cond != nil {
			q = q.Where(cond)
		}
		return s.execAffected(ctx, q)
	}
	q := sq.Delete(sqlutil.QuoteIdentifier(d.TableName()))
	if cond != nil {
		q = q.Where(cond)
	}
	return s.execAffected(ctx, q)
}

func (s *Store) execAffected(ctx context.Context, q sq.Sqlizer) (int, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
