package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/dbscan"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom/stockroom/internal/platform/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool    *pgxpool.Pool
	db      querier
	inTx    bool
	builder sq.StatementBuilderType
	scan    *pgxscan.API
}

// NewPostgres constructs the PostgreSQL store.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	dbAPI, err := pgxscan.NewDBScanAPI(dbscan.WithAllowUnknownColumns(true))
	if err != nil {
		return nil, fmt.Errorf("store: scan api: %w", err)
	}
	api, err := pgxscan.NewAPI(dbAPI)
	if err != nil {
		return nil, fmt.Errorf("store: scan api: %w", err)
	}
	return &Postgres{
		pool:    pool,
		db:      pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		scan:    api,
	}, nil
}

// WithTx implements Store.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if p.inTx {
		return fn(p)
	}
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		scoped := *p
		scoped.db = tx
		scoped.inTx = true
		return fn(&scoped)
	})
}

// Select implements Store.
func (p *Postgres) Select(ctx context.Context, organizationID string, table Table, q Query, dest any) error {
	if err := checkScope(organizationID, table); err != nil {
		return err
	}
	stmt := applyQuery(p.builder.Select("*").From(string(table)), organizationID, q)
	if len(q.OrderBy) > 0 {
		stmt = stmt.OrderBy(q.OrderBy...)
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("store: build select %s: %w", table, err)
	}
	if err := p.scan.Select(ctx, p.db, dest, query, args...); err != nil {
		return fmt.Errorf("store: select %s: %w", table, err)
	}
	return nil
}

// Count implements Store.
func (p *Postgres) Count(ctx context.Context, organizationID string, table Table, q Query) (int64, error) {
	if err := checkScope(organizationID, table); err != nil {
		return 0, err
	}
	query, args, err := applyQuery(p.builder.Select("COUNT(*)").From(string(table)), organizationID, q).ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build count %s: %w", table, err)
	}
	var n int64
	if err := p.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return n, nil
}

// Insert implements Store. The organization column is always overwritten.
func (p *Postgres) Insert(ctx context.Context, organizationID string, table Table, row Record) error {
	if err := checkScope(organizationID, table); err != nil {
		return err
	}
	values := make(map[string]any, len(row)+1)
	for k, v := range row {
		values[k] = v
	}
	values[OrganizationColumn] = organizationID
	query, args, err := p.builder.Insert(string(table)).SetMap(values).ToSql()
	if err != nil {
		return fmt.Errorf("store: build insert %s: %w", table, err)
	}
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: insert %s: %w", table, err)
	}
	return nil
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, organizationID string, table Table, values Record, q Query) (int64, error) {
	if err := checkScope(organizationID, table); err != nil {
		return 0, err
	}
	set := make(map[string]any, len(values))
	for k, v := range values {
		if k == OrganizationColumn {
			continue
		}
		set[k] = v
	}
	stmt := p.builder.Update(string(table)).SetMap(set).Where(sq.Eq{OrganizationColumn: organizationID})
	for _, cond := range conditions(q) {
		stmt = stmt.Where(cond)
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build update %s: %w", table, err)
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, organizationID string, table Table, q Query) (int64, error) {
	if err := checkScope(organizationID, table); err != nil {
		return 0, err
	}
	stmt := p.builder.Delete(string(table)).Where(sq.Eq{OrganizationColumn: organizationID})
	for _, cond := range conditions(q) {
		stmt = stmt.Where(cond)
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build delete %s: %w", table, err)
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Organizations implements OrganizationLister.
func (p *Postgres) Organizations(ctx context.Context) ([]string, error) {
	query, args, err := p.builder.Select("DISTINCT " + OrganizationColumn).
		From(string(TableItems)).
		Where(sq.Eq{"auto_reorder_enabled": true}).
		OrderBy(OrganizationColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build organizations: %w", err)
	}
	var orgs []string
	if err := p.scan.Select(ctx, p.db, &orgs, query, args...); err != nil {
		return nil, fmt.Errorf("store: organizations: %w", err)
	}
	return orgs, nil
}

func applyQuery(stmt sq.SelectBuilder, organizationID string, q Query) sq.SelectBuilder {
	stmt = stmt.Where(sq.Eq{OrganizationColumn: organizationID})
	for _, cond := range conditions(q) {
		stmt = stmt.Where(cond)
	}
	return stmt
}

func conditions(q Query) []any {
	conds := make([]any, 0, 3)
	if len(q.Eq) > 0 {
		eq := sq.Eq{}
		for k, v := range q.Eq {
			if k == OrganizationColumn {
				continue
			}
			eq[k] = v
		}
		if len(eq) > 0 {
			conds = append(conds, eq)
		}
	}
	if q.Range != nil && q.Range.Column != "" {
		if !q.Range.From.IsZero() {
			conds = append(conds, sq.GtOrEq{q.Range.Column: q.Range.From})
		}
		if !q.Range.To.IsZero() {
			conds = append(conds, sq.LtOrEq{q.Range.Column: q.Range.To})
		}
	}
	return conds
}
