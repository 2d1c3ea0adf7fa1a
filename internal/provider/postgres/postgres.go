// Package postgres serves datasets from PostgreSQL tables. Every fetch
// acquires one pooled connection and releases it when the query finishes;
// no session outlives a call.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

const DefaultID = "postgres"

// Provider answers queries against tables in a single default schema.
// A dataset may be schema-qualified ("hr.employees") to override it.
type Provider struct {
	id     string
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

type Option func(*Provider)

func WithID(id string) Option {
	return func(p *Provider) {
		p.id = id
	}
}

func WithSchema(schema string) Option {
	return func(p *Provider) {
		p.schema = schema
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func New(pool *pgxpool.Pool, opts ...Option) (*Provider, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	p := &Provider{
		id:     DefaultID,
		pool:   pool,
		schema: "public",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Health(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return p.classify("", "ping", err)
	}
	return nil
}

func (p *Provider) Fetch(ctx context.Context, q provider.Query) (*identity.Table, error) {
	q = q.Normalized()
	if err := q.Validate(); err != nil {
		return nil, provider.NewError(provider.ErrorContractMismatch, p.id, q.Dataset, "invalid query", err)
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, p.classify(q.Dataset, "acquire connection", err)
	}
	defer conn.Release()

	table := p.table(q.Dataset)
	available, err := p.columns(ctx, conn, table)
	if err != nil {
		return nil, p.classify(q.Dataset, "describe table", err)
	}

	stmt, args, columns, err := buildSelect(table, available, q)
	if err != nil {
		return nil, provider.NewError(provider.ErrorContractMismatch, p.id, q.Dataset, "build query", err)
	}

	rows, err := conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, p.classify(q.Dataset, "query", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, p.classify(q.Dataset, "read rows", err)
	}

	out := &identity.Table{Name: q.Dataset, Columns: columns, Rows: make([]identity.Row, len(maps))}
	for i, m := range maps {
		out.Rows[i] = identity.Row(m)
	}
	p.logger.DebugContext(ctx, "postgres dataset loaded", "dataset", q.Dataset, "rows", len(out.Rows))
	return out, nil
}

func (p *Provider) table(dataset string) pgx.Identifier {
	if schema, name, ok := strings.Cut(dataset, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{p.schema, dataset}
}

// columns lists the table's columns in declaration order without reading rows.
func (p *Provider) columns(ctx context.Context, conn *pgxpool.Conn, table pgx.Identifier) ([]string, error) {
	rows, err := conn.Query(ctx, "SELECT * FROM "+table.Sanitize()+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	rows.Close()
	return cols, rows.Err()
}

// buildSelect renders the query. Filters compare the text form of the
// column, matching how CSV and memory providers compare values.
func buildSelect(table pgx.Identifier, available []string, q provider.Query) (string, []any, []string, error) {
	has := make(map[string]struct{}, len(available))
	for _, c := range available {
		has[c] = struct{}{}
	}

	columns := available
	if len(q.Columns) > 0 {
		columns = make([]string, 0, len(q.Columns))
		for _, c := range q.Columns {
			if _, ok := has[c]; ok {
				columns = append(columns, c)
			}
		}
	}

	var where []string
	var args []any
	for _, col := range sortedKeys(q.Filters) {
		if _, ok := has[col]; !ok {
			return "", nil, nil, fmt.Errorf("filter on unknown column %q", col)
		}
		args = append(args, q.Filters[col])
		where = append(where, fmt.Sprintf("%s::text = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}
	for _, col := range sortedKeys(q.Operators) {
		if _, ok := has[col]; !ok {
			return "", nil, nil, fmt.Errorf("operator on unknown column %q", col)
		}
		where = append(where, pgx.Identifier{col}.Sanitize()+" IS NOT NULL")
	}

	selectList := make([]string, len(columns))
	for i, c := range columns {
		selectList[i] = pgx.Identifier{c}.Sanitize()
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectList, ", "))
	b.WriteString(" FROM ")
	b.WriteString(table.Sanitize())
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	return b.String(), args, columns, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const undefinedTable = "42P01"

func (p *Provider) classify(dataset, op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.Canceled):
		return provider.NewError(provider.ErrorCanceled, p.id, dataset, op, err)
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return provider.NewError(provider.ErrorTimeout, p.id, dataset, op, err)
	case errors.As(err, &pgErr) && pgErr.Code == undefinedTable:
		return provider.NewError(provider.ErrorNotFound, p.id, dataset, op, err)
	case errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "42"):
		return provider.NewError(provider.ErrorContractMismatch, p.id, dataset, op, err)
	case errors.As(err, &pgErr):
		return provider.NewError(provider.ErrorInternal, p.id, dataset, op, err)
	default:
		return provider.NewError(provider.ErrorOutage, p.id, dataset, op, err)
	}
}
