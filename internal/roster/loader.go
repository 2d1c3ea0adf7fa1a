package roster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "rosterlink/pkg/platform/audit"
	txcontext "rosterlink/pkg/platform/tx"
	"rosterlink/pkg/requestcontext"
)

const (
	DefaultSchema = "license"
	DefaultTable  = "analyst_functions_users"
)

// Loader copies parsed exports into one table. A load is atomic: the
// table is created if absent, optionally emptied, and filled in a single
// transaction.
type Loader struct {
	pool    *pgxpool.Pool
	schema  string
	table   string
	columns []Column
	replace bool
	audit   audit.Store
	logger  *slog.Logger
}

type Option func(*Loader)

func WithSchema(schema string) Option {
	return func(l *Loader) {
		l.schema = schema
	}
}

func WithTable(table string) Option {
	return func(l *Loader) {
		l.table = table
	}
}

func WithColumns(columns []Column) Option {
	return func(l *Loader) {
		l.columns = columns
	}
}

// WithReplace truncates the table before copying.
func WithReplace(replace bool) Option {
	return func(l *Loader) {
		l.replace = replace
	}
}

// WithAudit records each load. A store that honours the transaction in
// the context commits the event together with the rows.
func WithAudit(store audit.Store) Option {
	return func(l *Loader) {
		l.audit = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func NewLoader(pool *pgxpool.Pool, opts ...Option) (*Loader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	l := &Loader{
		pool:    pool,
		schema:  DefaultSchema,
		table:   DefaultTable,
		columns: DefaultColumns(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	if len(l.columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	return l, nil
}

func (l *Loader) identifier() pgx.Identifier {
	return pgx.Identifier{l.schema, l.table}
}

// Load parses data and copies it in. It returns the number of rows written.
func (l *Loader) Load(ctx context.Context, data []byte) (int64, error) {
	rows, err := Parse(data, l.columns)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.prepare(ctx, tx); err != nil {
		return 0, err
	}

	names := make([]string, len(l.columns))
	for i, c := range l.columns {
		names[i] = c.Name()
	}
	n, err := tx.CopyFrom(ctx, l.identifier(), names, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", l.identifier().Sanitize(), err)
	}

	if l.audit != nil {
		event := audit.Event{
			ID:        uuid.New(),
			Category:  audit.EventRosterLoaded.Category(),
			Timestamp: requestcontext.Now(ctx),
			RunID:     uuid.NewString(),
			Action:    string(audit.EventRosterLoaded),
			Subject:   l.identifier().Sanitize(),
			Reason:    fmt.Sprintf("rows=%d replace=%t", n, l.replace),
			ActorID:   requestcontext.Requester(ctx),
		}
		if err := l.audit.Append(txcontext.WithTx(ctx, tx), event); err != nil {
			return 0, fmt.Errorf("record load: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	l.logger.InfoContext(ctx, "roster loaded",
		"table", l.identifier().Sanitize(),
		"rows", n,
		"replace", l.replace,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

func (l *Loader) prepare(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{l.schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec(ctx, l.createTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if l.replace {
		if _, err := tx.Exec(ctx, "TRUNCATE "+l.identifier().Sanitize()); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}
	return nil
}

func (l *Loader) createTableSQL() string {
	sql := "CREATE TABLE IF NOT EXISTS " + l.identifier().Sanitize() + " (id BIGSERIAL PRIMARY KEY"
	for _, c := range l.columns {
		sql += ", " + pgx.Identifier{c.Name()}.Sanitize() + " " + c.sqlType()
	}
	return sql + ")"
}
