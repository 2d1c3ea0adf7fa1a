package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "rosterlink/pkg/platform/audit"
	txcontext "rosterlink/pkg/platform/tx"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS %s (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	run_id      TEXT NOT NULL,
	action      TEXT NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	directory   TEXT NOT NULL DEFAULT '',
	field       TEXT NOT NULL DEFAULT '',
	key         TEXT NOT NULL DEFAULT '',
	candidates  INTEGER NOT NULL DEFAULT 0,
	pass        TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	actor_id    TEXT NOT NULL DEFAULT ''
)`

const indexDDL = `CREATE INDEX IF NOT EXISTS %s ON %s (run_id, timestamp)`

const selectColumns = `id, category, timestamp, run_id, action, subject, directory, field,
	key, candidates, pass, reason, request_id, actor_id`

// Store persists audit events in PostgreSQL. Inserts are idempotent on the
// event ID so replays from Kafka are harmless.
type Store struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// New creates a store writing to schema.audit_events.
func New(pool *pgxpool.Pool, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{pool: pool, table: pgx.Identifier{schema, "audit_events"}}
}

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

// EnsureSchema creates the schema, the audit table and its run index when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s.table[0]}.Sanitize()); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(schemaDDL, s.table.Sanitize())); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	index := pgx.Identifier{"audit_events_run_idx"}.Sanitize()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(indexDDL, index, s.table.Sanitize())); err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

// Append inserts an event. Duplicate IDs are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `INSERT INTO ` + s.table.Sanitize() + ` (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	_, err := s.execer(ctx).Exec(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		event.RunID,
		event.Action,
		event.Subject,
		event.Directory,
		event.Field,
		event.Key,
		event.Candidates,
		event.Pass,
		event.Reason,
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByRun returns the events of one run, oldest first.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + s.table.Sanitize() + `
		WHERE run_id = $1
		ORDER BY timestamp, id`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return collectEvents(rows)
}

// ListRecent returns the N most recent events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + s.table.Sanitize() + `
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]audit.Event, error) {
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Event, error) {
		var (
			event    audit.Event
			category string
		)
		err := row.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.RunID,
			&event.Action,
			&event.Subject,
			&event.Directory,
			&event.Field,
			&event.Key,
			&event.Candidates,
			&event.Pass,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
		)
		event.Category = audit.EventCategory(category)
		return event, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}
