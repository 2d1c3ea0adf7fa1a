//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "rosterlink/pkg/platform/audit"
	"rosterlink/pkg/platform/audit/store/postgres"
	txcontext "rosterlink/pkg/platform/tx"
	"rosterlink/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.postgres.Exec(s.T(), `CREATE SCHEMA IF NOT EXISTS audit`)
	s.store = postgres.New(s.postgres.Pool, "audit")
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
	s.Require().NoError(s.store.EnsureSchema(context.Background()), "schema creation is idempotent")
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit.audit_events"))
}

func (s *AuditStoreSuite) event(runID string, action audit.AuditEvent, at time.Time) audit.Event {
	return audit.Event{
		ID:        uuid.New(),
		Timestamp: at,
		RunID:     runID,
		Action:    string(action),
		Subject:   "zed@example.com",
	}
}

func (s *AuditStoreSuite) TestAppendAndListByRun() {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	first := s.event("run-1", audit.EventAmbiguousDirectoryKey, base)
	first.Directory, first.Field, first.Key, first.Candidates = "hr", "smtp", "bob@example.com", 2
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, s.event("run-1", audit.EventResolutionCompleted, base.Add(time.Second))))
	s.Require().NoError(s.store.Append(ctx, s.event("run-2", audit.EventSubjectDropped, base)))

	events, err := s.store.ListByRun(ctx, "run-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(first.ID, events[0].ID)
	s.Equal(audit.CategoryDataQuality, events[0].Category)
	s.Equal(2, events[0].Candidates)
	s.True(base.Equal(events[0].Timestamp))
	s.Equal(string(audit.EventResolutionCompleted), events[1].Action)
}

func (s *AuditStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	event := s.event("run-1", audit.EventSubjectUnresolved, time.Now().UTC())
	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.ListByRun(ctx, "run-1")
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *AuditStoreSuite) TestAppendJoinsContextTransaction() {
	ctx := context.Background()
	tx, err := s.postgres.Pool.Begin(ctx)
	s.Require().NoError(err)

	event := s.event("run-tx", audit.EventSubjectUnresolved, time.Now().UTC())
	s.Require().NoError(s.store.Append(txcontext.WithTx(ctx, tx), event))
	s.Require().NoError(tx.Rollback(ctx))

	events, err := s.store.ListByRun(ctx, "run-tx")
	s.Require().NoError(err)
	s.Empty(events, "rolled back insert must not be visible")
}

func (s *AuditStoreSuite) TestListRecent() {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := range 5 {
		s.Require().NoError(s.store.Append(ctx, s.event("run-1", audit.EventSubjectUnresolved, base.Add(time.Duration(i)*time.Minute))))
	}

	events, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.True(events[0].Timestamp.After(events[1].Timestamp))
}
