// Package employee looks up the calling user's own directory record.
package employee

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"rosterlink/internal/identity"
	"rosterlink/internal/identity/plan"
	"rosterlink/internal/provider"
	dErrors "rosterlink/pkg/domain-errors"
	"rosterlink/pkg/requestcontext"
)

// UserField carries the requester's identifier on every reply.
const UserField = "user"

// Fetcher routes a query to a provider. *provider.Registry implements it.
type Fetcher interface {
	Fetch(ctx context.Context, providerID string, q provider.Query) (*identity.Table, error)
}

type Service struct {
	fetcher Fetcher
	lookup  *plan.Lookup
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(fetcher Fetcher, lookup *plan.Lookup, opts ...Option) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("employee lookup is required")
	}
	s := &Service{
		fetcher: fetcher,
		lookup:  lookup,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup returns the first directory row whose key field equals requester,
// with UserField set. An unknown requester yields an empty row, not an error.
func (s *Service) Lookup(ctx context.Context, requester string) (identity.Row, error) {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "requester is required")
	}

	table, err := s.fetcher.Fetch(ctx, s.lookup.Provider, s.lookup.Query(requester))
	if err != nil {
		s.logger.ErrorContext(ctx, "employee lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"requester", requester,
			"error", err,
		)
		if errors.Is(err, provider.ErrProviderUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "employee directory unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "employee lookup failed")
	}

	if table.Len() == 0 {
		s.logger.InfoContext(ctx, "requester not in employee directory",
			"request_id", requestcontext.RequestID(ctx),
			"requester", requester,
		)
		return identity.Row{}, nil
	}

	row := make(identity.Row, len(table.Rows[0])+1)
	for k, v := range table.Rows[0] {
		row[k] = v
	}
	row[UserField] = requester
	return row, nil
}
