package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rosterlink/internal/identity"
	"rosterlink/internal/identity/plan"
)

type snapshot struct {
	subjects    *identity.Table
	directories map[string]*identity.Table
}

// load fetches the subject table and every directory the passes use in
// parallel. The first failure cancels the remaining fetches.
func (s *Service) load(ctx context.Context) (*snapshot, error) {
	g, gctx := errgroup.WithContext(ctx)

	snap := &snapshot{directories: make(map[string]*identity.Table)}
	var mu sync.Mutex

	g.Go(func() error {
		table, err := s.fetch(gctx, "subjects", s.file.Subjects)
		if err != nil {
			return err
		}
		snap.subjects = table
		return nil
	})

	for _, name := range s.file.DirectoryNames() {
		src := s.file.Directories[name]
		g.Go(func() error {
			table, err := s.fetch(gctx, name, src)
			if err != nil {
				return err
			}
			mu.Lock()
			snap.directories[name] = table
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) fetch(ctx context.Context, label string, src plan.Source) (*identity.Table, error) {
	ctx, span := s.tracer.Start(ctx, "enrichment.fetch")
	defer span.End()

	start := time.Now()
	table, err := s.fetcher.Fetch(ctx, src.Provider, src.Query)
	s.metrics.ObserveFetch(label, time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load %s: %w", label, err)
	}
	s.logger.DebugContext(ctx, "snapshot loaded",
		"source", label,
		"provider", src.Provider,
		"dataset", src.Query.Dataset,
		"rows", table.Len(),
	)
	return table, nil
}
