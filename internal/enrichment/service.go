// Package enrichment runs resolution plans against live provider snapshots
// and serves the enriched roster.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rosterlink/internal/enrichment/cache"
	"rosterlink/internal/enrichment/metrics"
	"rosterlink/internal/identity"
	"rosterlink/internal/identity/plan"
	"rosterlink/internal/provider"
	audit "rosterlink/pkg/platform/audit"
	"rosterlink/pkg/requestcontext"
)

// Fetcher routes a query to a provider. *provider.Registry implements it.
type Fetcher interface {
	Fetch(ctx context.Context, providerID string, q provider.Query) (*identity.Table, error)
}

// AuditPublisher receives data-quality events. Emit failures are logged,
// never returned to the caller.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Report is one resolution run as served to clients.
type Report struct {
	RunID       string          `json:"run_id"`
	Policy      identity.Policy `json:"policy"`
	GeneratedAt time.Time       `json:"generated_at"`
	Stats       identity.Stats  `json:"stats"`
	Ambiguities int             `json:"ambiguities"`
	// Columns orders the keys of every user row: subject columns, then
	// enrichment targets, then provenance.
	Columns []string       `json:"columns"`
	Users   []identity.Row `json:"users"`
}

const cacheKeyPrefix = "license-users:"

// Service loads snapshots, resolves them and memoizes the result per policy.
type Service struct {
	fetcher  Fetcher
	file     *plan.File
	resolver *identity.Resolver
	memo     *cache.Memo[Report]
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

// WithCache memoizes LicenseUsers. Without it every call runs the plan.
func WithCache(memo *cache.Memo[Report]) Option {
	return func(s *Service) {
		s.memo = memo
	}
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(fetcher Fetcher, file *plan.File, opts ...Option) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if file == nil {
		return nil, fmt.Errorf("plan is required")
	}
	s := &Service{
		fetcher: fetcher,
		file:    file,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer("rosterlink/internal/enrichment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	resolver, err := identity.NewResolver(file.Plan, identity.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.resolver = resolver
	return s, nil
}

// Plan returns the plan the service runs.
func (s *Service) Plan() identity.Plan {
	return s.resolver.Plan()
}

// LicenseUsers returns the enriched roster for policy (empty means the
// plan's policy), served from the cache when fresh. Errors are domain errors.
func (s *Service) LicenseUsers(ctx context.Context, policy identity.Policy) (*Report, error) {
	if policy == "" {
		policy = s.resolver.Plan().Policy
	}
	if s.memo == nil {
		report, err := s.Run(ctx, policy)
		if err != nil {
			return nil, translate(err)
		}
		return report, nil
	}

	report, hit, err := s.memo.Do(ctx, cacheKeyPrefix+string(policy), func(ctx context.Context) (Report, error) {
		r, err := s.Run(ctx, policy)
		if err != nil {
			return Report{}, err
		}
		return *r, nil
	})
	s.metrics.IncCache(hit)
	if err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

// Refresh drops the cached results so the next call reruns the plan.
func (s *Service) Refresh(ctx context.Context) error {
	if s.memo == nil {
		return nil
	}
	for _, policy := range []identity.Policy{identity.PolicyRetainAll, identity.PolicyMatchOrDrop} {
		if err := s.memo.Invalidate(ctx, cacheKeyPrefix+string(policy)); err != nil {
			return translate(err)
		}
	}
	return nil
}

// Run executes the plan once, bypassing the cache. Errors are returned
// as produced by providers and the resolver.
func (s *Service) Run(ctx context.Context, policy identity.Policy) (_ *Report, err error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "enrichment.Run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("policy", string(policy)),
	))
	start := time.Now()
	defer func() {
		s.metrics.ObserveRun(err == nil, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.emit(ctx, audit.Event{RunID: runID, Action: string(audit.EventResolutionFailed), Reason: err.Error()})
		}
		span.End()
	}()

	resolver := s.resolver
	if policy != "" && policy != resolver.Plan().Policy {
		resolver, err = resolver.WithPolicy(policy)
		if err != nil {
			return nil, err
		}
	}

	snap, err := s.load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "snapshot load failed",
			"run_id", runID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	result, err := resolver.Resolve(snap.subjects, snap.directories)
	if err != nil {
		s.logger.ErrorContext(ctx, "resolution failed",
			"run_id", runID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	s.record(ctx, runID, resolver.Plan(), result)
	span.SetAttributes(
		attribute.Int("subjects", result.Stats.Total),
		attribute.Int("resolved", result.Stats.Resolved()),
		attribute.Int("ambiguities", len(result.Ambiguities)),
	)

	return &Report{
		RunID:       runID,
		Policy:      resolver.Plan().Policy,
		GeneratedAt: requestcontext.Now(ctx),
		Stats:       result.Stats,
		Ambiguities: len(result.Ambiguities),
		Columns:     outputColumns(snap.subjects, resolver.Plan()),
		Users:       result.Records,
	}, nil
}

func outputColumns(subjects *identity.Table, p identity.Plan) []string {
	cols := make([]string, 0, len(subjects.Columns)+len(p.Enrich)+1)
	cols = append(cols, subjects.Columns...)
	for _, f := range p.Enrich {
		cols = append(cols, f.Target)
	}
	return append(cols, p.ProvenanceField)
}

// record logs, counts and audits what a successful run found.
func (s *Service) record(ctx context.Context, runID string, p identity.Plan, result *identity.Result) {
	for _, pc := range result.Stats.Passes {
		s.metrics.AddPassMatches(pc.Pass, pc.Matched)
	}
	s.metrics.AddUnresolved(result.Stats.Terminal, result.Stats.Dropped)

	for _, a := range result.Ambiguities {
		s.metrics.IncAmbiguity(a.Directory)
		s.emit(ctx, audit.Event{
			RunID:      runID,
			Action:     string(audit.EventAmbiguousDirectoryKey),
			Directory:  a.Directory,
			Field:      a.Field,
			Key:        string(a.Key),
			Candidates: a.Candidates,
		})
	}

	action := audit.EventSubjectUnresolved
	if p.Policy == identity.PolicyMatchOrDrop {
		action = audit.EventSubjectDropped
	}
	for i := range result.Subjects {
		sub := &result.Subjects[i]
		if sub.Outcome.State != identity.StateTerminal {
			continue
		}
		s.emit(ctx, audit.Event{
			RunID:   runID,
			Action:  string(action),
			Subject: subjectLabel(p, sub),
			Reason:  "no pass matched",
		})
	}

	summary := summarize(result.Stats)
	s.emit(ctx, audit.Event{RunID: runID, Action: string(audit.EventResolutionCompleted), Reason: summary})

	s.logger.InfoContext(ctx, "resolution complete",
		"run_id", runID,
		"request_id", requestcontext.RequestID(ctx),
		"policy", string(p.Policy),
		"subjects", result.Stats.Total,
		"resolved", result.Stats.Resolved(),
		"terminal", result.Stats.Terminal,
		"dropped", result.Stats.Dropped,
		"ambiguities", len(result.Ambiguities),
	)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Requester(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"run_id", event.RunID,
			"error", err,
		)
	}
}

// subjectLabel identifies a subject by the key its first pass looked up.
func subjectLabel(p identity.Plan, sub *identity.Subject) string {
	if len(p.Passes) == 0 {
		return ""
	}
	field := p.Passes[0].SubjectField
	if k, ok := sub.Derived[field]; ok {
		return string(k)
	}
	return string(identity.NormalizeValue(sub.Row[field]))
}

func summarize(stats identity.Stats) string {
	out := fmt.Sprintf("total=%d", stats.Total)
	for _, pc := range stats.Passes {
		out += fmt.Sprintf(" %s=%d", pc.Pass, pc.Matched)
	}
	return out + fmt.Sprintf(" terminal=%d dropped=%d", stats.Terminal, stats.Dropped)
}

// IsConfigurationError reports failures caused by a plan that does not fit
// its sources, as opposed to sources being unreachable.
func IsConfigurationError(err error) bool {
	return errors.Is(err, identity.ErrInvalidPlan) ||
		errors.Is(err, identity.ErrMissingRequiredColumn) ||
		provider.GetCategory(err) == provider.ErrorContractMismatch ||
		provider.GetCategory(err) == provider.ErrorNotFound
}
