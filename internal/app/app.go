// Package app wires configuration into running components. Both the HTTP
// server and rosterctl build one App and close it on exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"rosterlink/internal/employee"
	"rosterlink/internal/enrichment"
	"rosterlink/internal/enrichment/cache"
	enrichmentmetrics "rosterlink/internal/enrichment/metrics"
	"rosterlink/internal/identity/plan"
	"rosterlink/internal/platform/config"
	platformkafka "rosterlink/internal/platform/kafka"
	"rosterlink/internal/platform/kafka/producer"
	"rosterlink/internal/platform/postgres"
	redisclient "rosterlink/internal/platform/redis"
	"rosterlink/internal/provider"
	"rosterlink/internal/provider/csvfile"
	pgprovider "rosterlink/internal/provider/postgres"
	audit "rosterlink/pkg/platform/audit"
	"rosterlink/pkg/platform/audit/publisher"
	kafkastore "rosterlink/pkg/platform/audit/store/kafka"
	memstore "rosterlink/pkg/platform/audit/store/memory"
	auditpostgres "rosterlink/pkg/platform/audit/store/postgres"
	"rosterlink/pkg/platform/circuit"
)

// App holds the long-lived dependencies. Optional infrastructure is nil
// when not configured.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Redis *redisclient.Client
	Kafka *kgo.Client

	Registry   *provider.Registry
	Plan       *plan.File
	AuditStore audit.Store
	Auditor    *publisher.Publisher
	Metrics    *enrichmentmetrics.Metrics
	Enrichment *enrichment.Service
	// Employee is nil when the plan declares no employee lookup.
	Employee *employee.Service

	closers []func(context.Context) error
}

type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	noCache    bool
}

// WithRegisterer registers metrics somewhere other than the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithoutCache makes every request run the plan. The CLI wants fresh runs.
func WithoutCache() Option {
	return func(o *options) {
		o.noCache = true
	}
}

// New connects to configured infrastructure and builds the services. On
// error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Metrics = enrichmentmetrics.NewWithRegistry(o.registerer)

	if a.Pool, err = postgres.NewPool(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.Pool != nil {
		a.onClose(func(context.Context) error { a.Pool.Close(); return nil })
	}

	if a.Plan, err = plan.Load(cfg.Plan.Path); err != nil {
		return nil, err
	}
	if cfg.Plan.Provider != "" {
		a.Plan = a.Plan.Retarget(cfg.Plan.Provider)
	}

	if err = a.buildRegistry(); err != nil {
		return nil, err
	}
	if err = a.buildAuditor(ctx); err != nil {
		return nil, err
	}

	svcOpts := []enrichment.Option{
		enrichment.WithAuditor(a.Auditor),
		enrichment.WithMetrics(a.Metrics),
		enrichment.WithLogger(logger),
	}
	if !o.noCache {
		store, err := a.cacheStore(ctx)
		if err != nil {
			return nil, err
		}
		memo := cache.NewMemo[enrichment.Report](store, cfg.Cache.TTL, cache.WithLogger(logger))
		svcOpts = append(svcOpts, enrichment.WithCache(memo))
	}
	if a.Enrichment, err = enrichment.New(a.Registry, a.Plan, svcOpts...); err != nil {
		return nil, err
	}

	if a.Plan.Employee != nil {
		if a.Employee, err = employee.New(a.Registry, a.Plan.Employee, employee.WithLogger(logger)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// buildRegistry registers every configured provider behind a circuit
// breaker and checks the plan names only registered ones.
func (a *App) buildRegistry() error {
	a.Registry = provider.NewRegistry()

	var sources []provider.Provider
	if a.Config.Plan.DataDir != "" {
		p, err := csvfile.New(a.Config.Plan.DataDir, csvfile.WithLogger(a.Logger))
		if err != nil {
			return err
		}
		sources = append(sources, p)
	}
	if a.Pool != nil {
		p, err := pgprovider.New(a.Pool,
			pgprovider.WithSchema(a.Config.Database.Schema),
			pgprovider.WithLogger(a.Logger),
		)
		if err != nil {
			return err
		}
		sources = append(sources, p)
	}

	for _, src := range sources {
		breaker := circuit.New(src.ID(),
			circuit.WithFailureThreshold(a.Config.Breaker.FailureThreshold),
			circuit.WithCooldown(a.Config.Breaker.Cooldown),
		)
		guarded := provider.Guard(src, breaker, a.Logger).Observe(a.Metrics.SetCircuitState)
		if err := a.Registry.Register(guarded); err != nil {
			return err
		}
		a.Metrics.SetCircuitState(src.ID(), false)
	}

	for _, id := range a.Plan.Providers() {
		if _, ok := a.Registry.Get(id); !ok {
			return fmt.Errorf("plan uses provider %q which is not configured (have %v)", id, a.Registry.IDs())
		}
	}
	return nil
}

// buildAuditor opens the configured audit sink behind an async publisher.
func (a *App) buildAuditor(ctx context.Context) error {
	store, err := a.openAuditStore(ctx)
	if err != nil {
		return err
	}
	a.AuditStore = store
	a.Auditor = publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(a.Config.Audit.Buffer),
		publisher.WithLogger(a.Logger),
	)
	a.onClose(func(context.Context) error { a.Auditor.Close(); return nil })
	return nil
}

func (a *App) openAuditStore(ctx context.Context) (audit.Store, error) {
	switch sink := a.Config.AuditSink(); sink {
	case "memory":
		return memstore.NewInMemoryStore(), nil
	case "postgres":
		if a.Pool == nil {
			return nil, fmt.Errorf("postgres audit sink requires DATABASE_URL")
		}
		store := auditpostgres.New(a.Pool, a.Config.Database.Schema)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "kafka":
		client, err := a.kafkaClient()
		if err != nil {
			return nil, err
		}
		if err := platformkafka.EnsureTopic(ctx, client, a.Config.Kafka.AuditTopic, 1, 1); err != nil {
			client.Close()
			a.Kafka = nil
			return nil, err
		}
		prod := producer.New(client)
		// Closers run in reverse, so the publisher drains into the
		// producer before it flushes and closes the client.
		a.onClose(prod.Close)
		return kafkastore.New(prod, a.Config.Kafka.AuditTopic), nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", sink)
	}
}

func (a *App) kafkaClient() (*kgo.Client, error) {
	if a.Kafka != nil {
		return a.Kafka, nil
	}
	client, err := platformkafka.NewClient(a.Config.Kafka)
	if err != nil {
		return nil, err
	}
	a.Kafka = client
	return client, nil
}

// cacheStore picks Redis when configured, else process memory.
func (a *App) cacheStore(ctx context.Context) (cache.Store, error) {
	client, err := redisclient.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return cache.NewInMemory(), nil
	}
	a.Redis = client
	a.onClose(func(context.Context) error { return client.Close() })
	return cache.NewRedis(client, "rosterlink:"), nil
}

// Health reports every unhealthy dependency by name.
func (a *App) Health(ctx context.Context) map[string]error {
	failures := a.Registry.Health(ctx)
	if a.Redis != nil {
		if err := a.Redis.Health(ctx); err != nil {
			failures["redis"] = err
		}
	}
	if a.Kafka != nil {
		if err := platformkafka.Health(ctx, a.Kafka); err != nil {
			failures["kafka"] = err
		}
	}
	return failures
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
