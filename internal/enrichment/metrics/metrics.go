package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for resolution runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	FetchDuration   *prometheus.HistogramVec
	PassMatches     *prometheus.CounterVec
	Terminal        prometheus.Counter
	Dropped         prometheus.Counter
	Ambiguities     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ProviderCircuit *prometheus.GaugeVec
}

// New creates the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterlink_resolution_runs_total",
			Help: "Resolution runs by outcome (ok, failed)",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rosterlink_resolution_run_duration_seconds",
			Help:    "Wall time of a resolution run including snapshot loading",
			Buckets: prometheus.DefBuckets,
		}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rosterlink_provider_fetch_duration_seconds",
			Help:    "Provider fetch latency by source",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		PassMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterlink_resolution_pass_matches_total",
			Help: "Subjects resolved by each pass",
		}, []string{"pass"}),
		Terminal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rosterlink_resolution_terminal_total",
			Help: "Subjects classified terminal after every pass missed",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rosterlink_resolution_dropped_total",
			Help: "Subjects dropped under the match-or-drop policy",
		}),
		Ambiguities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterlink_directory_ambiguous_keys_total",
			Help: "Directory keys shared by more than one entry",
		}, []string{"directory"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterlink_cache_lookups_total",
			Help: "Memoized result lookups by result (hit, miss)",
		}, []string{"result"}),
		ProviderCircuit: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterlink_provider_circuit_open",
			Help: "Provider circuit breaker state (0=closed, 1=open)",
		}, []string{"provider"}),
	}
}

func (m *Metrics) ObserveRun(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) AddPassMatches(pass string, n int) {
	if m == nil {
		return
	}
	m.PassMatches.WithLabelValues(pass).Add(float64(n))
}

func (m *Metrics) AddUnresolved(terminal, dropped int) {
	if m == nil {
		return
	}
	m.Terminal.Add(float64(terminal))
	m.Dropped.Add(float64(dropped))
}

func (m *Metrics) IncAmbiguity(directory string) {
	if m == nil {
		return
	}
	m.Ambiguities.WithLabelValues(directory).Inc()
}

func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCircuitState(provider string, open bool) {
	if m == nil {
		return
	}
	if open {
		m.ProviderCircuit.WithLabelValues(provider).Set(1)
	} else {
		m.ProviderCircuit.WithLabelValues(provider).Set(0)
	}
}
