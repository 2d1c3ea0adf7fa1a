package app

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rosterlink/internal/employee"
	enrichmenthandler "rosterlink/internal/enrichment/handler"
	platformmetrics "rosterlink/internal/platform/metrics"
	"rosterlink/pkg/platform/httputil"
	"rosterlink/pkg/platform/middleware/requester"
	"rosterlink/pkg/platform/middleware/requesttime"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Providers []string          `json:"providers"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Router builds the HTTP surface. gatherer backs /metrics.
func (a *App) Router(httpMetrics *platformmetrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requester.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.RealIP)
	r.Use(httpMetrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	enrichmenthandler.New(a.Enrichment, a.Logger).Register(r)
	if a.Employee != nil {
		employee.NewHandler(a.Employee, a.Logger).Register(r)
	}
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	failures := a.Health(r.Context())
	resp := healthResponse{Status: "ok", Providers: a.Registry.IDs()}
	status := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "degraded"
		resp.Failures = make(map[string]string, len(failures))
		names := make([]string, 0, len(failures))
		for name, err := range failures {
			resp.Failures[name] = err.Error()
			names = append(names, name)
		}
		sort.Strings(names)
		a.Logger.WarnContext(r.Context(), "health check failed", "dependencies", names)
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
