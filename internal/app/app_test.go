package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/internal/platform/config"
	platformmetrics "rosterlink/internal/platform/metrics"
	memstore "rosterlink/pkg/platform/audit/store/memory"
	"rosterlink/pkg/testutil"
)

const planYAML = `
provider: postgres
subjects:
  dataset: licenses
directories:
  hr:
    dataset: employees
    filters: {MLR: L}
derivations:
  - {kind: strip_realm, source: user_name, target: login}
passes:
  - {name: email, subject_field: user_email, directory_field: smtp, directory: hr}
  - {name: nt_id, subject_field: login, directory_field: nt_id, directory: hr}
employee:
  dataset: employees
  filters: {MLR: L}
  columns: [full_name, mysingle_id]
`

// testConfig lays out a plan and CSV exports in a temp dir. The plan names
// postgres; PLAN_PROVIDER points it at the CSV files instead.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("plan.yaml", planYAML)
	write("licenses.csv", "user_name,user_email\nalice@CORP,alice@x.com\nbob@CORP,bob@old.example\nzed@CORP,zed@x.com\n")
	write("employees.csv", "smtp,nt_id,mysingle_id,full_name,status,cost_center_name,dept_name,title,MLR\n"+
		"alice@x.com,alice,alice.a,Alice A,Active,CC1,Eng,Engineer,L\n"+
		"bob@x.com,bob,bob.b,Bob B,Active,CC2,Ops,Operator,L\n")

	return config.Config{
		Plan:    config.PlanConfig{Path: filepath.Join(dir, "plan.yaml"), DataDir: dir, Provider: "csv"},
		Audit:   config.AuditConfig{Sink: "memory", Buffer: 16},
		Cache:   config.CacheConfig{TTL: time.Minute},
		Breaker: config.BreakerConfig{FailureThreshold: 3, Cooldown: time.Second},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, discard(), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNew_WiresCSVPlan(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	assert.Equal(t, []string{"csv"}, a.Registry.IDs())
	assert.IsType(t, &memstore.InMemoryStore{}, a.AuditStore)
	require.NotNil(t, a.Employee)

	report, err := a.Enrichment.LicenseUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stats.Total)
	assert.Equal(t, 2, report.Stats.Resolved())
	assert.Equal(t, 1, report.Stats.Terminal)

	require.NoError(t, a.Close(context.Background()))
	events, err := a.AuditStore.(*memstore.InMemoryStore).ListByRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Len(t, events, 2, "one unresolved subject and the completion record")
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plan.Provider = ""

	_, err := New(context.Background(), cfg, discard(), WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `plan uses provider "postgres"`)
}

func TestNew_PostgresSinkNeedsDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Sink = "postgres"

	_, err := New(context.Background(), cfg, discard(), WithRegisterer(prometheus.NewRegistry()))
	assert.ErrorContains(t, err, "requires DATABASE_URL")
}

func TestRouter(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	reg := prometheus.NewRegistry()
	router := a.Router(platformmetrics.NewWithRegistry(reg), reg)

	t.Run("license users", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/license/users?policy=match-or-drop"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		body := testutil.UnmarshalResponse[map[string]any](t, rr)
		assert.Len(t, (*body)["users"], 2)
		assert.NotEmpty(t, (*body)["run_id"])
	})

	t.Run("current user", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequestAs(t, http.MethodGet, "/user", "bob.b"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.JSONEq(t, `{"full_name":"Bob B","mysingle_id":"bob.b","user":"bob.b"}`, rr.Body.String())
	})

	t.Run("health", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.JSONEq(t, `{"status":"ok","providers":["csv"]}`, rr.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), `rosterlink_http_requests_total{method="GET",route="/license/users",status="200"} 1`)
	})
}
