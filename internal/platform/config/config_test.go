package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"ROSTERLINK_ADDR", "DATABASE_URL", "KAFKA_BROKERS", "AUDIT_SINK", "CACHE_TTL", "DATA_DIR"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "license", cfg.Database.Schema)
	assert.Equal(t, "rosterlink.audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "plan.yaml", cfg.Plan.Path)
	assert.Equal(t, "memory", cfg.AuditSink())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ROSTERLINK_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/roster")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("AUDIT_SINK", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "kafka", cfg.AuditSink())

	cfg.Kafka.Brokers = nil
	assert.Equal(t, "postgres", cfg.AuditSink())
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("AUDIT_BUFFER", "-3")
	t.Setenv("AUDIT_SINK", "s3")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL")
	assert.Contains(t, err.Error(), "AUDIT_BUFFER")
	assert.Contains(t, err.Error(), "AUDIT_SINK")
}
