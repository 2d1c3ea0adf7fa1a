package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL string
	// Schema holds the roster and directory tables.
	Schema   string
	MaxConns int32
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	ClientID      string
	AuditTopic    string
	ConsumerGroup string
}

// AuditConfig selects where data-quality events go: memory, postgres or
// kafka. Empty picks kafka when brokers are set, then postgres, then memory.
type AuditConfig struct {
	Sink   string
	Buffer int
}

type PlanConfig struct {
	Path string
	// DataDir registers a CSV provider reading exports from this directory.
	DataDir string
	// Provider, when set, points every plan source at one provider.
	Provider string
}

type CacheConfig struct {
	TTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// BreakerConfig guards providers against repeated outages.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Audit    AuditConfig
	Plan     PlanConfig
	Cache    CacheConfig
	Log      LogConfig
	Breaker  BreakerConfig
}

// AuditSink resolves the configured sink, applying the fallback order.
func (c Config) AuditSink() string {
	if c.Audit.Sink != "" {
		return c.Audit.Sink
	}
	switch {
	case len(c.Kafka.Brokers) > 0:
		return "kafka"
	case c.Database.URL != "":
		return "postgres"
	default:
		return "memory"
	}
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	duration := func(key string, def time.Duration) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", key, v))
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid integer %q", key, v))
			return def
		}
		return n
	}

	cfg := Config{
		Server: Server{
			Addr:            env("ROSTERLINK_ADDR", ":8080"),
			ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Schema:   env("DATABASE_SCHEMA", "license"),
			MaxConns: int32(integer("DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			ClientID:      env("KAFKA_CLIENT_ID", "rosterlink"),
			AuditTopic:    env("AUDIT_TOPIC", "rosterlink.audit"),
			ConsumerGroup: env("AUDIT_CONSUMER_GROUP", "rosterlink-audit"),
		},
		Audit: AuditConfig{
			Sink:   strings.ToLower(os.Getenv("AUDIT_SINK")),
			Buffer: integer("AUDIT_BUFFER", 1024),
		},
		Plan: PlanConfig{
			Path:     env("PLAN_PATH", "plan.yaml"),
			DataDir:  os.Getenv("DATA_DIR"),
			Provider: os.Getenv("PLAN_PROVIDER"),
		},
		Cache: CacheConfig{
			TTL: duration("CACHE_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
		},
		Breaker: BreakerConfig{
			FailureThreshold: integer("PROVIDER_FAILURE_THRESHOLD", 5),
			Cooldown:         duration("PROVIDER_COOLDOWN", 30*time.Second),
		},
	}

	switch cfg.Audit.Sink {
	case "", "memory", "postgres", "kafka":
	default:
		errs = append(errs, fmt.Sprintf("AUDIT_SINK: unknown sink %q", cfg.Audit.Sink))
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
