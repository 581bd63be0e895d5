// Package config defines all configuration structures for the protonation
// services.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// EngineConfig locates the Reduce installation and sets its defaults.
type EngineConfig struct {
	// BaseDir holds bin/<platform>/reduce and data/reduce_wwPDB_het_dict.txt.
	BaseDir string `mapstructure:"base_dir"`

	// Executable and Dictionary override the paths derived from BaseDir.
	Executable string `mapstructure:"executable"`
	Dictionary string `mapstructure:"dictionary"`

	Timeout   time.Duration `mapstructure:"timeout"`
	WorkDir   string        `mapstructure:"work_dir"`
	KeepFiles bool          `mapstructure:"keep_files"`

	// Flip and His are pointers so that an explicit false survives
	// ApplyDefaults.
	Flip *bool `mapstructure:"flip"`
	His  *bool `mapstructure:"his"`

	Cache EngineCacheConfig `mapstructure:"cache"`
}

// EngineCacheConfig controls the engine output cache.
type EngineCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// ReconcileConfig tunes hydrogen grafting.
type ReconcileConfig struct {
	MaxBondDistance float64 `mapstructure:"max_bond_distance"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`

	// RateLimit is the sustained protonation requests per second per
	// client; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MinIOConfig holds object-storage connection parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
}

// KafkaTopics names the topics used by the worker and the notifiers.
type KafkaTopics struct {
	Requested    string `mapstructure:"requested"`
	Completed    string `mapstructure:"completed"`
	Notification string `mapstructure:"notification"`
	DeadLetter   string `mapstructure:"dead_letter"`
}

// KafkaConfig holds Kafka broker and consumer-group settings.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	Topics          KafkaTopics   `mapstructure:"topics"`
}

// PostgresConfig holds the run-ledger database connection parameters.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// DSN renders a postgres:// URL for pgx and golang-migrate.  Credentials
// are escaped.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   p.DBName,
	}
	q := u.Query()
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// WorkerConfig controls the job consumer.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	// HealthPort serves /healthz, /readyz and /metrics; zero disables it.
	HealthPort int `mapstructure:"health_port"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Engine    EngineConfig      `mapstructure:"engine"`
	Reconcile ReconcileConfig   `mapstructure:"reconcile"`
	Log       logging.LogConfig `mapstructure:"log"`
	Server    ServerConfig      `mapstructure:"server"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Redis     RedisConfig       `mapstructure:"redis"`
	MinIO     MinIOConfig       `mapstructure:"minio"`
	Kafka     KafkaConfig       `mapstructure:"kafka"`
	Postgres  PostgresConfig    `mapstructure:"postgres"`
	Worker    WorkerConfig      `mapstructure:"worker"`
}

// FlipEnabled reports the effective -FLIP default.
func (c *Config) FlipEnabled() bool {
	return c.Engine.Flip == nil || *c.Engine.Flip
}

// HisEnabled reports the effective -HIS default.
func (c *Config) HisEnabled() bool {
	return c.Engine.His != nil && *c.Engine.His
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks the settings every binary depends on.  Service sections
// (redis, kafka, minio, postgres) are only checked when they are in use:
// the CLI runs with none of them.
func (c *Config) Validate() error {
	// Engine
	if c.Engine.BaseDir == "" && c.Engine.Executable == "" {
		return fmt.Errorf("config: engine.base_dir or engine.executable is required")
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("config: engine.timeout must be ≥ 0, got %s", c.Engine.Timeout)
	}
	if c.Engine.Cache.Enabled && c.Engine.Cache.TTL <= 0 {
		return fmt.Errorf("config: engine.cache.ttl must be > 0 when the cache is enabled")
	}

	// Reconcile
	if c.Reconcile.MaxBondDistance <= 0 {
		return fmt.Errorf("config: reconcile.max_bond_distance must be > 0, got %g", c.Reconcile.MaxBondDistance)
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: server.rate_limit must be ≥ 0, got %g", c.Server.RateLimit)
	}

	// Redis
	if c.Engine.Cache.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when the engine cache is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	// Postgres
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" {
			return fmt.Errorf("config: postgres.host is required")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			return fmt.Errorf("config: postgres.port %d is out of range [1, 65535]", c.Postgres.Port)
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("config: postgres.user is required")
		}
		if c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.db_name is required")
		}
		if c.Postgres.MaxConns < 1 {
			return fmt.Errorf("config: postgres.max_conns must be ≥ 1, got %d", c.Postgres.MaxConns)
		}
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: worker.max_retries must be ≥ 0, got %d", c.Worker.MaxRetries)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

//Personal.AI order the ending
