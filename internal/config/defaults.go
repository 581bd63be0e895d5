// Package config provides configuration loading, defaults, and validation for
// the protonation services.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultEngineBaseDir   = "."
	DefaultEngineTimeout   = 5 * time.Minute
	DefaultCacheTTL        = 24 * time.Hour
	DefaultCachePrefix     = "protonate:reduce:"
	DefaultMaxBondDistance = 2.0

	DefaultServerPort = 8080
	DefaultServerMode = "release"
	DefaultRateBurst  = 5

	DefaultMetricsNamespace = "protonate"
	DefaultMetricsPath      = "/metrics"

	DefaultRedisAddr = "localhost:6379"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "structures"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "protonate-worker"

	DefaultTopicRequested    = "structure.protonate.requested"
	DefaultTopicCompleted    = "structure.protonate.completed"
	DefaultTopicNotification = "structure.protonate.notification"
	DefaultTopicDeadLetter   = "structure.protonate.dlq"

	DefaultPostgresHost     = "localhost"
	DefaultPostgresPort     = 5432
	DefaultPostgresDBName   = "protonate"
	DefaultPostgresMaxConns = 10
	DefaultMigrationPath    = "file://migrations"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 4
	DefaultWorkerMaxRetries  = 3
	DefaultWorkerHealthPort  = 8081
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the default.
// Fields that have already been set by the caller are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	if cfg.Engine.BaseDir == "" && cfg.Engine.Executable == "" {
		cfg.Engine.BaseDir = DefaultEngineBaseDir
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = DefaultEngineTimeout
	}
	if cfg.Engine.Flip == nil {
		flip := true
		cfg.Engine.Flip = &flip
	}
	if cfg.Engine.His == nil {
		his := false
		cfg.Engine.His = &his
	}
	if cfg.Engine.Cache.TTL == 0 {
		cfg.Engine.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Engine.Cache.Prefix == "" {
		cfg.Engine.Cache.Prefix = DefaultCachePrefix
	}

	// ── Reconcile ─────────────────────────────────────────────────────────────
	if cfg.Reconcile.MaxBondDistance == 0 {
		cfg.Reconcile.MaxBondDistance = DefaultMaxBondDistance
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Minute
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 32 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = DefaultRateBurst
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB 0 is both the default and a valid explicit value.
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.Topics.Requested == "" {
		cfg.Kafka.Topics.Requested = DefaultTopicRequested
	}
	if cfg.Kafka.Topics.Completed == "" {
		cfg.Kafka.Topics.Completed = DefaultTopicCompleted
	}
	if cfg.Kafka.Topics.Notification == "" {
		cfg.Kafka.Topics.Notification = DefaultTopicNotification
	}
	if cfg.Kafka.Topics.DeadLetter == "" {
		cfg.Kafka.Topics.DeadLetter = DefaultTopicDeadLetter
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = DefaultPostgresDBName
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MigrationPath == "" {
		cfg.Postgres.MigrationPath = DefaultMigrationPath
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = DefaultWorkerMaxRetries
	}
	if cfg.Worker.RetryDelay == 0 {
		cfg.Worker.RetryDelay = 2 * time.Second
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

//Personal.AI order the ending
