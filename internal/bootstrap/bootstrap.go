// Package bootstrap builds the process-wide components shared by the CLI, the
// API server and the worker from a loaded Config.
package bootstrap

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jackc/pgx/v5/pgxpool"

	protonation "github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/config"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/storage/minio"
)

// Features selects the optional backends a binary connects to.
type Features struct {
	Redis    bool
	MinIO    bool
	Kafka    bool
	Postgres bool
}

// Components holds the clients and services of one process.  Nil fields are
// backends that were not requested.
type Components struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.ProtonationMetrics

	Redis    *redis.Client
	Cache    *redis.OutputCache
	Locker   *redis.Locker
	MinIO    *minio.MinIOClient
	Store    *minio.StructureStore
	Producer *kafka.Producer
	Pool     *pgxpool.Pool
	Runs     *postgres.RunRepository

	Engine  *reduce.Engine
	Service *protonation.BatchService
}

// NewLogger builds the process logger from cfg.Log.
func NewLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.NewLogger(cfg.Log)
}

// NewMetrics registers the protonation metrics on a fresh registry.
func NewMetrics(cfg *config.Config, logger logging.Logger) (prometheus.MetricsCollector, *prometheus.ProtonationMetrics, error) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		EnableProcessMetrics: cfg.Metrics.Enabled,
		EnableGoMetrics:      cfg.Metrics.Enabled,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector, prometheus.NewProtonationMetrics(collector), nil
}

// EnginePaths resolves the engine binary and dictionary: explicit paths win
// over the bundled layout under engine.base_dir.
func EnginePaths(cfg config.EngineConfig) (reduce.Paths, error) {
	paths := reduce.Paths{Executable: cfg.Executable, Dictionary: cfg.Dictionary}
	if paths.Executable != "" && paths.Dictionary != "" {
		return paths, nil
	}
	bundled, err := reduce.ResolvePaths(cfg.BaseDir, runtime.GOOS)
	if err != nil {
		return reduce.Paths{}, err
	}
	if paths.Executable == "" {
		paths.Executable = bundled.Executable
	}
	if paths.Dictionary == "" {
		paths.Dictionary = bundled.Dictionary
	}
	return paths, nil
}

// DefaultOptions returns the configured engine defaults.
func DefaultOptions(cfg *config.Config) reduce.Options {
	return reduce.Options{Flip: cfg.FlipEnabled(), Histidines: cfg.HisEnabled()}
}

// NewEngine wires the engine.  A non-nil cache puts a CachingRunner in
// front of the process runner.
func NewEngine(cfg *config.Config, cache reduce.OutputCache, metrics *prometheus.ProtonationMetrics, logger logging.Logger) (*reduce.Engine, error) {
	paths, err := EnginePaths(cfg.Engine)
	if err != nil {
		return nil, err
	}
	var runner reduce.Runner = reduce.NewProcessRunner(logger.Named("reduce"))
	var opts []reduce.EngineOption
	if metrics != nil {
		opts = append(opts, reduce.WithObserver(metrics))
	}
	if cache != nil {
		var observer reduce.CacheObserver
		if metrics != nil {
			observer = metrics
		}
		runner = reduce.NewCachingRunner(runner, cache, observer, logger.Named("cache"))
	}
	return reduce.NewEngine(reduce.Config{
		Executable: paths.Executable,
		Dictionary: paths.Dictionary,
		Timeout:    cfg.Engine.Timeout,
	}, runner, logger.Named("engine"), opts...)
}

// New connects the requested backends and wires the batch service on top of
// them.  On error everything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, features Features, svcOpts ...protonation.ServiceOption) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}

	collector, metrics, err := NewMetrics(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	c.Collector, c.Metrics = collector, metrics

	if features.Redis || cfg.Engine.Cache.Enabled {
		rc, err := redis.NewClient(RedisConfig(cfg.Redis), logger.Named("redis"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.Redis = rc
		c.Cache = redis.NewOutputCache(rc, logger,
			redis.WithPrefix(cfg.Engine.Cache.Prefix),
			redis.WithTTL(cfg.Engine.Cache.TTL))
		c.Locker = redis.NewLocker(rc, logger, "protonate:lock:")
	}

	if features.MinIO {
		mc, err := minio.NewMinIOClient(MinIOConfig(cfg.MinIO), logger.Named("minio"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		c.MinIO = mc
		c.Store = minio.NewStructureStore(mc, logger)
	}

	if features.Kafka {
		p, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers}, logger.Named("kafka"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		c.Producer = p
	}

	if features.Postgres && cfg.Postgres.Enabled {
		pool, err := postgres.NewConnectionPool(ctx, cfg.Postgres, logger.Named("postgres"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		c.Pool = pool
		c.Runs = postgres.NewRunRepository(pool, logger)
	}

	var cache reduce.OutputCache
	if cfg.Engine.Cache.Enabled && c.Cache != nil {
		cache = c.Cache
	}
	engine, err := NewEngine(cfg, cache, metrics, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Engine = engine

	opts := []protonation.ServiceOption{
		protonation.WithMetrics(metrics),
		protonation.WithConfig(protonation.ServiceConfig{WorkDir: cfg.Engine.WorkDir, KeepFiles: cfg.Engine.KeepFiles}),
	}
	if c.Runs != nil {
		opts = append(opts, protonation.WithRunRepository(c.Runs))
	}
	if c.Producer != nil {
		opts = append(opts,
			protonation.WithNotifier(protonation.MultiNotifier{
				protonation.NewLogNotifier(logger),
				protonation.NewTopicNotifier(c.Producer, cfg.Kafka.Topics.Notification),
			}),
			protonation.WithRunSink(protonation.NewTopicRunSink(c.Producer, cfg.Kafka.Topics.Completed)))
	}
	opts = append(opts, svcOpts...)

	svc, err := protonation.NewService(engine, domain.NewReconciler(cfg.Reconcile.MaxBondDistance, logger), logger, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Service = svc

	logger.Info("components initialized",
		logging.Bool("redis", c.Redis != nil),
		logging.Bool("minio", c.MinIO != nil),
		logging.Bool("kafka", c.Producer != nil),
		logging.Bool("postgres", c.Pool != nil),
		logging.Bool("cache", cache != nil))
	return c, nil
}

// Close releases every open client in reverse order of creation.
func (c *Components) Close() {
	if c.Pool != nil {
		postgres.Close(c.Pool)
	}
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			c.Logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if c.MinIO != nil {
		_ = c.MinIO.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close failed", logging.Err(err))
		}
	}
	_ = c.Logger.Sync()
}

// RedisConfig maps the redis section onto the client settings.
func RedisConfig(r config.RedisConfig) *redis.RedisConfig {
	return &redis.RedisConfig{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		MinIdleConns: r.MinIdleConns,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

// MinIOConfig maps the minio section onto the client settings.
func MinIOConfig(m config.MinIOConfig) *minio.MinIOConfig {
	return &minio.MinIOConfig{
		Endpoint:        m.Endpoint,
		AccessKeyID:     m.AccessKey,
		SecretAccessKey: m.SecretKey,
		UseSSL:          m.UseSSL,
		Region:          m.Region,
		Bucket:          m.Bucket,
	}
}

// TopicNames maps the kafka.topics section.
func TopicNames(t config.KafkaTopics) kafka.TopicNames {
	return kafka.TopicNames{
		Requested:    t.Requested,
		Completed:    t.Completed,
		Notification: t.Notification,
		DeadLetter:   t.DeadLetter,
	}
}

// ConsumerConfig builds the worker's group consumer settings: the request
// topic, retries from the worker section and the dead-letter topic.
func ConsumerConfig(cfg *config.Config) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topics:          []string{cfg.Kafka.Topics.Requested},
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
		SessionTimeout:  cfg.Kafka.SessionTimeout,
		RetryConfig: kafka.RetryConfig{
			MaxRetries:      cfg.Worker.MaxRetries,
			RetryBackoff:    cfg.Worker.RetryDelay,
			MaxRetryBackoff: 8 * cfg.Worker.RetryDelay,
			DeadLetterTopic: cfg.Kafka.Topics.DeadLetter,
		},
	}
}

//Personal.AI order the ending
