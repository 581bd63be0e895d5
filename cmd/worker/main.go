// Command worker consumes protonation jobs from Kafka: it downloads each
// structure from object storage, protonates it and uploads the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/bootstrap"
	"github.com/turtacn/KeyIP-Protonate/internal/config"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/KeyIP-Protonate/internal/interfaces/http"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/worker"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: PROTONATE_* environment)")
	workers := flag.Int("workers", 0, "number of concurrent consumers (overrides worker.concurrency)")
	ensureTopics := flag.Bool("ensure-topics", false, "create the Kafka topics before consuming")
	replication := flag.Int("replication", 1, "replication factor used by -ensure-topics")
	flag.Parse()

	if err := run(*configPath, *workers, *ensureTopics, *replication); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workers int, ensureTopics bool, replication int) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Worker.Concurrency = workers
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	logger = logger.Named("worker")
	logger.Info("starting protonation worker",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.Int("consumers", cfg.Worker.Concurrency),
		logging.String("topic", cfg.Kafka.Topics.Requested))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ensureTopics {
		if err := createTopics(ctx, cfg, replication, logger); err != nil {
			return err
		}
	}

	comps, err := bootstrap.New(ctx, cfg, logger, bootstrap.Features{Redis: true, MinIO: true, Kafka: true, Postgres: true})
	if err != nil {
		return err
	}
	defer comps.Close()

	processor, err := protonation.NewJobProcessor(comps.Service, comps.ObjectStore(), comps.Locker,
		bootstrap.DefaultOptions(cfg), logger.Named("jobs"))
	if err != nil {
		return err
	}
	handler := worker.NewJobHandler(processor, comps.Producer, cfg.Kafka.Topics.Completed, comps.Metrics, logger)
	pool := &worker.Pool{
		Topic:   cfg.Kafka.Topics.Requested,
		Size:    cfg.Worker.Concurrency,
		Factory: worker.KafkaConsumers(bootstrap.ConsumerConfig(cfg), handler, logger.Named("kafka")),
		Handler: handler.Handle,
		Logger:  logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	if cfg.Worker.HealthPort > 0 {
		srv := healthServer(cfg, comps, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			return srv.Stop(context.Background())
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", logging.Err(err))
		return err
	}
	logger.Info("worker stopped")
	return nil
}

// healthServer serves probes and metrics on the worker health port.
func healthServer(cfg *config.Config, comps *bootstrap.Components, logger logging.Logger) *httpserver.Server {
	routerCfg := httpserver.RouterConfig{
		Version:     version,
		Mode:        cfg.Server.Mode,
		Logging:     middleware.DefaultLoggingConfig(),
		Logger:      logger,
		MetricsPath: cfg.Metrics.Path,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsCollector = comps.Collector
	}
	for _, hc := range comps.HealthCheckers() {
		routerCfg.HealthCheckers = append(routerCfg.HealthCheckers, handlers.HealthChecker(hc))
	}
	serverCfg := cfg.Server
	serverCfg.Port = cfg.Worker.HealthPort
	return httpserver.NewServer(serverCfg, httpserver.NewRouter(routerCfg), logger)
}

func createTopics(ctx context.Context, cfg *config.Config, replication int, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger.Named("topics"))
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(bootstrap.TopicNames(cfg.Kafka.Topics), replication))
}

//Personal.AI order the ending
