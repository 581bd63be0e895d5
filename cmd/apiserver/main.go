// Command apiserver serves the protonation REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-Protonate/internal/bootstrap"
	"github.com/turtacn/KeyIP-Protonate/internal/config"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/KeyIP-Protonate/internal/interfaces/http"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: PROTONATE_* environment)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	noJobs := flag.Bool("no-jobs", false, "do not connect to Kafka; disables POST /api/v1/jobs and run events")
	flag.Parse()

	if err := run(*configPath, *port, !*noJobs); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, jobs bool) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	logger = logger.Named("apiserver")
	logger.Info("starting protonation API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("build_date", buildDate),
		logging.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := bootstrap.New(ctx, cfg, logger, bootstrap.Features{Kafka: jobs, Postgres: true})
	if err != nil {
		return err
	}
	defer comps.Close()

	routerCfg := httpserver.RouterConfig{
		Version:     version,
		Mode:        cfg.Server.Mode,
		Service:     comps.Service,
		Defaults:    bootstrap.DefaultOptions(cfg),
		MaxBodySize: cfg.Server.MaxBodySize,
		JobTopic:    cfg.Kafka.Topics.Requested,
		Bucket:      cfg.MinIO.Bucket,
		Logging:     middleware.DefaultLoggingConfig(),
		Logger:      logger,
		Metrics:     comps.Metrics,
		MetricsPath: cfg.Metrics.Path,
	}
	if comps.Producer != nil {
		routerCfg.Publisher = comps.Producer
	}
	if comps.Runs != nil {
		routerCfg.Runs = comps.Runs
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsCollector = comps.Collector
	}
	for _, hc := range comps.HealthCheckers() {
		routerCfg.HealthCheckers = append(routerCfg.HealthCheckers, handlers.HealthChecker(hc))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		routerCfg.CORS = &cors
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 5*time.Minute)
		defer limiter.Stop()
		routerCfg.RateLimiter = limiter
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop(context.Background())
	})
	if err := g.Wait(); err != nil {
		logger.Error("API server stopped with error", logging.Err(err))
		return err
	}
	logger.Info("API server stopped")
	return nil
}

//Personal.AI order the ending
