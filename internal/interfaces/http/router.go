// Package http hosts the protonation REST API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// RouterConfig aggregates the dependencies of the route tree.  Optional
// dependencies left nil drop their routes.
type RouterConfig struct {
	Version string
	Mode    string // gin mode: debug | release | test

	// Protonation
	Service     protonation.Service
	Defaults    reduce.Options
	MaxBodySize int64

	// Jobs; routes are mounted only with a Publisher.
	Publisher handlers.JobPublisher
	JobTopic  string
	Bucket    string

	// Runs; routes are mounted only with a repository.
	Runs domain.RunRepository

	HealthCheckers []handlers.HealthChecker

	// Middleware
	CORS        *middleware.CORSConfig
	RateLimiter middleware.RateLimiter
	RateLimit   middleware.RateLimitConfig
	Logging     middleware.LoggingConfig

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prometheus.ProtonationMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
}

// NewRouter builds the gin engine: global middleware, public health and
// metrics endpoints, and the /api/v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware (applied to every request) ---
	r.Use(middleware.RequestID())
	r.Use(recovery(logger))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	r.Use(middleware.RequestLogging(logger.Named("http"), cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// --- Public health endpoints ---
	handlers.NewHealthHandler(cfg.Version, cfg.HealthCheckers...).RegisterRoutes(r)

	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	registerProtonationRoutes(api, cfg, logger)
	if cfg.Publisher != nil {
		handlers.NewJobHandler(cfg.Publisher, cfg.JobTopic, cfg.Bucket, logger.Named("jobs")).RegisterRoutes(api)
	}
	if cfg.Runs != nil {
		handlers.NewRunHandler(cfg.Runs).RegisterRoutes(api)
	}

	return r
}

// registerProtonationRoutes mounts POST /protonate behind the rate limiter.
func registerProtonationRoutes(api *gin.RouterGroup, cfg RouterConfig, logger logging.Logger) {
	if cfg.Service == nil {
		return
	}
	g := api.Group("")
	if cfg.RateLimiter != nil {
		g.Use(middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit))
	}
	handlers.NewProtonationHandler(cfg.Service, cfg.Defaults, cfg.MaxBodySize, logger.Named("protonate")).RegisterRoutes(g)
}

// recovery turns a handler panic into a logged 500.
func recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			logging.Any("panic", recovered),
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", middleware.GetRequestID(c)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Code:      errors.ErrCodeInternal.String(),
			Message:   "internal server error",
			RequestID: middleware.GetRequestID(c),
		})
	})
}

//Personal.AI order the ending
