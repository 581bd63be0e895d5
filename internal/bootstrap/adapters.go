package bootstrap

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	protonation "github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/storage/minio"
)

// HealthChecker is a named dependency probe.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// objectStoreAdapter drops the upload receipt the job processor does not use.
type objectStoreAdapter struct {
	store *minio.StructureStore
}

func (a objectStoreAdapter) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	return a.store.Download(ctx, bucket, key)
}

func (a objectStoreAdapter) Upload(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error {
	_, err := a.store.Upload(ctx, bucket, key, data, metadata)
	return err
}

// ObjectStore adapts the MinIO structure store to the job processor.
func (c *Components) ObjectStore() protonation.ObjectStore {
	return objectStoreAdapter{store: c.Store}
}

type postgresHealthAdapter struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func (a *postgresHealthAdapter) Name() string { return "postgres" }

func (a *postgresHealthAdapter) Check(ctx context.Context) error {
	return postgres.HealthCheck(ctx, a.pool, a.logger)
}

type redisHealthAdapter struct {
	client *redis.Client
}

func (a *redisHealthAdapter) Name() string { return "redis" }

func (a *redisHealthAdapter) Check(ctx context.Context) error {
	return a.client.Ping(ctx)
}

type minioHealthAdapter struct {
	client *minio.MinIOClient
}

func (a *minioHealthAdapter) Name() string { return "minio" }

func (a *minioHealthAdapter) Check(ctx context.Context) error {
	return a.client.HealthCheck(ctx)
}

// HealthCheckers returns a probe for every connected backend.
func (c *Components) HealthCheckers() []HealthChecker {
	var checkers []HealthChecker
	if c.Pool != nil {
		checkers = append(checkers, &postgresHealthAdapter{pool: c.Pool, logger: c.Logger})
	}
	if c.Redis != nil {
		checkers = append(checkers, &redisHealthAdapter{client: c.Redis})
	}
	if c.MinIO != nil {
		checkers = append(checkers, &minioHealthAdapter{client: c.MinIO})
	}
	return checkers
}

//Personal.AI order the ending
