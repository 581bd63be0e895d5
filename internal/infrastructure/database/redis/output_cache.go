package redis

import (
	"context"
	stderrors "errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// DefaultOutputPrefix namespaces cached engine output.
const DefaultOutputPrefix = "protonate:reduce:"

// OutputCache keeps Reduce standard output keyed by invocation fingerprint.
type OutputCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	jitter float64
}

type CacheOption func(*OutputCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *OutputCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *OutputCache) { c.ttl = ttl }
}

// WithJitter spreads expiry by ±fraction of the TTL; zero disables it.
func WithJitter(fraction float64) CacheOption {
	return func(c *OutputCache) { c.jitter = fraction }
}

func NewOutputCache(client *Client, log logging.Logger, opts ...CacheOption) *OutputCache {
	c := &OutputCache{
		client: client,
		logger: log,
		prefix: DefaultOutputPrefix,
		ttl:    24 * time.Hour,
		jitter: 0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OutputCache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

func (c *OutputCache) expiry() time.Duration {
	if c.ttl <= 0 || c.jitter <= 0 {
		return c.ttl
	}
	delta := float64(c.ttl) * c.jitter * (rand.Float64()*2 - 1)
	return c.ttl + time.Duration(delta)
}

// Get returns the cached output; a miss is (nil, false, nil).
func (c *OutputCache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	if c.client.isClosed() {
		return nil, false, ErrClientClosed
	}
	data, err := c.client.rdb.Get(ctx, c.key(fingerprint)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read engine output")
	}
	return data, true, nil
}

// Set stores stdout under fingerprint.
func (c *OutputCache) Set(ctx context.Context, fingerprint string, stdout []byte) error {
	if c.client.isClosed() {
		return ErrClientClosed
	}
	if err := c.client.rdb.Set(ctx, c.key(fingerprint), stdout, c.expiry()).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to store engine output")
	}
	return nil
}

// Purge deletes every cached output and returns the number removed.
func (c *OutputCache) Purge(ctx context.Context) (int64, error) {
	if c.client.isClosed() {
		return 0, ErrClientClosed
	}
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, c.prefix+"*", 200).Result()
		if err != nil {
			return removed, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan engine outputs")
		}
		if len(keys) > 0 {
			n, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete engine outputs")
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.logger.Info("engine output cache purged", logging.Int64("removed", removed))
	return removed, nil
}

//Personal.AI order the ending
