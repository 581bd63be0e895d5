package reduce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
)

// Cache lookup results reported to the CacheObserver.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// OutputCache stores engine standard output by invocation fingerprint.
type OutputCache interface {
	// Get returns the stored output; found is false on a miss.
	Get(ctx context.Context, key string) (stdout []byte, found bool, err error)
	Set(ctx context.Context, key string, stdout []byte) error
}

// CacheObserver receives cache lookup results.
type CacheObserver interface {
	CacheLookup(result string)
}

type nopCacheObserver struct{}

func (nopCacheObserver) CacheLookup(string) {}

// CachingRunner serves repeated invocations from an OutputCache.  Identical
// concurrent invocations share one engine run; a caller whose context ends
// stops waiting without canceling the run for the others.  Only runs that exit with a
// non-negative code are stored; cache faults fall through to the engine.
type CachingRunner struct {
	next     Runner
	cache    OutputCache
	observer CacheObserver
	logger   logging.Logger
	group    singleflight.Group
}

// NewCachingRunner decorates next with cache.
func NewCachingRunner(next Runner, cache OutputCache, observer CacheObserver, logger logging.Logger) *CachingRunner {
	if observer == nil {
		observer = nopCacheObserver{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachingRunner{next: next, cache: cache, observer: observer, logger: logger}
}

func (c *CachingRunner) Run(ctx context.Context, inv Invocation) (*RunResult, error) {
	key, err := Fingerprint(inv)
	if err != nil {
		c.logger.Warn("cannot fingerprint invocation, bypassing cache", logging.Err(err))
		return c.next.Run(ctx, inv)
	}

	stdout, found, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.observer.CacheLookup(CacheError)
		c.logger.Warn("engine output cache read failed", logging.Err(err))
	case found:
		c.observer.CacheLookup(CacheHit)
		c.logger.Debug("engine output served from cache", logging.String("key", key))
		return &RunResult{Stdout: stdout, Cached: true}, nil
	default:
		c.observer.CacheLookup(CacheMiss)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The shared run outlives the first caller's cancellation but keeps
		// its deadline; every caller still stops waiting on its own ctx.
		shared := context.WithoutCancel(ctx)
		if dl, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			shared, cancel = context.WithDeadline(shared, dl)
			defer cancel()
		}
		res, err := c.next.Run(shared, inv)
		if err != nil {
			return res, err
		}
		if res.ExitCode >= 0 {
			if err := c.cache.Set(shared, key, res.Stdout); err != nil {
				c.logger.Warn("engine output cache write failed", logging.Err(err))
			}
		}
		return res, nil
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(*RunResult)
		return res, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fingerprint hashes the executable name, the arguments with the input path
// masked, and the input file contents.  Two runs on byte-identical input with
// the same flags share a fingerprint regardless of temporary file names.
func Fingerprint(inv Invocation) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", filepath.Base(inv.Executable))
	for _, a := range inv.Args {
		if a == inv.Input {
			a = "<input>"
		}
		fmt.Fprintf(h, "%s\x00", a)
	}
	f, err := os.Open(inv.Input)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

//Personal.AI order the ending
