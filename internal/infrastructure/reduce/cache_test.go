package reduce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemoryCache() *memoryCache { return &memoryCache{data: make(map[string][]byte)} }

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, stdout []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stdout
	return nil
}

type countingRunner struct {
	calls    int32
	exitCode int
}

func (c *countingRunner) Run(_ context.Context, _ Invocation) (*RunResult, error) {
	atomic.AddInt32(&c.calls, 1)
	return &RunResult{Stdout: []byte("ATOM"), ExitCode: c.exitCode}, nil
}

type lookupRecorder struct {
	mu      sync.Mutex
	results []string
}

func (l *lookupRecorder) CacheLookup(result string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func invocationFor(input string) Invocation {
	return Invocation{Executable: "/opt/reduce", Args: BuildArgs("dict", input, DefaultOptions()), Input: input}
}

func TestFingerprint_MasksInputPath(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.pdb", "ATOM 1")
	b := writeInput(t, dir, "b.pdb", "ATOM 1")
	c := writeInput(t, dir, "c.pdb", "ATOM 2")

	ka, err := Fingerprint(invocationFor(a))
	require.NoError(t, err)
	kb, err := Fingerprint(invocationFor(b))
	require.NoError(t, err)
	kc, err := Fingerprint(invocationFor(c))
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka, kc)
	assert.Len(t, ka, 64)

	withHis := invocationFor(a)
	withHis.Args = BuildArgs("dict", a, Options{Flip: true, Histidines: true})
	kh, err := Fingerprint(withHis)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kh)
}

func TestCachingRunner_HitAfterMiss(t *testing.T) {
	next := &countingRunner{}
	rec := &lookupRecorder{}
	cr := NewCachingRunner(next, newMemoryCache(), rec, nil)
	in := writeInput(t, t.TempDir(), "in.pdb", "ATOM 1")

	first, err := cr.Run(context.Background(), invocationFor(in))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := cr.Run(context.Background(), invocationFor(in))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Stdout, second.Stdout)

	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	assert.Equal(t, []string{CacheMiss, CacheHit}, rec.results)
}

// gatedRunner blocks every run until release is closed or its ctx ends.
type gatedRunner struct {
	calls    int32
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	canceled int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRunner) Run(ctx context.Context, _ Invocation) (*RunResult, error) {
	atomic.AddInt32(&g.calls, 1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return &RunResult{Stdout: []byte("ATOM")}, nil
	case <-ctx.Done():
		atomic.AddInt32(&g.canceled, 1)
		return &RunResult{ExitCode: -1}, ctx.Err()
	}
}

func TestCachingRunner_CanceledCallerDoesNotFailSharedRun(t *testing.T) {
	next := newGatedRunner()
	rec := &lookupRecorder{}
	cache := newMemoryCache()
	cr := NewCachingRunner(next, cache, rec, nil)
	in := writeInput(t, t.TempDir(), "in.pdb", "ATOM 1")

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cr.Run(ctxA, invocationFor(in))
		errA <- err
	}()
	<-next.started

	type outcome struct {
		res *RunResult
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := cr.Run(context.Background(), invocationFor(in))
		doneB <- outcome{res, err}
	}()
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.results) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting")
	}

	close(next.release)
	select {
	case b := <-doneB:
		require.NoError(t, b.err)
		require.NotNil(t, b.res)
		assert.Equal(t, []byte("ATOM"), b.res.Stdout)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	assert.Zero(t, atomic.LoadInt32(&next.canceled))
	cache.mu.Lock()
	assert.Len(t, cache.data, 1)
	cache.mu.Unlock()
}

func TestCachingRunner_SharedRunKeepsCallerDeadline(t *testing.T) {
	next := newGatedRunner()
	cr := NewCachingRunner(next, newMemoryCache(), nil, nil)
	in := writeInput(t, t.TempDir(), "in.pdb", "ATOM 1")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := cr.Run(ctx, invocationFor(in))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&next.canceled) == 1 },
		time.Second, 5*time.Millisecond)
}

func TestCachingRunner_FailedRunsAreNotCached(t *testing.T) {
	next := &countingRunner{exitCode: -1}
	cache := newMemoryCache()
	cr := NewCachingRunner(next, cache, nil, nil)
	in := writeInput(t, t.TempDir(), "in.pdb", "ATOM 1")

	for i := 0; i < 2; i++ {
		res, err := cr.Run(context.Background(), invocationFor(in))
		require.NoError(t, err)
		assert.Equal(t, -1, res.ExitCode)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
	assert.Empty(t, cache.data)
}

func TestCachingRunner_CacheFaultFallsThrough(t *testing.T) {
	next := &countingRunner{}
	cache := newMemoryCache()
	cache.failGet = true
	rec := &lookupRecorder{}
	cr := NewCachingRunner(next, cache, rec, nil)
	in := writeInput(t, t.TempDir(), "in.pdb", "ATOM 1")

	res, err := cr.Run(context.Background(), invocationFor(in))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, []string{CacheError}, rec.results)
}

func TestCachingRunner_MissingInputBypassesCache(t *testing.T) {
	next := &countingRunner{}
	rec := &lookupRecorder{}
	cr := NewCachingRunner(next, newMemoryCache(), rec, nil)

	_, err := cr.Run(context.Background(), invocationFor(filepath.Join(t.TempDir(), "missing.pdb")))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	assert.Empty(t, rec.results)
}

//Personal.AI order the ending
