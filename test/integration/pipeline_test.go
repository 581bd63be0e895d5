//go:build integration

package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/bootstrap"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

type env struct {
	comps *bootstrap.Components
	calls string
}

func setup(t *testing.T) *env {
	t.Helper()
	cfg, calls := newConfig(t, startRedis(t), startMinIO(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	comps, err := bootstrap.New(ctx, cfg, testutil.NewMockLogger(), bootstrap.Features{Redis: true, MinIO: true})
	require.NoError(t, err)
	t.Cleanup(comps.Close)
	return &env{comps: comps, calls: calls}
}

func TestJobPipeline_ObjectStoreRoundTrip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	bucket := e.comps.Config.MinIO.Bucket

	_, err := e.comps.Store.Upload(ctx, bucket, "in/1gly.pdb", []byte(inputPDB), nil)
	require.NoError(t, err)

	proc, err := protonation.NewJobProcessor(e.comps.Service, e.comps.ObjectStore(), e.comps.Locker,
		bootstrap.DefaultOptions(e.comps.Config), testutil.NewMockLogger())
	require.NoError(t, err)

	res, err := proc.Process(ctx, protonation.JobRequest{JobID: "job-1", Bucket: bucket, ObjectKey: "in/1gly.pdb"})
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Equal(t, domain.OutcomeProtonated, res.Run.Outcome)
	assert.Equal(t, 1, res.Run.Added)
	assert.Equal(t, "in/1gly_h.pdb", res.OutputKey)

	out, err := e.comps.Store.Download(ctx, bucket, res.OutputKey)
	require.NoError(t, err)
	var hydrogens int
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "ATOM") && len(line) >= 78 && strings.TrimSpace(line[76:78]) == "H" {
			hydrogens++
		}
	}
	assert.Equal(t, 1, hydrogens)
	assert.Equal(t, 1, callCount(t, e.calls))

	// The second run is answered from the Redis output cache.
	res, err = proc.Process(ctx, protonation.JobRequest{JobID: "job-2", Bucket: bucket, ObjectKey: "in/1gly.pdb"})
	require.NoError(t, err)
	assert.True(t, res.Run.Cached)
	assert.Equal(t, 1, callCount(t, e.calls))

	purged, err := e.comps.Cache.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestJobPipeline_MissingObject(t *testing.T) {
	e := setup(t)
	proc, err := protonation.NewJobProcessor(e.comps.Service, e.comps.ObjectStore(), e.comps.Locker,
		bootstrap.DefaultOptions(e.comps.Config), testutil.NewMockLogger())
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), protonation.JobRequest{
		JobID:     "job-missing",
		Bucket:    e.comps.Config.MinIO.Bucket,
		ObjectKey: "in/absent.pdb",
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, protonation.Retryable(err))
	assert.Zero(t, callCount(t, e.calls))
}

func TestLocker_SerializesOutputKey(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	release, err := e.comps.Locker.Acquire(ctx, "in/1gly_h.pdb")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = e.comps.Locker.Acquire(waitCtx, "in/1gly_h.pdb")
	assert.Error(t, err, "second holder must wait for the first")

	require.NoError(t, release(ctx))
	release2, err := e.comps.Locker.Acquire(ctx, "in/1gly_h.pdb")
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestHealthCheckers(t *testing.T) {
	e := setup(t)
	names := map[string]bool{}
	for _, hc := range e.comps.HealthCheckers() {
		names[hc.Name()] = true
		assert.NoError(t, hc.Check(context.Background()), hc.Name())
	}
	assert.True(t, names["redis"])
	assert.True(t, names["minio"])
}

//Personal.AI order the ending
