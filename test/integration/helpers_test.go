//go:build integration

// Package integration runs the protonation pipeline against real Redis and
// MinIO containers.  Run with: go test -tags integration ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/KeyIP-Protonate/internal/config"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const inputPDB = `ATOM      1  N   GLY A   1      10.000  10.000  10.000  1.00 15.50           N  
ATOM      2  CA  GLY A   1      11.458  10.000  10.000  1.00 16.00           C  
END
`

// engineOutput is what the fake engine prints: the input plus one new
// hydrogen on N.
const engineOutput = `USER  MOD reduce.3.24.130724 H: found=0, std=0, add=1, rem=0, adj=0
ATOM      1  N   GLY A   1      10.000  10.000  10.000  1.00 15.50           N  
ATOM      2  CA  GLY A   1      11.458  10.000  10.000  1.00 16.00           C  
ATOM      0  H   GLY A   1       9.500  10.866  10.000  1.00  0.00           H     new
TER
END
`

// fakeEngine writes a shell script standing in for the Reduce executable
// and returns its path.  Every invocation appends a line to the returned
// call log.
func fakeEngine(t *testing.T) (exe, dict, calls string) {
	t.Helper()
	dir := t.TempDir()
	exe = filepath.Join(dir, "reduce")
	dict = filepath.Join(dir, "reduce_wwPDB_het_dict.txt")
	calls = filepath.Join(dir, "calls.log")

	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> %q\ncat <<'PDB'\n%sPDB\n", calls, engineOutput)
	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))
	require.NoError(t, os.WriteFile(dict, []byte("RESIDUE   GLY     10\n"), 0o644))
	return exe, dict, calls
}

// callCount returns how many times the fake engine ran.
func callCount(t *testing.T, calls string) int {
	t.Helper()
	data, err := os.ReadFile(calls)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func startRedis(t *testing.T) string {
	return startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")
}

func startMinIO(t *testing.T) string {
	return startContainer(t, testcontainers.ContainerRequest{
		Image:        "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}, "9000")
}

// newConfig returns a validated configuration pointing at the containers
// and the fake engine.
func newConfig(t *testing.T, redisAddr, minioEndpoint string) (*config.Config, string) {
	t.Helper()
	exe, dict, calls := fakeEngine(t)

	cfg := &config.Config{}
	cfg.Engine.Executable = exe
	cfg.Engine.Dictionary = dict
	cfg.Engine.WorkDir = t.TempDir()
	cfg.Engine.Cache.Enabled = true
	cfg.Redis.Addr = redisAddr
	cfg.MinIO.Endpoint = minioEndpoint
	cfg.MinIO.AccessKey = "minioadmin"
	cfg.MinIO.SecretKey = "minioadmin"
	cfg.MinIO.Bucket = "structures-it"
	config.ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())
	return cfg, calls
}

//Personal.AI order the ending
