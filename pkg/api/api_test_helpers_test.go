package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/workflow"
)

const (
	waitTimeout = 5 * time.Second
	waitTick    = 20 * time.Millisecond
)

// newTestAPIDB starts a disposable, fully migrated PostgreSQL container,
// mirroring pkg/workflow's package-local copy of the same helper.
func newTestAPIDB(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func testRetryPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: 5 * time.Millisecond, MaxAttempts: 2}
}

func testTimeouts() workflow.Timeouts {
	return workflow.Timeouts{ScheduleToStart: time.Second, StartToClose: 5 * time.Second, Heartbeat: time.Second}
}

// newTestServer wires a Server over a real database and a worker pool
// polling fast enough for tests, with no memory/metrics attached — enough
// to exercise the workflow and schedule routes; tool-route tests that need
// a live memory stack construct their own.
func newTestServer(t *testing.T, db *database.Client, activities workflow.Registry) *Server {
	t.Helper()
	rt := workflow.NewRuntime(db, activities, testRetryPolicy(), testTimeouts())
	require.NoError(t, rt.Register("greeter", func(wfCtx workflow.WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		return wfCtx.ExecuteActivity("greet", input)
	}))

	poolCfg := &config.WorkflowConfig{
		WorkerCount:             1,
		PollInterval:            waitTick,
		ClaimTimeout:            waitTimeout,
		HeartbeatInterval:       time.Second,
		MaxConcurrentExecutions: 4,
		OrphanScanInterval:      time.Minute,
	}
	pool := workflow.NewWorkerPool("test-pod", db, rt, poolCfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})

	return NewServer(nil, db, rt, pool, nil, nil, nil)
}
