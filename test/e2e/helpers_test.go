//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/confluxpay/paygate/internal/chainpool"
	"github.com/confluxpay/paygate/internal/config"
	"github.com/confluxpay/paygate/internal/invoices"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/server"
	"github.com/confluxpay/paygate/pkg/client"
)

const testAPIKey = "e2e-facilitator-key"

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             invoices.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("paygate"),
		postgres.WithUsername("paygate"),
		postgres.WithPassword("paygate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE builds a facilitator server over the built-in network
// registry, a key-less chain pool and a postgres invoice store, and
// serves it via httptest.
func startServerE(connString string) (*httptest.Server, invoices.Store, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	registry, err := networks.LoadDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("loading networks: %w", err)
	}

	// No relayer key: verify paths work, settlement reports the missing
	// relayer. E2E coverage here stops short of on-chain calls.
	pool, err := chainpool.New(registry, "")
	if err != nil {
		return nil, nil, fmt.Errorf("creating chain pool: %w", err)
	}

	store, err := invoices.New(invoices.Config{Type: "postgres", PostgresURL: connString}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating invoice store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, Host: "127.0.0.1"},
		Auth:   config.AuthConfig{APIKey: testAPIKey},
		Invoices: config.InvoicesConfig{
			Type:        "postgres",
			PostgresURL: connString,
		},
		Logging: config.LoggingConfig{Level: "warn", Format: "text"},
		Metrics: config.MetricsConfig{Enabled: true},
		RateLimit: config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 6000,
			BurstSize:      1000,
			CleanupMinutes: 10,
		},
		Security: config.SecurityConfig{FilterEnabled: true, MaxBodySizeMB: 5},
	}

	srv := server.New(cfg, pool, store, logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient builds a facilitator API client against the test server
func newClient(apiKey string) *client.Client {
	return client.New(testCtx.TestServer.URL, apiKey)
}
