//go:build e2e

package e2e

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/confluxpay/paygate/internal/observability/metrics"
)

var testCtx *TestContext

func TestMain(m *testing.M) {
	flag.Parse()

	ctx := context.Background()
	testCtx = &TestContext{}

	metrics.Init(true, "paygate-e2e")

	log.Println("Starting Postgres container...")
	var err error
	testCtx.PostgresContainer, testCtx.ConnString, err = setupPostgresE(ctx)
	if err != nil {
		log.Fatalf("Failed to start postgres: %v", err)
	}
	defer func() {
		if err := testCtx.PostgresContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate postgres container: %v", err)
		}
	}()
	log.Println("Postgres container started")

	log.Println("Starting test server...")
	testCtx.TestServer, testCtx.Store, err = startServerE(testCtx.ConnString)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer testCtx.TestServer.Close()
	defer testCtx.Store.Close()
	log.Println("Test server started at:", testCtx.TestServer.URL)

	exitCode := m.Run()

	log.Println("E2E tests completed with exit code:", exitCode)
	os.Exit(exitCode)
}
