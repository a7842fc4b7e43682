// paygate-seller is a demo seller API: a small gin service whose premium
// endpoints are gated behind x402 payments via the seller middleware.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/confluxpay/paygate/internal/invoices"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/seller"
	sellergin "github.com/confluxpay/paygate/internal/seller/gin"
	"github.com/confluxpay/paygate/pkg/client"
)

var version = "dev"

type options struct {
	listenAddr     string
	facilitatorURL string
	apiKey         string
	networksFile   string
	network        string
	token          string
	amount         string
	payerCredsFile string
	sqlitePath     string
	postgresURL    string
	logJSON        bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     "paygate-seller",
		Short:   "Demo seller API gated behind x402 payments",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.listenAddr, "listen", envOr("SELLER_LISTEN", ":8080"), "listen address")
	flags.StringVar(&opts.facilitatorURL, "facilitator", envOr("FACILITATOR_URL", "http://localhost:8402"), "facilitator base URL")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("FACILITATOR_API_KEY"), "facilitator API key")
	flags.StringVar(&opts.networksFile, "networks", os.Getenv("NETWORKS_FILE"), "networks TOML file (default: built-in registry)")
	flags.StringVar(&opts.network, "network", envOr("SELLER_NETWORK", "eip155:71"), "network id to charge on")
	flags.StringVar(&opts.token, "token", os.Getenv("SELLER_TOKEN"), "token symbol (default: network's default token)")
	flags.StringVar(&opts.amount, "amount", os.Getenv("SELLER_AMOUNT"), "price in base units (default: token minimum)")
	flags.StringVar(&opts.payerCredsFile, "payer-credentials", os.Getenv("PAYER_CREDENTIALS"), "demo payer credentials file (enables auto-pay, testnet only)")
	flags.StringVar(&opts.sqlitePath, "invoices-sqlite", envOr("SELLER_SQLITE_PATH", "./data/seller.db"), "sqlite path for the invoice store")
	flags.StringVar(&opts.postgresURL, "invoices-postgres", os.Getenv("DATABASE_URL"), "postgres URL for the invoice store (share the facilitator's so settlements mark invoices paid)")
	flags.BoolVar(&opts.logJSON, "log-json", envOr("LOG_FORMAT", "json") == "json", "log in JSON format")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	logger := newLogger(opts.logJSON)

	registry, err := loadRegistry(opts.networksFile)
	if err != nil {
		return err
	}
	network, err := registry.Get(opts.network)
	if err != nil {
		return fmt.Errorf("resolving network: %w", err)
	}

	facilitator := client.New(opts.facilitatorURL, opts.apiKey)

	store, err := openInvoiceStore(opts, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper := invoices.NewSweeper(store, 5*time.Minute, logger)
	sweeper.Start()
	defer sweeper.Stop()

	issuer, err := seller.NewIssuer(seller.IssuerConfig{
		Network:        network,
		Token:          opts.token,
		Amount:         opts.amount,
		Description:    "Premium market report",
		MimeType:       "application/json",
		FacilitatorURL: opts.facilitatorURL,
		Invoices:       store,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating challenge issuer: %w", err)
	}

	tok, err := issuer.Token()
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}

	var autoPayer *seller.AutoPayer
	if opts.payerCredsFile != "" {
		creds, err := seller.LoadPayerCredentials(opts.payerCredsFile)
		if err != nil {
			return fmt.Errorf("loading payer credentials: %w", err)
		}
		autoPayer, err = seller.NewAutoPayer(creds.PrivateKey, network, logger)
		if err != nil {
			return fmt.Errorf("creating demo payer: %w", err)
		}
		logger.Info("demo auto-pay enabled", "network", network.ID)
	}

	gate, err := seller.New(seller.Config{
		Facilitator: facilitator,
		Issuer:      issuer,
		AutoPayer:   autoPayer,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating payment middleware: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	premium := router.Group("/api/premium")
	premium.Use(sellergin.Payment(gate))
	premium.GET("/report", handleReport)

	logger.Info("seller listening",
		"addr", opts.listenAddr,
		"network", network.ID,
		"token", tok.Symbol,
		"facilitator", opts.facilitatorURL,
	)

	srv := &http.Server{
		Addr:         opts.listenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe()
}

// handleReport is the paid resource. By the time it runs the payment has
// already been verified and settled by the middleware.
func handleReport(c *gin.Context) {
	resp := gin.H{
		"report":       "premium market report",
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if p, ok := sellergin.PaymentFrom(c); ok && p.Result != nil {
		resp["paid_by"] = p.Result.Payer
		resp["transaction"] = p.Result.Transaction
		if p.Network != nil {
			resp["network"] = p.Network.ID
		}
	}
	c.JSON(http.StatusOK, resp)
}

// openInvoiceStore opens the seller's invoice store. Pointing DATABASE_URL
// at the facilitator's postgres gives both sides one invoice ledger, so
// settlements mark the seller's invoices paid.
func openInvoiceStore(opts *options, logger *slog.Logger) (invoices.Store, error) {
	cfg := invoices.Config{Type: "sqlite", SQLitePath: opts.sqlitePath}
	if opts.postgresURL != "" {
		cfg = invoices.Config{Type: "postgres", PostgresURL: opts.postgresURL}
	}

	store, err := invoices.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing invoice store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func loadRegistry(path string) (*networks.Registry, error) {
	if path != "" {
		registry, err := networks.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading networks file: %w", err)
		}
		return registry, nil
	}
	registry, err := networks.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading default networks: %w", err)
	}
	return registry, nil
}

func newLogger(jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
