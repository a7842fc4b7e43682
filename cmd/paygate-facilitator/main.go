package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/confluxpay/paygate/internal/chainpool"
	"github.com/confluxpay/paygate/internal/config"
	"github.com/confluxpay/paygate/internal/invoices"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/observability/metrics"
	"github.com/confluxpay/paygate/internal/server"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "paygate-facilitator",
		Short:   "Paygate facilitator - x402 payment verification and settlement",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeyCmd())
	rootCmd.AddCommand(newInvoicesCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the relayer signing key",
	}

	cmd.AddCommand(newKeyImportCmd())
	cmd.AddCommand(newKeyShowCmd())

	return cmd
}

func newKeyImportCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a relayer private key",
		Long: `Import the relayer's hex-encoded private key and write it to a key file.

The key is read from an interactive prompt so it never lands in shell
history. Point RELAYER_KEY_FILE at the written file when serving.

EXAMPLES:
  paygate-facilitator key import --output /secure/path/relayer.key
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyImport(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "./relayer.key", "path to write the key file")

	return cmd
}

func newKeyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the configured relayer address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyShow()
		},
	}
}

func newInvoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Inspect the invoice store",
	}

	cmd.AddCommand(newInvoicesListCmd())
	cmd.AddCommand(newInvoicesSweepCmd())

	return cmd
}

func newInvoicesListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoicesList(status, limit)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, paid, expired)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of invoices to show")

	return cmd
}

func newInvoicesSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending invoices now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoicesSweep()
		},
	}
}

// Key management commands

func runKeyImport(outputFile string) error {
	fmt.Fprint(os.Stderr, "Relayer private key (hex): ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading key: %w", err)
	}

	keyHex := string(raw)
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}

	dir := filepath.Dir(outputFile)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(keyHex+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}

	fmt.Printf("Relayer key written to %s (mode 0600)\n", outputFile)
	fmt.Printf("Relayer address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Println()
	fmt.Println("Serve with:")
	fmt.Printf("  export RELAYER_KEY_FILE=%s\n", outputFile)
	fmt.Println("  paygate-facilitator serve")

	return nil
}

func runKeyShow() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keyHex, err := cfg.RelayerKeyHex()
	if err != nil {
		return err
	}
	if keyHex == "" {
		fmt.Println("No relayer key configured (verify-only mode)")
		return nil
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	pool, err := chainpool.New(registry, keyHex)
	if err != nil {
		return err
	}
	defer pool.Close()

	fmt.Printf("Relayer address: %s\n", pool.Relayer().Hex())
	return nil
}

// Invoice commands

func runInvoicesList(status string, limit int) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background(), status, limit)
	if err != nil {
		return fmt.Errorf("listing invoices: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No invoices found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNETWORK\tTOKEN\tAMOUNT\tSTATUS\tCREATED")
	for _, inv := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.Network, inv.TokenSymbol, inv.Amount, inv.Status,
			inv.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()

	return nil
}

func runInvoicesSweep() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ExpireBefore(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("expiring invoices: %w", err)
	}

	fmt.Printf("Expired %d invoice(s)\n", n)
	return nil
}

func openStore() (invoices.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := invoices.New(invoices.Config{
		Type:        cfg.Invoices.Type,
		SQLitePath:  cfg.Invoices.SQLitePath,
		PostgresURL: cfg.Invoices.PostgresURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing invoice store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.APIKey == "" {
		return fmt.Errorf("FACILITATOR_API_KEY is required")
	}

	logger := setupLogger(cfg)
	logger.Info("starting paygate-facilitator", "version", version)

	metrics.Init(cfg.Metrics.Enabled, "paygate-facilitator")

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	keyHex, err := cfg.RelayerKeyHex()
	if err != nil {
		return err
	}
	pool, err := chainpool.New(registry, keyHex)
	if err != nil {
		return fmt.Errorf("initializing chain pool: %w", err)
	}
	defer pool.Close()

	if keyHex == "" {
		logger.Warn("no relayer key configured, settlement disabled")
	} else {
		logger.Info("relayer configured", "address", pool.Relayer().Hex())
	}

	store, err := invoices.New(invoices.Config{
		Type:        cfg.Invoices.Type,
		SQLitePath:  cfg.Invoices.SQLitePath,
		PostgresURL: cfg.Invoices.PostgresURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing invoice store: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	sweeper := invoices.NewSweeper(store, time.Duration(cfg.Invoices.SweepMinutes)*time.Minute, logger)
	sweeper.Start()
	defer sweeper.Stop()

	srv := server.New(cfg, pool, store, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Optional dedicated metrics listener
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != 0 {
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: srv.MetricsHandler(),
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadRegistry(cfg *config.Config) (*networks.Registry, error) {
	if cfg.Chain.NetworksFile != "" {
		registry, err := networks.LoadFile(cfg.Chain.NetworksFile)
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

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
