// Package invoices tracks the lifecycle of challenge invoices: created as
// pending when a 402 is issued, marked paid on settlement, expired by a
// periodic sweep. The store is advisory — payment correctness never depends
// on it, so store errors are logged and swallowed by callers.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Invoice statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// ErrNotFound is returned when an invoice id is unknown.
var ErrNotFound = errors.New("invoice not found")

// Invoice is one tracked challenge.
type Invoice struct {
	ID          string
	Network     string
	TokenSymbol string
	Amount      string
	Endpoint    string
	Status      string
	Transaction string
	Payer       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	PaidAt      *time.Time
}

// Store is the invoice lifecycle interface.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	MarkPaid(ctx context.Context, id, transaction, payer string) error
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, status string, limit int) ([]Invoice, error)

	Close() error
	Migrate(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Type        string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string
}

// New creates a store based on configuration.
func New(cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("unknown invoice store type: %s", cfg.Type)
	}
}
