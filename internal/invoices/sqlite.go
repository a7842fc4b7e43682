package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the invoices table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		token_symbol TEXT NOT NULL,
		amount TEXT NOT NULL,
		endpoint TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_hash TEXT,
		payer TEXT,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		paid_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
	CREATE INDEX IF NOT EXISTS idx_invoices_expires ON invoices(expires_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Create records a fresh pending invoice.
func (s *SQLiteStore) Create(ctx context.Context, inv *Invoice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, network, token_symbol, amount, endpoint, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Network, inv.TokenSymbol, inv.Amount, inv.Endpoint, StatusPending,
		inv.CreatedAt.UTC(), inv.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting invoice: %w", err)
	}
	return nil
}

// Get fetches a single invoice by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, network, token_symbol, amount, endpoint, status,
		       COALESCE(transaction_hash, ''), COALESCE(payer, ''),
		       created_at, expires_at, paid_at
		FROM invoices WHERE id = ?`, id)
	return scanInvoice(row)
}

// MarkPaid transitions a pending invoice to paid.
func (s *SQLiteStore) MarkPaid(ctx context.Context, id, transaction, payer string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, transaction_hash = ?, payer = ?, paid_at = ?
		WHERE id = ? AND status = ?`,
		StatusPaid, transaction, payer, time.Now().UTC(), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("marking invoice paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireBefore flips pending invoices whose expiry passed the cutoff.
func (s *SQLiteStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ? WHERE status = ? AND expires_at < ?`,
		StatusExpired, StatusPending, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring invoices: %w", err)
	}
	return res.RowsAffected()
}

// List returns invoices filtered by status, newest first.
func (s *SQLiteStore) List(ctx context.Context, status string, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, network, token_symbol, amount, endpoint, status,
		       COALESCE(transaction_hash, ''), COALESCE(payer, ''),
		       created_at, expires_at, paid_at
		FROM invoices
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC LIMIT ?`, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	var paidAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.Network, &inv.TokenSymbol, &inv.Amount, &inv.Endpoint,
		&inv.Status, &inv.Transaction, &inv.Payer,
		&inv.CreatedAt, &inv.ExpiresAt, &paidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning invoice: %w", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	return &inv, nil
}
