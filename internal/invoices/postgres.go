package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store.
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the invoices table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
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
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		paid_at TIMESTAMPTZ
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
func (s *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, network, token_symbol, amount, endpoint, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.Network, inv.TokenSymbol, inv.Amount, inv.Endpoint, StatusPending,
		inv.CreatedAt.UTC(), inv.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting invoice: %w", err)
	}
	return nil
}

// Get fetches a single invoice by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, network, token_symbol, amount, endpoint, status,
		       COALESCE(transaction_hash, ''), COALESCE(payer, ''),
		       created_at, expires_at, paid_at
		FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// MarkPaid transitions a pending invoice to paid.
func (s *PostgresStore) MarkPaid(ctx context.Context, id, transaction, payer string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $1, transaction_hash = $2, payer = $3, paid_at = $4
		WHERE id = $5 AND status = $6`,
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
func (s *PostgresStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $1 WHERE status = $2 AND expires_at < $3`,
		StatusExpired, StatusPending, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring invoices: %w", err)
	}
	return res.RowsAffected()
}

// List returns invoices filtered by status, newest first.
func (s *PostgresStore) List(ctx context.Context, status string, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, network, token_symbol, amount, endpoint, status,
		       COALESCE(transaction_hash, ''), COALESCE(payer, ''),
		       created_at, expires_at, paid_at
		FROM invoices
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2`, status, limit)
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
