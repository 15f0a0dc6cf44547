package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the pgx stdlib driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"namehaus/pkg/domain"
	"namehaus/pkg/platform/sentinel"
	"namehaus/pkg/requestcontext"
)

// PostgresLedger persists records in PostgreSQL for durable deployments.
// Token IDs and owners are stored as raw bytes; expiry comparisons use the
// request-scoped clock so the availability semantics match the memory store.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger over an open pool.
func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// OpenPostgres opens a pool with the pgx stdlib driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
    token_id BYTEA PRIMARY KEY,
    label    TEXT NOT NULL,
    owner    BYTEA NOT NULL,
    expiry   TIMESTAMPTZ NOT NULL,
    custody  TEXT NOT NULL DEFAULT 'owned',
    approved_operator BYTEA
);
`

// EnsureSchema creates the ledger table when absent.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Available(ctx context.Context, tokenID domain.TokenID) (bool, error) {
	var expiry time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT expiry FROM ledger_records WHERE token_id = $1`, tokenID[:],
	).Scan(&expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query availability: %w", err)
	}
	return !expiry.After(requestcontext.Now(ctx)), nil
}

func (l *PostgresLedger) OwnerOf(ctx context.Context, tokenID domain.TokenID) (domain.Address, error) {
	var owner []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT owner FROM ledger_records WHERE token_id = $1`, tokenID[:],
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Address{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Address{}, fmt.Errorf("query owner: %w", err)
	}
	var addr domain.Address
	copy(addr[:], owner)
	return addr, nil
}

func (l *PostgresLedger) ExpiresAt(ctx context.Context, tokenID domain.TokenID) (time.Time, error) {
	var expiry time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT expiry FROM ledger_records WHERE token_id = $1`, tokenID[:],
	).Scan(&expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, sentinel.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query expiry: %w", err)
	}
	return expiry, nil
}

func (l *PostgresLedger) MintOrExtend(ctx context.Context, tokenID domain.TokenID, label string, owner domain.Address, expiry time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ledger_records (token_id, label, owner, expiry, custody, approved_operator)
		VALUES ($1, $2, $3, $4, 'owned', NULL)
		ON CONFLICT (token_id) DO UPDATE
		SET owner = EXCLUDED.owner, expiry = EXCLUDED.expiry,
		    custody = 'owned', approved_operator = NULL`,
		tokenID[:], label, owner.Bytes(), expiry,
	)
	if err != nil {
		return fmt.Errorf("mint or extend: %w", err)
	}
	return nil
}

func (l *PostgresLedger) TransferCustody(ctx context.Context, tokenID domain.TokenID, to domain.Address, custody CustodyState) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE ledger_records
		SET owner = $2, custody = $3, approved_operator = NULL
		WHERE token_id = $1`,
		tokenID[:], to.Bytes(), string(custody),
	)
	if err != nil {
		return fmt.Errorf("transfer custody: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transfer custody: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) Approve(ctx context.Context, tokenID domain.TokenID, operator domain.Address) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE ledger_records SET approved_operator = $2 WHERE token_id = $1`,
		tokenID[:], operator.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("approve operator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve operator: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) IsApproved(ctx context.Context, tokenID domain.TokenID, operator domain.Address) (bool, error) {
	if operator.IsZero() {
		return false, nil
	}
	var approved []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT approved_operator FROM ledger_records WHERE token_id = $1`, tokenID[:],
	).Scan(&approved)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query approval: %w", err)
	}
	var addr domain.Address
	copy(addr[:], approved)
	return addr == operator, nil
}
