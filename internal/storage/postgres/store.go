package postgres

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okhuang/libraria-be/internal/storage"
)

const dialect = "postgres"

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// Store provides Postgres-backed persistence for users, books, and payments.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and runs migrations.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			total_fines_paid BIGINT NOT NULL DEFAULT 0,
			last_login TIMESTAMPTZ,
			login_count INT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT,
			published_year INT NOT NULL DEFAULT 0,
			genre TEXT NOT NULL DEFAULT '',
			available BOOLEAN NOT NULL DEFAULT TRUE,
			status TEXT NOT NULL DEFAULT 'available',
			borrower_id BIGINT,
			borrower_name TEXT NOT NULL DEFAULT '',
			borrower_email TEXT NOT NULL DEFAULT '',
			borrowed_date TIMESTAMPTZ,
			due_date TIMESTAMPTZ,
			return_date TIMESTAMPTZ,
			days_overdue INT NOT NULL DEFAULT 0,
			penalty_amount BIGINT NOT NULL DEFAULT 0,
			penalty_paid BOOLEAN NOT NULL DEFAULT FALSE,
			penalty_user_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			transaction_id TEXT UNIQUE NOT NULL,
			user_id BIGINT NOT NULL,
			book_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			gateway TEXT NOT NULL DEFAULT '',
			card_last_four TEXT NOT NULL DEFAULT '',
			recorded_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS books_isbn_unique_idx ON books (isbn) WHERE isbn IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS books_borrower_idx ON books (borrower_id);`,
		`CREATE INDEX IF NOT EXISTS books_penalty_user_idx ON books (penalty_user_id);`,
		`CREATE INDEX IF NOT EXISTS payments_user_idx ON payments (user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
