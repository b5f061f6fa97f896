package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists credentials and portal session state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS portal_credentials (
			account TEXT PRIMARY KEY,
			secret TEXT NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS portal_states (
			account TEXT PRIMARY KEY,
			payload BYTEA NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveCredentials(ctx context.Context, creds Credentials) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portal_credentials (account, secret, saved_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (account) DO UPDATE SET secret = EXCLUDED.secret, updated_at = EXCLUDED.updated_at`,
		creds.Account,
		creds.Secret,
		now,
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredentials(ctx context.Context, account string) (Credentials, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT account, secret, saved_at, updated_at FROM portal_credentials WHERE account = $1`,
		account,
	)
	var creds Credentials
	if err := row.Scan(&creds.Account, &creds.Secret, &creds.SavedAt, &creds.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("get credentials: %w", err)
	}
	return creds, nil
}

func (s *PostgresStore) SavePortalState(ctx context.Context, state PortalState) error {
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portal_states (account, payload, saved_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
		state.Account,
		state.Payload,
		state.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save portal state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPortalState(ctx context.Context, account string) (PortalState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT account, payload, saved_at FROM portal_states WHERE account = $1`,
		account,
	)
	var state PortalState
	if err := row.Scan(&state.Account, &state.Payload, &state.SavedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PortalState{}, ErrNotFound
		}
		return PortalState{}, fmt.Errorf("get portal state: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) HasPortalState(ctx context.Context, account string) (bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM portal_states WHERE account = $1)`,
		account,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("has portal state: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
