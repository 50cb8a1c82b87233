package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
	go_json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ Backend = (*PostgresBackend)(nil)
	_ Pruner  = (*PostgresBackend)(nil)
)

// PostgresBackend keeps sessions and pending authorization requests in the tables created by
// internal/migrations/postgres.
type PostgresBackend struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
	now        func() time.Time
}

func NewPostgresBackend(pool *pgxpool.Pool, sessionTTL time.Duration) *PostgresBackend {
	return &PostgresBackend{
		pool:       pool,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (p *PostgresBackend) Get(ctx context.Context, id string) (session.Session, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM sessions WHERE id = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		id, p.now(),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	var s session.Session
	if err := go_json.Unmarshal(data, &s); err != nil {
		return session.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s, nil
}

func (p *PostgresBackend) Put(ctx context.Context, s session.Session) error {
	data, err := go_json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO sessions (id, data, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		s.ID, string(data), sessionExpiry(p.now(), p.sessionTTL),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Update(ctx context.Context, s session.Session) error {
	data, err := go_json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	now := p.now()
	tag, err := p.pool.Exec(ctx, `
		UPDATE sessions
		SET data = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > $4)`,
		s.ID, string(data), sessionExpiry(now, p.sessionTTL), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) Remove(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Set(ctx context.Context, state string, req oauth.AuthorizationRequest, ttl time.Duration) error {
	data, err := go_json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO authorization_requests (state, data, expires_at) VALUES ($1, $2, $3)`,
		state, string(data), req.CreatedAt.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to insert authorization request: %w", err)
	}
	return nil
}

func (p *PostgresBackend) GetAndDelete(ctx context.Context, state string) (oauth.AuthorizationRequest, error) {
	var (
		data      []byte
		expiresAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`DELETE FROM authorization_requests WHERE state = $1 RETURNING data, expires_at`,
		state,
	).Scan(&data, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}
	if err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("failed to get and delete state: %w", err)
	}

	if !p.now().Before(expiresAt) {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}

	var req oauth.AuthorizationRequest
	if err := go_json.Unmarshal(data, &req); err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("failed to unmarshal authorization request: %w", err)
	}
	return req, nil
}

// Prune deletes expired sessions and authorization requests, returning the number of rows removed.
func (p *PostgresBackend) Prune(ctx context.Context) (int64, error) {
	now := p.now()

	sessions, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}

	states, err := p.pool.Exec(ctx, `DELETE FROM authorization_requests WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune authorization requests: %w", err)
	}

	return sessions.RowsAffected() + states.RowsAffected(), nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func sessionExpiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)
	return &at
}
