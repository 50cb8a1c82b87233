package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
	go_json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
)

var (
	_ Backend = (*SQLiteBackend)(nil)
	_ Pruner  = (*SQLiteBackend)(nil)
)

// SQLiteBackend mirrors PostgresBackend on a local database file. Timestamps are stored as
// unix milliseconds so comparisons stay in SQL.
type SQLiteBackend struct {
	db         *sql.DB
	sessionTTL time.Duration
	now        func() time.Time
}

// OpenSQLite opens the database at path with foreign keys and WAL enabled.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

func NewSQLiteBackend(db *sql.DB, sessionTTL time.Duration) *SQLiteBackend {
	return &SQLiteBackend{
		db:         db,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (session.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		id, s.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	var sess session.Session
	if err := go_json.Unmarshal([]byte(data), &sess); err != nil {
		return session.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, sess session.Session) error {
	data, err := go_json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var expiresAt *int64
	if at := sessionExpiry(s.now(), s.sessionTTL); at != nil {
		ms := at.UnixMilli()
		expiresAt = &ms
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET data = excluded.data, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		sess.ID, string(data), expiresAt, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Update(ctx context.Context, sess session.Session) error {
	data, err := go_json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	now := s.now()
	var expiresAt *int64
	if at := sessionExpiry(now, s.sessionTTL); at != nil {
		ms := at.UnixMilli()
		expiresAt = &ms
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET data = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		string(data), expiresAt, now.UnixMilli(), sess.ID, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteBackend) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Set(ctx context.Context, state string, req oauth.AuthorizationRequest, ttl time.Duration) error {
	data, err := go_json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO authorization_requests (state, data, expires_at) VALUES (?, ?, ?)`,
		state, string(data), req.CreatedAt.Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert authorization request: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) GetAndDelete(ctx context.Context, state string) (oauth.AuthorizationRequest, error) {
	var (
		data      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM authorization_requests WHERE state = ? RETURNING data, expires_at`,
		state,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}
	if err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("failed to get and delete state: %w", err)
	}

	if s.now().UnixMilli() >= expiresAt {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}

	var req oauth.AuthorizationRequest
	if err := go_json.Unmarshal([]byte(data), &req); err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("failed to unmarshal authorization request: %w", err)
	}
	return req, nil
}

func (s *SQLiteBackend) Prune(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()

	var total int64
	for _, stmt := range []string{
		`DELETE FROM sessions WHERE expires_at <= ?`,
		`DELETE FROM authorization_requests WHERE expires_at <= ?`,
	} {
		res, err := s.db.ExecContext(ctx, stmt, now)
		if err != nil {
			return 0, fmt.Errorf("failed to prune: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count pruned rows: %w", err)
		}
		total += n
	}
	return total, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
