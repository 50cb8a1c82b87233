package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
	go_json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var _ Backend = (*RedisBackend)(nil)

const (
	sessionKeyPrefix = "session:"
	stateKeyPrefix   = "state:"
)

type RedisBackend struct {
	client     *redis.Client
	sessionTTL time.Duration
}

// NewRedisBackend stores sessions as JSON under session:<id>. A zero sessionTTL disables expiry.
func NewRedisBackend(client *redis.Client, sessionTTL time.Duration) *RedisBackend {
	return &RedisBackend{
		client:     client,
		sessionTTL: sessionTTL,
	}
}

func (r *RedisBackend) Get(ctx context.Context, id string) (session.Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
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

func (r *RedisBackend) Put(ctx context.Context, s session.Session) error {
	data, err := go_json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKeyPrefix+s.ID, data, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (r *RedisBackend) Update(ctx context.Context, s session.Session) error {
	data, err := go_json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetXX(ctx, sessionKeyPrefix+s.ID, data, r.sessionTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisBackend) Remove(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisBackend) Set(ctx context.Context, state string, req oauth.AuthorizationRequest, ttl time.Duration) error {
	data, err := go_json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	remaining := time.Until(req.CreatedAt.Add(ttl))
	if remaining <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, stateKeyPrefix+state, data, remaining).Err(); err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}

	return nil
}

func (r *RedisBackend) GetAndDelete(ctx context.Context, state string) (oauth.AuthorizationRequest, error) {
	data, err := r.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}
	if err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("failed to get and delete state: %w", err)
	}

	var req oauth.AuthorizationRequest
	if err := go_json.Unmarshal(data, &req); err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("failed to unmarshal authorization request: %w", err)
	}

	return req, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
