package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garrettladley/whoopweb/internal/session"
	"github.com/garrettladley/whoopweb/internal/storage"
	go_json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

type refreshServer struct {
	*httptest.Server

	calls   atomic.Int32
	mu      sync.Mutex
	status  int
	body    map[string]any
	gate    chan struct{}
	entered chan struct{}
	lastRT  string
}

func newRefreshServer(t *testing.T) *refreshServer {
	t.Helper()

	rs := &refreshServer{
		status: http.StatusOK,
		body: map[string]any{
			"access_token":  "A2",
			"refresh_token": "R2",
			"token_type":    "bearer",
			"expires_in":    3600,
		},
		entered: make(chan struct{}, 64),
	}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.calls.Add(1)
		_ = r.ParseForm()

		rs.mu.Lock()
		rs.lastRT = r.PostForm.Get("refresh_token")
		status, body, gate := rs.status, rs.body, rs.gate
		rs.mu.Unlock()

		rs.entered <- struct{}{}
		if gate != nil {
			<-gate
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = go_json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *refreshServer) hold() chan struct{} {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.gate = make(chan struct{})
	return rs.gate
}

func (rs *refreshServer) refreshToken() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRT
}

func (rs *refreshServer) respond(status int, body map[string]any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status = status
	rs.body = body
}

type fixture struct {
	manager *Manager
	store   *storage.MemoryBackend
	server  *refreshServer
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		server: newRefreshServer(t),
		store:  storage.NewMemoryBackend(0),
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = f.store.Close() })

	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"offline", "read:recovery", "read:sleep"},
		Endpoint: oauth2.Endpoint{
			TokenURL:  f.server.URL + "/oauth/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	f.manager = NewManager(cfg, f.store,
		WithHTTPClient(f.server.Client()),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

// seed stores a session whose token expires in ttl.
func (f *fixture) seed(t *testing.T, id string, ttl time.Duration) session.Session {
	t.Helper()

	sess := session.Session{
		ID: id,
		Token: &session.TokenBundle{
			AccessToken:  "A1",
			RefreshToken: "R1",
			IssuedAt:     f.now.Add(-time.Hour),
			ExpiresAt:    f.now.Add(ttl),
			Scopes:       []string{"offline", "read:recovery"},
		},
		CreatedAt: f.now.Add(-time.Hour),
		UpdatedAt: f.now.Add(-time.Hour),
	}
	if err := f.store.Put(context.Background(), sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return sess
}

func TestEnsureFreshReturnsValidToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "s1", time.Hour)

	tok, err := f.manager.EnsureFresh(context.Background(), "s1")
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if tok != "A1" {
		t.Errorf("EnsureFresh() = %q, want A1", tok)
	}
	if n := f.server.calls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestEnsureFreshRefreshesInsideMargin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "s1", 10*time.Second)

	tok, err := f.manager.EnsureFresh(context.Background(), "s1")
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if tok != "A2" {
		t.Errorf("EnsureFresh() = %q, want A2", tok)
	}
	if rt := f.server.refreshToken(); rt != "R1" {
		t.Errorf("refresh_token sent = %q, want R1", rt)
	}

	stored, err := f.store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := session.TokenBundle{
		AccessToken:  "A2",
		RefreshToken: "R2",
		IssuedAt:     f.now,
		ExpiresAt:    f.now.Add(time.Hour),
		Scopes:       []string{"offline", "read:recovery"},
	}
	if diff := cmp.Diff(&want, stored.Token); diff != "" {
		t.Errorf("stored token mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureFreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.server.respond(http.StatusOK, map[string]any{
		"access_token": "A2",
		"token_type":   "bearer",
		"expires_in":   3600,
		"scope":        "offline read:sleep",
	})
	f.seed(t, "s1", -time.Minute)

	bundle, err := f.manager.EnsureFreshBundle(context.Background(), "s1")
	if err != nil {
		t.Fatalf("EnsureFreshBundle() error = %v", err)
	}
	if bundle.RefreshToken != "R1" {
		t.Errorf("RefreshToken = %q, want R1", bundle.RefreshToken)
	}
	if diff := cmp.Diff([]string{"offline", "read:sleep"}, bundle.Scopes); diff != "" {
		t.Errorf("Scopes mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureFreshSingleFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "s1", 5*time.Second)
	gate := f.server.hold()

	const callers = 8
	var (
		wg     sync.WaitGroup
		tokens = make([]string, callers)
		errs   = make([]error, callers)
	)
	for i := range callers {
		wg.Go(func() {
			tokens[i], errs[i] = f.manager.EnsureFresh(context.Background(), "s1")
		})
	}

	<-f.server.entered
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if tokens[i] != "A2" {
			t.Errorf("caller %d token = %q, want A2", i, tokens[i])
		}
	}
	if n := f.server.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestEnsureFreshCallerCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "s1", 0)
	gate := f.server.hold()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureFresh(ctx, "s1")
		done <- err
	}()

	<-f.server.entered
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("EnsureFresh() error = %v, want context.Canceled", err)
	}

	close(gate)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := f.store.Get(context.Background(), "s1")
		if err == nil && stored.Token.AccessToken == "A2" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("refresh did not complete after the caller went away")
}

func TestEnsureFreshDoesNotRestoreRemovedSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "s1", 0)
	gate := f.server.hold()

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureFresh(context.Background(), "s1")
		done <- err
	}()

	<-f.server.entered
	if err := f.store.Remove(context.Background(), "s1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	close(gate)

	if err := <-done; !errors.Is(err, ErrNoSession) {
		t.Errorf("EnsureFresh() error = %v, want ErrNoSession", err)
	}
	if _, err := f.store.Get(context.Background(), "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after logout error = %v, want ErrNotFound", err)
	}
}

func TestEnsureFreshFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(t *testing.T, f *fixture)
		id        string
		wantErr   error
		wantCalls int32
	}{
		{
			name:    "missing session",
			setup:   func(*testing.T, *fixture) {},
			id:      "missing",
			wantErr: ErrNoSession,
		},
		{
			name:    "empty session id",
			setup:   func(*testing.T, *fixture) {},
			id:      "",
			wantErr: ErrNoSession,
		},
		{
			name: "session without token",
			setup: func(t *testing.T, f *fixture) {
				if err := f.store.Put(context.Background(), session.Session{ID: "s1"}); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			},
			id:      "s1",
			wantErr: ErrNoSession,
		},
		{
			name: "provider rejects refresh",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, "s1", 0)
				f.server.respond(http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			},
			id:        "s1",
			wantErr:   ErrRefreshRejected,
			wantCalls: 1,
		},
		{
			name: "no refresh token",
			setup: func(t *testing.T, f *fixture) {
				sess := f.seed(t, "s1", 0)
				sess.Token.RefreshToken = ""
				if err := f.store.Put(context.Background(), sess); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			},
			id:      "s1",
			wantErr: ErrRefreshRejected,
		},
		{
			name: "transport failure",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, "s1", 0)
				f.server.Close()
			},
			id:      "s1",
			wantErr: ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.setup(t, f)

			var before *session.Session
			if s, err := f.store.Get(context.Background(), tt.id); err == nil {
				before = &s
			}

			_, err := f.manager.EnsureFresh(context.Background(), tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("EnsureFresh() error = %v, want %v", err, tt.wantErr)
			}
			if n := f.server.calls.Load(); n != tt.wantCalls {
				t.Errorf("refresh calls = %d, want %d", n, tt.wantCalls)
			}

			if before != nil {
				after, err := f.store.Get(context.Background(), tt.id)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if diff := cmp.Diff(*before, after); diff != "" {
					t.Errorf("session changed by failed refresh (-want +got):\n%s", diff)
				}
			}
		})
	}
}
