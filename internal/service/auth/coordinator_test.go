package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
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

var configuredScopes = []string{"offline", "read:recovery", "read:sleep"}

type tokenServer struct {
	*httptest.Server

	calls  atomic.Int32
	mu     sync.Mutex
	forms  []url.Values
	status int
	body   map[string]any
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{
		status: http.StatusOK,
		body: map[string]any{
			"access_token":  "A1",
			"refresh_token": "R1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"scope":         "offline read:recovery",
		},
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ts.mu.Lock()
		ts.forms = append(ts.forms, r.PostForm)
		status, body := ts.status, ts.body
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = go_json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) respond(status int, body map[string]any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
	ts.body = body
}

type fixture struct {
	coord    *Coordinator
	store    *storage.MemoryBackend
	server   *tokenServer
	now      time.Time
	nowMu    sync.Mutex
	sessions *countingStore
}

type countingStore struct {
	storage.SessionStore
	puts atomic.Int32
}

func (s *countingStore) Put(ctx context.Context, sess session.Session) error {
	s.puts.Add(1)
	return s.SessionStore.Put(ctx, sess)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		server: newTokenServer(t),
		store:  storage.NewMemoryBackend(0),
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = f.store.Close() })
	f.sessions = &countingStore{SessionStore: f.store}

	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scopes:       configuredScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.server.URL + "/oauth/oauth2/auth",
			TokenURL:  f.server.URL + "/oauth/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	f.coord = NewCoordinator(cfg, f.store, f.sessions,
		WithHTTPClient(f.server.Client()),
		WithClock(f.clock),
	)
	return f
}

func (f *fixture) clock() time.Time {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	f.now = f.now.Add(d)
}

func TestBeginLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	res, err := f.coord.BeginLogin(context.Background(), []string{"offline", "read:recovery"})
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}

	u, err := url.Parse(res.AuthURL)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	if u.Path != "/oauth/oauth2/auth" {
		t.Errorf("path = %q", u.Path)
	}

	q := u.Query()
	want := map[string]string{
		"client_id":     "client-id",
		"redirect_uri":  "http://localhost:8080/auth/callback",
		"response_type": "code",
		"scope":         "offline read:recovery",
		"state":         res.State,
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
}

func TestBeginLoginDefaultsToConfiguredScopes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	res, err := f.coord.BeginLogin(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}

	pending, err := f.store.GetAndDelete(context.Background(), res.State)
	if err != nil {
		t.Fatalf("GetAndDelete() error = %v", err)
	}
	if diff := cmp.Diff(configuredScopes, pending.RequestedScopes); diff != "" {
		t.Errorf("RequestedScopes mismatch (-want +got):\n%s", diff)
	}
}

func TestBeginLoginStateUnique(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seen := make(map[string]bool)
	for range 20 {
		res, err := f.coord.BeginLogin(context.Background(), nil)
		if err != nil {
			t.Fatalf("BeginLogin() error = %v", err)
		}
		if seen[res.State] {
			t.Fatalf("state %q issued twice", res.State)
		}
		seen[res.State] = true
	}
}

func TestBeginLoginRejectsScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scopes  []string
		wantErr error
	}{
		{name: "profile", scopes: []string{"offline", "read:profile"}, wantErr: ErrProfileUnsupported},
		{name: "not configured", scopes: []string{"read:workout"}, wantErr: ErrUnsupportedScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if _, err := f.coord.BeginLogin(context.Background(), tt.scopes); !errors.Is(err, tt.wantErr) {
				t.Errorf("BeginLogin() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.coord.BeginLogin(ctx, []string{"offline", "read:recovery"})
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}

	sess, err := f.coord.HandleCallback(ctx, CallbackRequest{State: res.State, Code: "c1"})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	want := session.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		IssuedAt:     f.now,
		ExpiresAt:    f.now.Add(time.Hour),
		Scopes:       []string{"offline", "read:recovery"},
	}
	if diff := cmp.Diff(&want, sess.Token); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}

	stored, err := f.store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Token.AccessToken != "A1" {
		t.Errorf("stored AccessToken = %q, want A1", stored.Token.AccessToken)
	}

	if n := f.server.calls.Load(); n != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", n)
	}
	form := f.server.forms[0]
	for k, v := range map[string]string{
		"grant_type":    "authorization_code",
		"code":          "c1",
		"client_id":     "client-id",
		"client_secret": "client-secret",
		"redirect_uri":  "http://localhost:8080/auth/callback",
	} {
		if got := form.Get(k); got != v {
			t.Errorf("form %s = %q, want %q", k, got, v)
		}
	}
}

func TestHandleCallbackScopeFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.server.respond(http.StatusOK, map[string]any{
		"access_token": "A1",
		"token_type":   "bearer",
		"expires_in":   3600,
	})
	ctx := context.Background()

	res, err := f.coord.BeginLogin(ctx, []string{"read:sleep", "offline"})
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}

	sess, err := f.coord.HandleCallback(ctx, CallbackRequest{State: res.State, Code: "c1"})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if diff := cmp.Diff([]string{"offline", "read:sleep"}, sess.Token.Scopes); diff != "" {
		t.Errorf("Scopes mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCallbackInvalidState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state func(t *testing.T, f *fixture) string
	}{
		{
			name:  "empty",
			state: func(*testing.T, *fixture) string { return "" },
		},
		{
			name:  "unknown",
			state: func(*testing.T, *fixture) string { return "forged" },
		},
		{
			name: "expired",
			state: func(t *testing.T, f *fixture) string {
				res, err := f.coord.BeginLogin(context.Background(), nil)
				if err != nil {
					t.Fatalf("BeginLogin() error = %v", err)
				}
				f.advance(11 * time.Minute)
				return res.State
			},
		},
		{
			name: "replayed",
			state: func(t *testing.T, f *fixture) string {
				res, err := f.coord.BeginLogin(context.Background(), nil)
				if err != nil {
					t.Fatalf("BeginLogin() error = %v", err)
				}
				if _, err := f.coord.HandleCallback(context.Background(), CallbackRequest{State: res.State, Code: "c1"}); err != nil {
					t.Fatalf("first HandleCallback() error = %v", err)
				}
				f.server.calls.Store(0)
				return res.State
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			state := tt.state(t, f)
			puts := f.sessions.puts.Load()

			_, err := f.coord.HandleCallback(context.Background(), CallbackRequest{State: state, Code: "c1"})
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("HandleCallback() error = %v, want InvalidState", err)
			}
			if n := f.server.calls.Load(); n != 0 {
				t.Errorf("token endpoint calls = %d, want 0", n)
			}
			if f.sessions.puts.Load() != puts {
				t.Error("session stored on failed callback")
			}
		})
	}
}

func TestHandleCallbackFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(*tokenServer)
		req       CallbackRequest
		wantErr   error
		wantCalls int32
		wantMsg   string
	}{
		{
			name:    "consent denied",
			req:     CallbackRequest{ErrorCode: "access_denied", ErrorDesc: "user said no"},
			wantErr: ErrAccessDenied,
			wantMsg: "user said no",
		},
		{
			name:    "missing code",
			req:     CallbackRequest{},
			wantErr: ErrExchangeRejected,
			wantMsg: "missing authorization code",
		},
		{
			name: "provider rejects code",
			setup: func(ts *tokenServer) {
				ts.respond(http.StatusBadRequest, map[string]any{
					"error":             "invalid_grant",
					"error_description": "code expired",
				})
			},
			req:       CallbackRequest{Code: "stale"},
			wantErr:   ErrExchangeRejected,
			wantCalls: 1,
			wantMsg:   "code expired",
		},
		{
			name: "missing expires_in",
			setup: func(ts *tokenServer) {
				ts.respond(http.StatusOK, map[string]any{"access_token": "A1", "token_type": "bearer"})
			},
			req:       CallbackRequest{Code: "c1"},
			wantErr:   ErrExchangeRejected,
			wantCalls: 1,
			wantMsg:   "expires_in",
		},
		{
			name: "no supported scopes",
			setup: func(ts *tokenServer) {
				ts.respond(http.StatusOK, map[string]any{
					"access_token": "A1",
					"token_type":   "bearer",
					"expires_in":   3600,
					"scope":        "read:workout",
				})
			},
			req:       CallbackRequest{Code: "c1"},
			wantErr:   ErrExchangeRejected,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f.server)
			}

			res, err := f.coord.BeginLogin(context.Background(), nil)
			if err != nil {
				t.Fatalf("BeginLogin() error = %v", err)
			}

			req := tt.req
			req.State = res.State
			_, err = f.coord.HandleCallback(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleCallback() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
			if n := f.server.calls.Load(); n != tt.wantCalls {
				t.Errorf("token endpoint calls = %d, want %d", n, tt.wantCalls)
			}
			if n := f.sessions.puts.Load(); n != 0 {
				t.Errorf("session puts = %d, want 0", n)
			}

			if _, err := f.coord.HandleCallback(context.Background(), req); !errors.Is(err, ErrInvalidState) {
				t.Errorf("state reusable after failure: %v", err)
			}
		})
	}
}

func TestHandleCallbackTransportFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.coord.BeginLogin(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
	f.server.Close()

	_, err = f.coord.HandleCallback(context.Background(), CallbackRequest{State: res.State, Code: "c1"})
	if !errors.Is(err, ErrExchangeRejected) {
		t.Fatalf("HandleCallback() error = %v, want ExchangeRejected", err)
	}

	var authErr *AuthorizationError
	if !errors.As(err, &authErr) || authErr.Err == nil {
		t.Errorf("transport cause not wrapped: %#v", err)
	}
}

func TestHandleCallbackRotatesSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	login := func(prev string) *session.Session {
		t.Helper()
		res, err := f.coord.BeginLogin(ctx, nil)
		if err != nil {
			t.Fatalf("BeginLogin() error = %v", err)
		}
		sess, err := f.coord.HandleCallback(ctx, CallbackRequest{State: res.State, Code: "c1", PreviousSessionID: prev})
		if err != nil {
			t.Fatalf("HandleCallback() error = %v", err)
		}
		return sess
	}

	first := login("")
	second := login(first.ID)

	if first.ID == second.ID {
		t.Fatal("session id reused across logins")
	}
	if _, err := f.store.Get(ctx, first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("previous session still present: %v", err)
	}
	if _, err := f.store.Get(ctx, second.ID); err != nil {
		t.Errorf("new session missing: %v", err)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.coord.BeginLogin(ctx, nil)
	if err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
	sess, err := f.coord.HandleCallback(ctx, CallbackRequest{State: res.State, Code: "c1"})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if err := f.coord.Logout(ctx, sess.ID); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := f.store.Get(ctx, sess.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after Logout() error = %v, want ErrNotFound", err)
	}
	if err := f.coord.Logout(ctx, sess.ID); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}
