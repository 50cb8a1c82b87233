package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garrettladley/whoopweb/internal/xcontext"
	"github.com/garrettladley/whoopweb/internal/xslog"
	"github.com/google/go-cmp/cmp"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"), mark("third"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"first", "second", "third", "handler"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionCookie(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cookie *http.Cookie
		wantID string
		wantOK bool
	}{
		{
			name:   "no cookie",
			wantOK: false,
		},
		{
			name:   "empty cookie",
			cookie: &http.Cookie{Name: "sid", Value: ""},
			wantOK: false,
		},
		{
			name:   "other cookie",
			cookie: &http.Cookie{Name: "other", Value: "abc"},
			wantOK: false,
		},
		{
			name:   "session cookie",
			cookie: &http.Cookie{Name: "sid", Value: "abc"},
			wantID: "abc",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				gotID string
				gotOK bool
			)
			h := SessionCookie("sid")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				gotID, gotOK = xcontext.GetSessionID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if gotID != tt.wantID || gotOK != tt.wantOK {
				t.Errorf("session id = (%q, %v), want (%q, %v)", gotID, gotOK, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := xslog.NewLogger(&buf, xslog.LevelInfo)

	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		xslog.FromContext(r.Context()).InfoContext(r.Context(), "inside")
	}),
		RequestID(WithRequestIDFunc(func(*http.Request) string { return "req-1" })),
		Logger(base),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Request-ID"); got != "req-1" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-1")
	}
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Errorf("log output %q missing request id", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(xslog.WithLogger(req.Context(), slog.New(slog.DiscardHandler)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got != "strict-origin" {
		t.Errorf("Referrer-Policy = %q, want strict-origin", got)
	}
}
