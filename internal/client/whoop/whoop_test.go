package whoop

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestClientGet(t *testing.T) {
	t.Parallel()

	reqs := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r.Clone(context.Background())
		w.Header().Set("X-Ratelimit-Remaining", "42")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"message":"short and stout"}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL + "/developer/")
	resp, err := c.Get(context.Background(), "tok", "/v2/recovery", url.Values{"limit": {"5"}})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if resp.StatusCode != http.StatusTeapot || resp.OK() {
		t.Errorf("StatusCode = %d, OK() = %v", resp.StatusCode, resp.OK())
	}
	if resp.Header.Get("X-Ratelimit-Remaining") != "42" {
		t.Error("response headers not returned")
	}
	if msg := ErrorMessage(resp.StatusCode, resp.Body); msg != "short and stout" {
		t.Errorf("ErrorMessage() = %q", msg)
	}

	got := <-reqs
	if got.URL.Path != "/developer/v2/recovery" || got.URL.Query().Get("limit") != "5" {
		t.Errorf("request URL = %s", got.URL)
	}
	if h := got.Header.Get("Authorization"); h != "Bearer tok" {
		t.Errorf("Authorization = %q", h)
	}
	if h := got.Header.Get("Accept"); h != "application/json" {
		t.Errorf("Accept = %q", h)
	}
	if h := got.Header.Get("User-Agent"); h == "" {
		t.Error("User-Agent not set")
	}
}

func TestClientGetTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	if _, err := New(srv.URL).Get(context.Background(), "tok", "/v2/cycle", nil); err == nil {
		t.Error("Get() against closed server should fail")
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "message", body: `{"message":"nope"}`, want: "nope"},
		{name: "error", body: `{"error":"bad"}`, want: "bad"},
		{name: "plain", body: "upstream exploded", want: "upstream exploded"},
		{name: "empty", body: "", want: "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorMessage(http.StatusBadGateway, []byte(tt.body)); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseListParams(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	next := "abc"

	tests := []struct {
		name    string
		query   url.Values
		want    *ListParams
		wantErr bool
	}{
		{name: "none", query: url.Values{}},
		{
			name:  "all",
			query: url.Values{"limit": {"10"}, "start": {"2025-01-01T00:00:00Z"}, "end": {"2025-02-01T00:00:00Z"}, "nextToken": {"abc"}},
			want:  &ListParams{Limit: 10, Start: &start, End: &end, NextToken: &next},
		},
		{name: "limit too large", query: url.Values{"limit": {"26"}}, wantErr: true},
		{name: "limit not a number", query: url.Values{"limit": {"ten"}}, wantErr: true},
		{name: "bad start", query: url.Values{"start": {"yesterday"}}, wantErr: true},
		{name: "end before start", query: url.Values{"start": {"2025-02-01T00:00:00Z"}, "end": {"2025-01-01T00:00:00Z"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseListParams(tt.query)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidListParams) {
					t.Errorf("ParseListParams() error = %v, want ErrInvalidListParams", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseListParams() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseListParams() mismatch (-want +got):\n%s", diff)
			}
			if got != nil {
				if diff := cmp.Diff(tt.query, got.Values()); diff != "" {
					t.Errorf("Values() mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestLocation(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC)
	if got := ts.In(Location("-05:00")).Format(time.DateOnly); got != "2025-03-01" {
		t.Errorf("local date = %s, want 2025-03-01", got)
	}
	if Location("garbage") != time.UTC {
		t.Error("malformed offset should map to UTC")
	}
}
