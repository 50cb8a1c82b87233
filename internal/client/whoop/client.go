package whoop

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/garrettladley/whoopweb/internal/xhttp"
)

const DefaultBaseURL = "https://api.prod.whoop.com/developer"

// maxBodySize caps what is read from WHOOP; the largest page of records is far below it.
const maxBodySize = 4 << 20

// Client issues authenticated GETs against the WHOOP API and hands back the raw response.
// It does not interpret status codes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: xhttp.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get fetches path with the bearer token. Errors are transport failures only.
func (c *Client) Get(ctx context.Context, accessToken, path string, query url.Values) (*Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	xhttp.SetRequestHeaderBearer(req, accessToken)
	xhttp.SetRequestHeaderAcceptJSON(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) URL(path string) string {
	return c.baseURL + path
}
