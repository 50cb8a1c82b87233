package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/garrettladley/whoopweb/internal/xhttp"
)

const (
	defaultGzipMinSize = 1024
	gzipEncoding       = "gzip"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

// compressibleTypes are the bodies this service produces; redirects and empty bodies pass through.
var compressibleTypes = []string{"application/json", "text/html"}

type GzipOption func(*gzipConfig)

type gzipConfig struct {
	minSize int
}

// WithGzipMinSize sets how many bytes must be buffered before compression starts.
func WithGzipMinSize(n int) GzipOption {
	return func(c *gzipConfig) { c.minSize = n }
}

// gzipResponseWriter buffers until minSize bytes arrive, then commits to gzip or plain output.
type gzipResponseWriter struct {
	http.ResponseWriter
	minSize int
	writer  *gzip.Writer
	buf     bytes.Buffer
	status  int
	decided bool
	gzipped bool
}

func (g *gzipResponseWriter) WriteHeader(code int) {
	if g.status == 0 {
		g.status = code
	}
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	if g.status == 0 {
		g.status = http.StatusOK
	}

	if g.decided {
		if g.gzipped {
			return g.writer.Write(b)
		}
		return g.ResponseWriter.Write(b)
	}

	g.buf.Write(b)
	if g.buf.Len() < g.minSize {
		return len(b), nil
	}

	g.decided = true
	if err := g.commit(g.compressible()); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (g *gzipResponseWriter) compressible() bool {
	h := g.ResponseWriter.Header()
	if h.Get(xhttp.ContentEncoding) != "" {
		return false
	}
	ct := h.Get(xhttp.ContentType)
	for _, t := range compressibleTypes {
		if strings.HasPrefix(ct, t) {
			return true
		}
	}
	return false
}

// commit writes the status and the buffered bytes, compressed or not.
func (g *gzipResponseWriter) commit(compress bool) error {
	if compress {
		g.gzipped = true
		g.ResponseWriter.Header().Set(xhttp.ContentEncoding, gzipEncoding)
		g.ResponseWriter.Header().Del(xhttp.ContentLength)
		g.ResponseWriter.WriteHeader(g.status)

		g.writer = gzipWriterPool.Get().(*gzip.Writer)
		g.writer.Reset(g.ResponseWriter)
		if _, err := g.writer.Write(g.buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write gzip: %w", err)
		}
		return nil
	}

	g.ResponseWriter.WriteHeader(g.status)
	if _, err := g.ResponseWriter.Write(g.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (g *gzipResponseWriter) Close() error {
	if !g.decided {
		g.decided = true
		if g.status == 0 {
			g.status = http.StatusOK
		}
		return g.commit(false)
	}

	if g.gzipped && g.writer != nil {
		err := g.writer.Close()
		gzipWriterPool.Put(g.writer)
		g.writer = nil
		if err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// Gzip compresses JSON and HTML responses of at least the configured size for clients that accept it.
func Gzip(opts ...GzipOption) func(http.Handler) http.Handler {
	cfg := gzipConfig{minSize: defaultGzipMinSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !strings.Contains(r.Header.Get(xhttp.AcceptEncoding), gzipEncoding) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add(xhttp.Vary, xhttp.AcceptEncoding)

			gw := &gzipResponseWriter{ResponseWriter: w, minSize: cfg.minSize}
			defer gw.Close() //nolint:errcheck // the client is gone if this fails

			next.ServeHTTP(gw, r)
		})
	}
}
