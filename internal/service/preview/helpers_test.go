package preview

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// createTestLogger creates a logger for testing
func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors during tests
	}))
}

// rewriteTransport sends every request to a local test server while keeping
// the original Host, so handlers can tell twitch.tv from example.com.
type rewriteTransport struct {
	target *url.URL
	hits   atomic.Int32
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.hits.Add(1)

	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = req.URL.Host

	resp, err := http.DefaultTransport.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// newTestEngine starts handler behind a rewriting transport and returns an
// engine whose every outbound call lands on it.
func newTestEngine(t *testing.T, handler http.Handler, tweak func(*Options)) (*Engine, *rewriteTransport) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	transport := &rewriteTransport{target: target}

	opts := DefaultOptions()
	opts.HTTPClient = &http.Client{Transport: transport}
	opts.EmbedTimeout = 2 * time.Second
	opts.HeuristicTimeout = 2 * time.Second
	opts.GenericTimeout = 2 * time.Second
	if tweak != nil {
		tweak(&opts)
	}

	engine, err := New(createTestLogger(), opts)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine, transport
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
