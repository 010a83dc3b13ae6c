package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// serveRanged answers "Range: bytes=0-N" with 206 when the body is longer
// than the requested span, like most origins that honour ranges.
func serveRanged(w http.ResponseWriter, r *http.Request, body string) {
	if rng := r.Header.Get("Range"); strings.HasPrefix(rng, "bytes=0-") {
		end, err := strconv.Atoi(strings.TrimPrefix(rng, "bytes=0-"))
		if err == nil && end+1 < len(body) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", end, len(body)))
			w.WriteHeader(http.StatusPartialContent)
			io.WriteString(w, body[:end+1])
			return
		}
	}
	io.WriteString(w, body)
}

// requestLog records the Range header of every request a handler sees
type requestLog struct {
	mu     sync.Mutex
	ranges []string
}

func (l *requestLog) record(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ranges = append(l.ranges, r.Header.Get("Range"))
}

func (l *requestLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ranges...)
}

func htmlHandler(log *requestLog, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.record(r)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		serveRanged(w, r, body)
	}
}

// padding pushes anything after it beyond the first-phase range
var padding = "<script>" + strings.Repeat("var x = 1;\n", 1200) + "</script>"

func TestResolveGenericExample(t *testing.T) {
	log := &requestLog{}
	engine, _ := newTestEngine(t, htmlHandler(log, `<html><head>
<meta property="og:title" content="Example">
<meta property="og:image" content="/img.png">
</head><body>hello</body></html>`), nil)

	m, err := engine.Resolve(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if m.URL != "https://example.com/a" {
		t.Errorf("URL = %q", m.URL)
	}
	if got := deref(m.Title); got != "Example" {
		t.Errorf("Title = %q, want Example", got)
	}
	if got := deref(m.Image); got != "https://example.com/img.png" {
		t.Errorf("Image = %q, want https://example.com/img.png", got)
	}
	if m.Description != nil || m.Icon != nil || m.SiteName != nil || m.ImageWidth != nil || m.ImageHeight != nil {
		t.Errorf("unexpected optional fields: %+v", m)
	}

	ranges := log.snapshot()
	if len(ranges) != 1 || ranges[0] != "bytes=0-8192" {
		t.Errorf("requests = %q, want a single ranged fetch", ranges)
	}
}

func TestResolveGenericPhases(t *testing.T) {
	tests := []struct {
		name         string
		handler      func(log *requestLog) http.HandlerFunc
		wantRequests int
		wantTitle    string
	}{
		{
			name: "meta in head needs one fetch",
			handler: func(log *requestLog) http.HandlerFunc {
				return htmlHandler(log, `<head><meta property="og:title" content="Early"></head>`+padding)
			},
			wantRequests: 1,
			wantTitle:    "Early",
		},
		{
			name: "truncated without meta fetches full page",
			handler: func(log *requestLog) http.HandlerFunc {
				return htmlHandler(log, `<head>`+padding+`<meta property="og:title" content="Late"></head>`)
			},
			wantRequests: 2,
			wantTitle:    "Late",
		},
		{
			name: "origin ignoring range is not refetched",
			handler: func(log *requestLog) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					log.record(r)
					w.Header().Set("Content-Type", "text/html")
					io.WriteString(w, `<head>`+padding+`</head>`)
				}
			},
			wantRequests: 1,
		},
		{
			name: "range not satisfiable fetches full page",
			handler: func(log *requestLog) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					log.record(r)
					if r.Header.Get("Range") != "" {
						w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
						return
					}
					w.Header().Set("Content-Type", "text/html")
					io.WriteString(w, `<meta name="twitter:title" content="Whole">`)
				}
			},
			wantRequests: 2,
			wantTitle:    "Whole",
		},
		{
			name: "truncated and empty twice",
			handler: func(log *requestLog) http.HandlerFunc {
				return htmlHandler(log, `<head>`+padding+`</head><body>nothing here</body>`)
			},
			wantRequests: 2,
		},
		{
			name: "non-HTML content",
			handler: func(log *requestLog) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					log.record(r)
					w.Header().Set("Content-Type", "image/png")
					w.WriteHeader(http.StatusPartialContent)
					io.WriteString(w, "\x89PNG")
				}
			},
			wantRequests: 1,
		},
		{
			name: "server error",
			handler: func(log *requestLog) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					log.record(r)
					http.Error(w, "boom", http.StatusInternalServerError)
				}
			},
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &requestLog{}
			engine, _ := newTestEngine(t, tt.handler(log), nil)

			m, err := engine.Resolve(context.Background(), "https://example.com/page")
			if err != nil {
				t.Fatalf("Resolve() error = %v, want nil", err)
			}
			if m.URL != "https://example.com/page" {
				t.Errorf("URL = %q", m.URL)
			}
			if got := deref(m.Title); got != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got, tt.wantTitle)
			}

			ranges := log.snapshot()
			if len(ranges) != tt.wantRequests {
				t.Fatalf("got %d requests, want %d", len(ranges), tt.wantRequests)
			}
			if ranges[0] != "bytes=0-8192" {
				t.Errorf("first request Range = %q, want bytes=0-8192", ranges[0])
			}
			if len(ranges) > 1 && ranges[1] != "" {
				t.Errorf("second request Range = %q, want none", ranges[1])
			}
		})
	}
}

func TestResolveNormalizesFields(t *testing.T) {
	page := `<html><head>
<meta property="og:title" content="  Tom &amp; Jerry   &lt;Live&gt;  ">
<meta property="og:description" content="line one
	line two">
<meta property="og:image" content="http://cdn.example.com/big.jpg">
<meta property="og:image:width" content="1200">
<meta property="og:image:height" content="630">
<meta property="og:site_name" content="Example Site">
<link rel="stylesheet" href="/style.css">
<link rel="shortcut icon" href="//static.example.com/favicon.ico">
<link rel="apple-touch-icon" href="/touch.png">
</head></html>`

	engine, _ := newTestEngine(t, htmlHandler(&requestLog{}, page), nil)

	m, err := engine.Resolve(context.Background(), "https://example.com/articles/1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := deref(m.Title); got != "Tom & Jerry <Live>" {
		t.Errorf("Title = %q", got)
	}
	if got := deref(m.Description); got != "line one line two" {
		t.Errorf("Description = %q", got)
	}
	if got := deref(m.Image); got != "https://cdn.example.com/big.jpg" {
		t.Errorf("Image = %q", got)
	}
	if m.ImageWidth == nil || *m.ImageWidth != 1200 || m.ImageHeight == nil || *m.ImageHeight != 630 {
		t.Errorf("dimensions = %v x %v", m.ImageWidth, m.ImageHeight)
	}
	if got := deref(m.Icon); got != "https://static.example.com/favicon.ico" {
		t.Errorf("Icon = %q", got)
	}
	if got := deref(m.SiteName); got != "Example Site" {
		t.Errorf("SiteName = %q", got)
	}
}

func TestResolveDropsUnusableValues(t *testing.T) {
	page := `<head>
<meta property="og:title" content="<br/>">
<meta property="og:image" content="javascript:alert(1)">
<meta property="og:image:width" content="800">
<link rel="icon" href="data:image/png;base64,AAAA">
</head>`

	engine, _ := newTestEngine(t, htmlHandler(&requestLog{}, page), nil)

	m, err := engine.Resolve(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if m.Title != nil {
		t.Errorf("Title = %q, want none", *m.Title)
	}
	if m.Image != nil {
		t.Errorf("Image = %q, want none", *m.Image)
	}
	if m.ImageWidth != nil || m.ImageHeight != nil {
		t.Error("dimensions present without an image")
	}
	if m.Icon != nil {
		t.Errorf("Icon = %q, want none", *m.Icon)
	}
}

func TestResolveUsesFinalURLAsBase(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/posts/new/", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<meta property="og:image" content="cover.jpg">`)
	})
	engine, _ := newTestEngine(t, handler, nil)

	m, err := engine.Resolve(context.Background(), "https://example.com/old")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if m.URL != "https://example.com/old" {
		t.Errorf("URL = %q, want the requested URL", m.URL)
	}
	if got := deref(m.Image); got != "https://example.com/posts/new/cover.jpg" {
		t.Errorf("Image = %q, want resolved against the redirect target", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	page := `<meta property="og:title" content="Stable"><meta property="og:image" content="/a.png">`
	engine, _ := newTestEngine(t, htmlHandler(&requestLog{}, page), nil)

	first, err := engine.Resolve(context.Background(), "https://example.com/x")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := engine.Resolve(context.Background(), "https://example.com/x")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if first.URL != second.URL || deref(first.Title) != deref(second.Title) || deref(first.Image) != deref(second.Image) {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

func TestResolveInvalidInputMakesNoRequest(t *testing.T) {
	engine, transport := newTestEngine(t, http.NotFoundHandler(), nil)

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "/relative/path", "https://"} {
		m, err := engine.Resolve(context.Background(), raw)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Resolve(%q) error = %v, want ErrInvalidInput", raw, err)
		}
		if m != nil {
			t.Errorf("Resolve(%q) returned metadata %+v", raw, m)
		}
	}

	if hits := transport.hits.Load(); hits != 0 {
		t.Errorf("transport saw %d requests, want 0", hits)
	}
}

func TestResolveCallerCancellation(t *testing.T) {
	engine, _ := newTestEngine(t, htmlHandler(&requestLog{}, `<meta property="og:title" content="x">`), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := engine.Resolve(ctx, "https://example.com/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Error("cancellation must not look like invalid input")
	}
	if m != nil {
		t.Errorf("Resolve() returned metadata %+v", m)
	}
}
