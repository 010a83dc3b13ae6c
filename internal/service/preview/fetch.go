package preview

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
)

const (
	// browserUserAgent is sent on scraping paths; several hosts serve
	// stripped-down markup to clients that do not look like a browser.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

	htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	jsonAccept = "application/json"
)

// fetchOutcome records how a single fetch went. It steers the generic
// resolver's second phase and is never exposed to callers.
type fetchOutcome struct {
	strategy  string
	succeeded bool
	truncated bool
}

type fetchRequest struct {
	url       string
	accept    string
	userAgent string
	// rangeEnd adds "Range: bytes=0-<rangeEnd>" when positive
	rangeEnd int
}

type fetchResult struct {
	status      int
	contentType string
	finalURL    *url.URL
	body        []byte
}

// fetcher performs the GET requests shared by all strategies
type fetcher struct {
	client       *http.Client
	maxBodyBytes int64
}

func newFetcher(client *http.Client, maxBodyBytes int64) *fetcher {
	return &fetcher{client: client, maxBodyBytes: maxBodyBytes}
}

// get issues a GET and reads the decoded body. Non-2xx responses return the
// partially populated result together with errUpstreamUnreachable.
func (f *fetcher) get(ctx context.Context, fr fetchRequest) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fr.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if fr.accept != "" {
		req.Header.Set("Accept", fr.accept)
	}
	if fr.userAgent != "" {
		req.Header.Set("User-Agent", fr.userAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	}
	if fr.rangeEnd > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", fr.rangeEnd))
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	result := &fetchResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		finalURL:    req.URL,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		result.finalURL = resp.Request.URL
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("%w: HTTP %d", errUpstreamUnreachable, resp.StatusCode)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return result, err
	}
	result.body = body

	return result, nil
}

// readBody decodes the response according to Content-Encoding. A compressed
// stream cut short by a range request yields whatever decoded cleanly.
func (f *fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip decode: %v", errUpstreamMalformed, err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if len(body) > 0 && (errors.Is(err, io.ErrUnexpectedEOF) || encoding != "") {
			return body, nil
		}
		return nil, fmt.Errorf("%w: read body: %v", errUpstreamUnreachable, err)
	}

	return body, nil
}

// isHTMLContentType accepts HTML-ish types and a missing header
func isHTMLContentType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "application/xml", "text/xml":
		return true
	}
	return false
}
