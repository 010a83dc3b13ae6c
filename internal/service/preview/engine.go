package preview

import (
	"context"
	"fmt"
	"linkcard/internal/domain"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// resolution is a strategy's raw output. base is the URL the page was
// actually served from, used to resolve relative references.
type resolution struct {
	metadata *domain.PreviewMetadata
	base     *url.URL
}

// strategy is one entry in the ordered fallback list
type strategy interface {
	name() string
	applies(match Match) bool
	resolve(ctx context.Context, target *url.URL, match Match) (*resolution, error)
}

// Options tunes outbound behaviour of the engine
type Options struct {
	// HTTPClient is used for every outbound call. Deadlines come from
	// per-call contexts, so the client should not set its own Timeout.
	HTTPClient *http.Client

	// Registry lists structured embed providers; the built-in table when nil
	Registry *EmbedRegistry

	UserAgent        string
	EmbedTimeout     time.Duration
	HeuristicTimeout time.Duration
	GenericTimeout   time.Duration

	// PartialBytes is the last byte offset requested by the generic first phase
	PartialBytes int
	MaxBodyBytes int64
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		UserAgent:        browserUserAgent,
		EmbedTimeout:     10 * time.Second,
		HeuristicTimeout: 20 * time.Second,
		GenericTimeout:   15 * time.Second,
		PartialBytes:     8192,
		MaxBodyBytes:     2 * 1024 * 1024,
	}
}

// Engine resolves URLs into preview metadata. It holds no per-call state and
// is safe for concurrent use; callers bound concurrency themselves.
type Engine struct {
	classifier *Classifier
	strategies []strategy
	normalizer *normalizer
	logger     *slog.Logger
}

// New creates an engine. Zero-valued options fall back to DefaultOptions.
func New(logger *slog.Logger, opts Options) (*Engine, error) {
	defaults := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaults.EmbedTimeout
	}
	if opts.HeuristicTimeout <= 0 {
		opts.HeuristicTimeout = defaults.HeuristicTimeout
	}
	if opts.GenericTimeout <= 0 {
		opts.GenericTimeout = defaults.GenericTimeout
	}
	if opts.PartialBytes <= 0 {
		opts.PartialBytes = defaults.PartialBytes
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = newHTTPClient()
	}
	if opts.Registry == nil {
		registry, err := NewEmbedRegistry()
		if err != nil {
			return nil, err
		}
		opts.Registry = registry
	}

	f := newFetcher(opts.HTTPClient, opts.MaxBodyBytes)

	return &Engine{
		classifier: NewClassifier(opts.Registry),
		strategies: []strategy{
			&embedResolver{fetcher: f, timeout: opts.EmbedTimeout, logger: logger},
			&twitchResolver{fetcher: f, timeout: opts.HeuristicTimeout, userAgent: opts.UserAgent, logger: logger},
			&genericResolver{fetcher: f, timeout: opts.GenericTimeout, userAgent: opts.UserAgent, rangeEnd: opts.PartialBytes, logger: logger},
		},
		normalizer: newNormalizer(),
		logger:     logger,
	}, nil
}

// newHTTPClient mirrors browser redirect behaviour with a connection-level dial timeout
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// Resolve validates rawURL and runs the strategies in priority order; the first
// one to produce a result wins. Only ErrInvalidInput, or the caller's own
// context error, is returned. Upstream failures degrade to a preview holding
// just the URL.
func (e *Engine) Resolve(ctx context.Context, rawURL string) (*domain.PreviewMetadata, error) {
	target, err := Validate(rawURL)
	if err != nil {
		return nil, err
	}

	match := e.classifier.Classify(target)
	logger := e.logger.With("url", target.String(), "platform", match.String())

	for _, s := range e.strategies {
		if !s.applies(match) {
			continue
		}

		res, err := s.resolve(ctx, target, match)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("resolve %s: %w", target.String(), ctxErr)
		}
		if err != nil {
			logger.Debug("Strategy fell through", "strategy", s.name(), "error", err)
			continue
		}
		if res == nil || res.metadata == nil {
			continue
		}

		logger.Debug("Strategy produced preview", "strategy", s.name())
		return e.normalizer.normalize(res.base, res.metadata), nil
	}

	return &domain.PreviewMetadata{URL: target.String()}, nil
}

// Classify exposes the classifier verdict for a raw URL
func (e *Engine) Classify(rawURL string) (Match, error) {
	target, err := Validate(rawURL)
	if err != nil {
		return Match{}, err
	}
	return e.classifier.Classify(target), nil
}
