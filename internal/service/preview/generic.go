package preview

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// genericResolver scrapes meta tags from any page. It samples the head of the
// document with a range request first and only downloads the whole page when
// the sample was cut short and carried nothing usable.
type genericResolver struct {
	fetcher   *fetcher
	timeout   time.Duration
	userAgent string
	rangeEnd  int
	logger    *slog.Logger
}

func (r *genericResolver) name() string { return "generic" }

func (r *genericResolver) applies(Match) bool { return true }

// resolve always produces a result; an unreachable or tagless page yields
// metadata carrying only the URL.
func (r *genericResolver) resolve(ctx context.Context, target *url.URL, _ Match) (*resolution, error) {
	fields, base, outcome, err := r.fetchAndExtract(ctx, target, r.rangeEnd, "generic_partial")
	if err != nil {
		r.logger.Debug("Partial fetch failed", "url", target.String(), "error", err)
	}

	if !fields.hasMeta() && outcome.truncated {
		r.logger.Debug("Partial fetch truncated without meta tags, fetching full page",
			"url", target.String(),
		)

		fullFields, fullBase, fullOutcome, err := r.fetchAndExtract(ctx, target, 0, "generic_full")
		if err != nil {
			r.logger.Debug("Full fetch failed", "url", target.String(), "error", err)
		}
		if fullOutcome.succeeded {
			fields, base = fullFields, fullBase
		}
	}

	return &resolution{metadata: fields.metadata(target.String()), base: base}, nil
}

// fetchAndExtract performs one bounded fetch and runs the extraction chains.
// rangeEnd of zero requests the full document.
func (r *genericResolver) fetchAndExtract(ctx context.Context, target *url.URL, rangeEnd int, strategy string) (extracted, *url.URL, fetchOutcome, error) {
	var (
		fields  extracted
		base    = target
		outcome = fetchOutcome{strategy: strategy}
	)

	err := withDeadline(ctx, r.timeout, func(ctx context.Context) error {
		result, err := r.fetcher.get(ctx, fetchRequest{
			url:       target.String(),
			accept:    htmlAccept,
			userAgent: r.userAgent,
			rangeEnd:  rangeEnd,
		})
		if result != nil && rangeEnd > 0 && result.status == http.StatusRequestedRangeNotSatisfiable {
			// The origin refused the range; only a full fetch can tell more.
			outcome.truncated = true
		}
		if err != nil {
			return err
		}
		if !isHTMLContentType(result.contentType) {
			return fmt.Errorf("%w: content type %q", errUpstreamMalformed, result.contentType)
		}

		outcome.truncated = result.status == http.StatusPartialContent

		doc, err := parseDocument(result.body)
		if err != nil {
			return err
		}
		fields = extractFields(doc)
		base = result.finalURL
		outcome.succeeded = true
		return nil
	})

	return fields, base, outcome, err
}
