package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"linkcard/internal/config"
	"linkcard/internal/domain"
	"linkcard/internal/pkg/logger"
	"linkcard/internal/service/preview"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Resolve prints previews for the URLs given as arguments, one JSON object
// per line, in argument order.
func main() {
	concurrency := flag.Int("concurrency", 4, "Number of URLs resolved at once")
	classify := flag.Bool("classify", false, "Print the classifier verdict instead of resolving")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: resolve [flags] URL...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Logs go to stdout with the rest of the services, so keep them quiet
	// unless asked for
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "error"
	}
	log := logger.New(cfg.LogLevel)

	engine, err := preview.New(log, cfg.EngineOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create preview engine: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var failed bool
	if *classify {
		failed = printClassifications(os.Stdout, engine, urls)
	} else {
		failed, err = resolveAll(ctx, os.Stdout, engine, urls, *concurrency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Interrupted: %v\n", err)
			os.Exit(1)
		}
	}
	if failed {
		os.Exit(1)
	}
}

// Output is one line of results
type Output struct {
	Input    string                  `json:"input"`
	Preview  *domain.PreviewMetadata `json:"preview,omitempty"`
	Platform string                  `json:"platform,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

type resolver interface {
	Resolve(ctx context.Context, rawURL string) (*domain.PreviewMetadata, error)
}

// resolveAll resolves urls with bounded concurrency and writes results in
// input order. It reports whether any URL was rejected; the error is set only
// when ctx ended first.
func resolveAll(ctx context.Context, w io.Writer, r resolver, urls []string, concurrency int) (bool, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	outputs := make([]Output, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rawURL := range urls {
		g.Go(func() error {
			outputs[i].Input = rawURL
			metadata, err := r.Resolve(gctx, rawURL)
			switch {
			case errors.Is(err, preview.ErrInvalidInput):
				outputs[i].Error = err.Error()
			case err != nil:
				return err
			default:
				outputs[i].Preview = metadata
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	return writeOutputs(w, outputs), nil
}

func printClassifications(w io.Writer, engine *preview.Engine, urls []string) bool {
	outputs := make([]Output, len(urls))
	for i, rawURL := range urls {
		outputs[i].Input = rawURL
		match, err := engine.Classify(rawURL)
		if err != nil {
			outputs[i].Error = err.Error()
			continue
		}
		outputs[i].Platform = match.String()
	}
	return writeOutputs(w, outputs)
}

func writeOutputs(w io.Writer, outputs []Output) bool {
	failed := false
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, out := range outputs {
		if out.Error != "" {
			failed = true
		}
		enc.Encode(out)
	}
	return failed
}
