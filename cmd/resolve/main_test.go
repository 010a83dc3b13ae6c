package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"linkcard/internal/domain"
	"linkcard/internal/service/preview"
	"strings"
	"testing"
)

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, rawURL string) (*domain.PreviewMetadata, error) {
	if _, err := preview.Validate(rawURL); err != nil {
		return nil, err
	}
	title := "T " + rawURL
	return &domain.PreviewMetadata{URL: rawURL, Title: &title}, nil
}

func TestResolveAll(t *testing.T) {
	var buf bytes.Buffer
	urls := []string{"https://example.com/1", "nope", "https://example.com/3?a=1&b=2"}

	failed, err := resolveAll(context.Background(), &buf, stubResolver{}, urls, 2)
	if err != nil {
		t.Fatalf("resolveAll() error = %v", err)
	}
	if !failed {
		t.Error("invalid input should mark the run failed")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	for i, line := range lines {
		var out Output
		if err := json.Unmarshal([]byte(line), &out); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if out.Input != urls[i] {
			t.Errorf("line %d input = %q, want %q", i, out.Input, urls[i])
		}
		if wantErr := i == 1; (out.Error != "") != wantErr {
			t.Errorf("line %d error = %q", i, out.Error)
		}
	}
	if !strings.Contains(buf.String(), "a=1&b=2") {
		t.Error("query separators should not be HTML escaped")
	}
}

type cancelledResolver struct{}

func (cancelledResolver) Resolve(ctx context.Context, rawURL string) (*domain.PreviewMetadata, error) {
	return nil, fmt.Errorf("resolve: %w", context.Canceled)
}

func TestResolveAllInterrupted(t *testing.T) {
	var buf bytes.Buffer
	_, err := resolveAll(context.Background(), &buf, cancelledResolver{}, []string{"https://example.com/"}, 1)
	if err == nil {
		t.Fatal("expected an error when resolution is cancelled")
	}
	if buf.Len() != 0 {
		t.Errorf("partial output written: %s", buf.String())
	}
}
