package preview

import "errors"

// ErrInvalidInput is returned when the raw input is not an absolute http(s) URL.
// It is the only error Resolve surfaces for a well-formed call.
var ErrInvalidInput = errors.New("invalid input")

// Recoverable upstream failures. Strategies return these to the runner, which
// logs them and moves on to the next strategy.
var (
	errUpstreamUnreachable = errors.New("upstream unreachable")
	errUpstreamMalformed   = errors.New("upstream malformed")
)
