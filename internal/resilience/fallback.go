package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or
	// has an open circuit breaker.
	ErrAllFailed = errors.New("resilience: all providers failed")

	// ErrUnsupported marks a request an entry cannot serve, such as audio
	// sent to a text-only model. The entry is skipped without counting
	// against its breaker.
	ErrUnsupported = errors.New("resilience: request not supported by provider")
)

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each entry's breaker.
	CircuitBreaker CircuitBreakerConfig

	// OnFailover, when set, is called each time an entry fails and the next
	// one is tried. Used to count provider errors.
	OnFailover func(ctx context.Context, name string, err error)
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. When the primary fails, its breaker is open or it
// cannot serve the request, the next entry is tried in registration order.
//
// Entries are added during construction; Execute may then be called
// concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in failover order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// OpenCircuits returns the names of entries whose breaker refuses calls.
func (fg *FallbackGroup[T]) OpenCircuits() []string {
	var open []string
	for _, e := range fg.entries {
		if e.breaker.State() == StateOpen {
			open = append(open, e.name)
		}
	}
	return open
}

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds. Failover stops as soon as ctx is done; the context error is then
// returned unwrapped. Otherwise the error wraps [ErrAllFailed] and the last
// entry's error.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	r, _, err := executeNamed(ctx, fg, fn)
	return r, err
}

// Report charges a failure observed after a successful call, such as a
// stream that broke midway, to the named entry's breaker.
func (fg *FallbackGroup[T]) Report(name string, err error) {
	for i := range fg.entries {
		if fg.entries[i].name == name {
			fg.entries[i].breaker.Report(err)
			return
		}
	}
}

// executeNamed is [ExecuteWithResult] that also returns the name of the
// entry that served the call.
func executeNamed[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, string, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, entry.name, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return zero, "", err
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping provider (circuit open)", "provider", entry.name)
		case errors.Is(err, ErrUnsupported):
			slog.Debug("resilience: skipping provider (unsupported request)", "provider", entry.name)
		default:
			slog.Warn("resilience: provider failed, trying next", "provider", entry.name, "err", err)
			if fg.cfg.OnFailover != nil {
				fg.cfg.OnFailover(ctx, entry.name, err)
			}
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
