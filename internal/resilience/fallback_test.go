package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := newGroup()

	var called []string
	err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(called, []string{"primary"}) {
		t.Fatalf("called = %q, want [primary]", called)
	}
	if got := fg.Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names = %q", got)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	var failovers []string
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		OnFailover: func(_ context.Context, name string, err error) {
			failovers = append(failovers, name)
		},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		if v == "primary" {
			return errTest
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
	if !slices.Equal(failovers, []string{"primary"}) {
		t.Errorf("failovers = %q, want [primary]", failovers)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := newGroup()
	err := fg.Execute(context.Background(), func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the last error wrapped", err)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, Cooldown: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")

	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var called []string
	err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(called, []string{"secondary"}) {
		t.Fatalf("called = %q, want [secondary] (primary circuit should be open)", called)
	}
}

func TestFallbackGroup_UnsupportedSkipsWithoutFailover(t *testing.T) {
	failovers := 0
	fg := NewFallbackGroup("text-only", "text-only", FallbackConfig{
		OnFailover: func(context.Context, string, error) { failovers++ },
	})
	fg.AddFallback("multimodal", "multimodal")

	got, err := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
		if v == "text-only" {
			return "", ErrUnsupported
		}
		return v, nil
	})
	if err != nil || got != "multimodal" {
		t.Fatalf("got %q, %v", got, err)
	}
	if failovers != 0 {
		t.Errorf("failovers = %d, want 0 for an unsupported request", failovers)
	}
}

func TestFallbackGroup_CancelledContextStopsFailover(t *testing.T) {
	fg := newGroup()
	ctx, cancel := context.WithCancel(context.Background())

	var called []string
	err := fg.Execute(ctx, func(v string) error {
		called = append(called, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want a bare context.Canceled", err)
	}
	if !slices.Equal(called, []string{"primary"}) {
		t.Errorf("called = %q, want only the primary", called)
	}

	// The breaker trips after three failures; three cancellations must not.
	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				return context.Canceled
			}
			return nil
		})
	}
	if st := fg.entries[0].breaker.State(); st != StateClosed {
		t.Errorf("primary breaker = %v, want closed after cancellations", st)
	}
	if open := fg.OpenCircuits(); len(open) != 0 {
		t.Errorf("OpenCircuits = %q, want none", open)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		if v == 10 {
			return "", errTest
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}
