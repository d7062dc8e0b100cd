package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(Config{})
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Cooldown: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failing); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: err = %v, want upstream error", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Do(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("open breaker err = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3})
	ctx := context.Background()

	b.Do(ctx, failing)
	b.Do(ctx, failing)
	b.Do(ctx, succeeding)
	b.Do(ctx, failing)
	b.Do(ctx, failing)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after interleaved success", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, ProbeSuccesses: 2})
	ctx := context.Background()

	b.Do(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}

	if err := b.Do(ctx, succeeding); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if err := b.Do(ctx, succeeding); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after probes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	ctx := context.Background()

	b.Do(ctx, failing)
	time.Sleep(20 * time.Millisecond)
	b.Do(ctx, failing)

	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreaker_ContextErrorsDoNotTrip(t *testing.T) {
	b := New(Config{FailureThreshold: 1})

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	b.Do(canceled, func(ctx context.Context) error { return ctx.Err() })
	b.Do(context.Background(), func(context.Context) error { return context.DeadlineExceeded })

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed; caller cancellation tripped the breaker", b.State())
	}
}
