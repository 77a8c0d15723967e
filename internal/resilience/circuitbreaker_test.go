package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errUpload = errors.New("upload rejected")

// testBreaker returns a breaker with a manual clock.
func testBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBreaker(cfg)
	clock := time.Unix(1700000000, 0)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func fail(context.Context) error { return errUpload }
func ok(context.Context) error   { return nil }

func tripBreaker(t *testing.T, b *Breaker, threshold int) {
	t.Helper()
	for i := 0; i < threshold; i++ {
		if err := b.Do(context.Background(), fail); !errors.Is(err, errUpload) {
			t.Fatalf("call %d: err = %v, want %v", i, err, errUpload)
		}
	}
	if got := b.State(); got != Open {
		t.Fatalf("state after %d failures = %v, want open", threshold, got)
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _ := testBreaker(BreakerConfig{Threshold: 3})

	for i := 0; i < 2; i++ {
		_ = b.Do(context.Background(), fail)
	}
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}

	// A success resets the failure run.
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("Do: %v", err)
	}
	for i := 0; i < 2; i++ {
		_ = b.Do(context.Background(), fail)
	}
	if got := b.State(); got != Closed {
		t.Errorf("state after reset run = %v, want closed", got)
	}
}

func TestBreakerTripsAndSuppresses(t *testing.T) {
	b, _ := testBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	tripBreaker(t, b, 3)

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn was called while breaker open")
	}
}

func TestBreakerClosesAfterProbes(t *testing.T) {
	b, clock := testBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute, Probes: 2})
	tripBreaker(t, b, 2)

	*clock = clock.Add(time.Minute)
	if got := b.State(); got != Probing {
		t.Fatalf("state after cooldown = %v, want probing", got)
	}

	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), ok); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := b.State(); got != Closed {
		t.Errorf("state after probes = %v, want closed", got)
	}
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	b, clock := testBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute, Probes: 3})
	tripBreaker(t, b, 2)

	*clock = clock.Add(time.Minute)
	if err := b.Do(context.Background(), fail); !errors.Is(err, errUpload) {
		t.Fatalf("probe err = %v, want %v", err, errUpload)
	}
	if got := b.State(); got != Open {
		t.Errorf("state after failed probe = %v, want open", got)
	}

	// The cooldown restarts from the failed probe.
	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
}

func TestBreakerLimitsConcurrentProbes(t *testing.T) {
	b, clock := testBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute, Probes: 1})
	tripBreaker(t, b, 1)
	*clock = clock.Add(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The single probe slot is taken; concurrent calls are rejected.
	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Errorf("concurrent err = %v, want ErrOpen", err)
	}

	close(release)
	wg.Wait()
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := testBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	tripBreaker(t, b, 1)

	b.Reset()
	if got := b.State(); got != Closed {
		t.Fatalf("state after Reset = %v, want closed", got)
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Errorf("Do after Reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{Closed: "closed", Open: "open", Probing: "probing", State(99): "unknown"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
