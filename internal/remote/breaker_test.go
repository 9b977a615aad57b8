package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func newTestBreaker(threshold int, openFor time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(threshold, openFor)
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	b.Record(errors.New("connection refused"), 0)
	if !b.TryAcquire() {
		t.Fatalf("expected breaker to stay closed below threshold")
	}
	b.Record(nil, http.StatusBadGateway)
	if b.TryAcquire() {
		t.Fatalf("expected breaker to be open after %d failures", 2)
	}
	if b.State() != "open" {
		t.Fatalf("expected open, got %s", b.State())
	}
}

func TestBreakerRejectionsAreHealthy(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusOK, http.StatusTooManyRequests} {
		b.Record(nil, http.StatusInternalServerError)
		b.Record(nil, status)
	}
	if b.State() != "closed" {
		t.Fatalf("expected 4xx and 2xx answers to reset the run, got %s", b.State())
	}
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	for i := 0; i < 5; i++ {
		if !b.TryAcquire() {
			t.Fatalf("call %d: expected breaker closed", i)
		}
		b.Record(fmt.Errorf("do: %w", context.Canceled), 0)
	}
	if b.State() != "closed" {
		t.Fatalf("expected cancellations not to trip the breaker, got %s", b.State())
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)

	b.Record(errors.New("reset"), 0)
	*now = now.Add(2 * time.Second)
	if b.State() != "half_open" {
		t.Fatalf("expected half_open after cool-down, got %s", b.State())
	}

	if !b.TryAcquire() {
		t.Fatalf("expected a trial call after cool-down")
	}
	if b.TryAcquire() {
		t.Fatalf("expected only one trial call in flight")
	}

	b.Record(nil, http.StatusOK)
	if b.State() != "closed" || !b.TryAcquire() {
		t.Fatalf("expected breaker closed after a successful trial")
	}
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)

	b.Record(errors.New("reset"), 0)
	*now = now.Add(2 * time.Second)
	_ = b.TryAcquire()
	b.Record(nil, http.StatusServiceUnavailable)

	if b.TryAcquire() {
		t.Fatalf("expected breaker reopened after a failed trial")
	}
}

func TestBreakerCancelledTrialFreesSlot(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)

	b.Record(errors.New("reset"), 0)
	*now = now.Add(2 * time.Second)
	_ = b.TryAcquire()
	b.Record(context.Canceled, 0)

	if !b.TryAcquire() {
		t.Fatalf("expected another trial after a cancelled one")
	}
}
