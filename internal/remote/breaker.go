package remote

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker trips after a run of consecutive upstream failures and rejects
// calls until its cool-down elapses. One trial call then decides whether it
// closes again.
type Breaker struct {
	mu        sync.Mutex
	st        state
	fails     int
	threshold int
	openFor   time.Duration
	reopenAt  time.Time
	trial     bool
	now       func() time.Time
}

func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	return &Breaker{threshold: threshold, openFor: openFor, now: time.Now}
}

// TryAcquire admits a call. Every admitted call must be followed by one
// Record.
func (b *Breaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == open && b.now().After(b.reopenAt) {
		b.st = halfOpen
	}
	switch b.st {
	case closed:
		return true
	case halfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return false
	}
}

// Record classifies the outcome of an admitted call. err is the round-trip
// error, status the HTTP status when an answer arrived.
//
// Transport failures and 5xx answers count against the upstream. Any other
// answer, 4xx included, is a healthy round trip. A caller cancelling its
// own context says nothing about the upstream and only frees the trial slot.
func (b *Breaker) Record(err error, status int) {
	switch {
	case errors.Is(err, context.Canceled):
		b.release()
	case err != nil, status >= http.StatusInternalServerError:
		b.fail()
	default:
		b.succeed()
	}
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.trial = false
	b.mu.Unlock()
}

func (b *Breaker) succeed() {
	b.mu.Lock()
	b.fails = 0
	b.st = closed
	b.trial = false
	b.mu.Unlock()
}

func (b *Breaker) fail() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if b.st == halfOpen {
		b.trip()
		return
	}
	b.fails++
	if b.fails >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.st = open
	b.reopenAt = b.now().Add(b.openFor)
}

// State returns the breaker state name, for logs and metrics.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st == open && b.now().After(b.reopenAt) {
		return halfOpen.String()
	}
	return b.st.String()
}
