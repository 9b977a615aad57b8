package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/model"
)

// ErrPollExhausted means the settlement was still pending after the last
// attempt the policy allows.
var ErrPollExhausted = errors.New("settlement still pending")

// PollPolicy is the caller-side cadence for settlement checks.
type PollPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Initial     time.Duration `mapstructure:"initial"`
	Max         time.Duration `mapstructure:"max"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: 20, Initial: 3 * time.Second, Max: 30 * time.Second, Multiplier: 1.5}
}

func (p PollPolicy) withDefaults() PollPolicy {
	d := DefaultPollPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// CheckFunc is one point-in-time settlement check, typically a closure over
// SettlementQris or SettlementBounty.
type CheckFunc func(ctx context.Context) (model.SettlementResult, error)

// PollSettlement repeats check with exponential backoff until the
// settlement leaves pending, the attempts run out or ctx is done.
//
// Status checks are reads, so transport failures and timeouts are retried
// within the attempt budget. Any other error ends the loop. The orchestrator
// never calls this itself.
func PollSettlement(ctx context.Context, p PollPolicy, check CheckFunc) (model.SettlementResult, error) {
	p = p.withDefaults()

	var (
		last    model.SettlementResult
		lastErr error
	)
	delay := p.Initial
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res, err := check(ctx)
		switch {
		case err == nil:
			last, lastErr = res, nil
			if res.Status != model.SettlementPending || res.State.Terminal() {
				return res, nil
			}
		case apperr.Retryable(err):
			lastErr = err
		default:
			return last, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return last, ctx.Err()
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.Max {
			delay = p.Max
		}
	}

	if lastErr != nil {
		return last, lastErr
	}
	return last, ErrPollExhausted
}
