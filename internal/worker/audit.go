package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/kafka"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/repository"
	"go.uber.org/zap"
)

// Consumer is the part of kafka.Consumer the loader needs.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// AuditLoader:
// - fetches purchase events from Kafka,
// - buffers them and flushes to ClickHouse by size or time,
// - commits offsets only after the batch is stored.
//
// A failed insert keeps the batch and retries it with backoff. No new
// messages are read while a retry is pending, so at most BatchSize events
// are buffered.
//
// Delivery is at-least-once; the events table collapses duplicate ids.
type AuditLoader struct {
	Consumer  Consumer
	Events    repository.CHEventsRepository
	Log       *zap.Logger
	BatchSize int           // max buffered events per flush
	BatchWait time.Duration // max time to wait before flush
	RetryMax  time.Duration // backoff cap between failed inserts
}

func NewAuditLoader(consumer Consumer, events repository.CHEventsRepository, log *zap.Logger) *AuditLoader {
	return &AuditLoader{
		Consumer:  consumer,
		Events:    events,
		Log:       log,
		BatchSize: 500,
		BatchWait: 2 * time.Second,
		RetryMax:  time.Minute,
	}
}

const shutdownFlushTimeout = 10 * time.Second

// Run blocks until ctx is cancelled, then flushes what is buffered.
func (w *AuditLoader) Run(ctx context.Context) error {
	if w.BatchSize <= 0 {
		w.BatchSize = 500
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 2 * time.Second
	}
	if w.RetryMax < w.BatchWait {
		w.RetryMax = w.BatchWait
	}
	if w.Log == nil {
		w.Log = zap.NewNop()
	}

	msgCh := make(chan kafka.Message, w.BatchSize)
	go w.fetch(ctx, msgCh)

	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	b := &batch{}
	var (
		wait  time.Duration
		retry <-chan time.Time // non-nil while a failed batch awaits its retry
	)
	store := func(ctx context.Context) {
		if err := w.flush(ctx, b); err != nil {
			wait = min(max(2*wait, w.BatchWait), w.RetryMax)
			retry = time.After(wait)
			w.Log.Warn("audit: insert retry scheduled", zap.Duration("in", wait), zap.Int("events", len(b.events)))
			return
		}
		wait, retry = 0, nil
	}

	for {
		in := msgCh
		if retry != nil {
			in = nil
		}

		select {
		case <-ctx.Done():
			// drain what the fetcher already handed over
		drain:
			for retry == nil && len(b.events) < w.BatchSize {
				select {
				case m := <-msgCh:
					w.add(b, m)
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			_ = w.flush(fctx, b)
			cancel()
			return nil

		case m := <-in:
			w.add(b, m)
			if len(b.events) >= w.BatchSize {
				store(ctx)
			}

		case <-tick.C:
			if retry == nil {
				store(ctx)
			}

		case <-retry:
			store(ctx)
		}
	}
}
func (w *AuditLoader) fetch(ctx context.Context, out chan<- kafka.Message) {
	for {
		m, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Warn("audit: kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

type batch struct {
	events []model.PurchaseEvent
	msgs   []kafka.Message // every fetched message, poison included
}

func (b *batch) reset() {
	b.events = b.events[:0]
	b.msgs = b.msgs[:0]
}

// add buffers one message. Undecodable events are kept only for the commit.
func (w *AuditLoader) add(b *batch, m kafka.Message) {
	b.msgs = append(b.msgs, m)

	ev, err := kafka.DecodeEvent(m)
	if err != nil {
		metrics.AuditEventsTotal.WithLabelValues("poison").Inc()
		w.Log.Warn("audit: poison event", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	b.events = append(b.events, ev)
}

// flush stores the batch and commits its offsets. On a store failure the
// batch stays buffered and the error is returned.
func (w *AuditLoader) flush(ctx context.Context, b *batch) error {
	if len(b.msgs) == 0 {
		return nil
	}

	if err := w.Events.InsertBatch(ctx, b.events); err != nil {
		metrics.AuditEventsTotal.WithLabelValues("failed").Add(float64(len(b.events)))
		w.Log.Error("audit: clickhouse insert failed", zap.Int("events", len(b.events)), zap.Error(err))
		return err
	}
	metrics.AuditEventsTotal.WithLabelValues("stored").Add(float64(len(b.events)))

	if err := w.Consumer.Commit(ctx, b.msgs...); err != nil {
		// redelivered events are collapsed by id in the store
		w.Log.Warn("audit: kafka commit failed", zap.Int("messages", len(b.msgs)), zap.Error(err))
	} else {
		w.Log.Debug("audit: flushed", zap.Int("events", len(b.events)), zap.Int("messages", len(b.msgs)))
	}
	b.reset()
	return nil
}
