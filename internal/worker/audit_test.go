package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/kafka"
	"github.com/jmehdipour/xl-gateway/internal/model"
)

type fakeConsumer struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetches   int
	drained   chan struct{} // closed once the queue has been handed out
	committed []kafka.Message
}

func newFakeConsumer(msgs ...kafka.Message) *fakeConsumer {
	return &fakeConsumer{queue: msgs, drained: make(chan struct{})}
}

func (f *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	f.fetches++
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	if f.drained != nil {
		close(f.drained)
		f.drained = nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeConsumer) Commit(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeConsumer) fetched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeConsumer) commits() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.committed...)
}

type fakeStore struct {
	mu      sync.Mutex
	calls   int
	failN   int // fail the first failN inserts
	largest int
	stored  []model.PurchaseEvent
	flushed chan int
}

func newFakeStore(failN int) *fakeStore {
	return &fakeStore{failN: failN, flushed: make(chan int, 16)}
}

func (f *fakeStore) InsertBatch(_ context.Context, events []model.PurchaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.largest = max(f.largest, len(events))
	if f.calls <= f.failN {
		return errors.New("clickhouse down")
	}
	f.stored = append(f.stored, events...)
	select {
	case f.flushed <- len(events):
	default:
	}
	return nil
}

func (f *fakeStore) stats() (calls, largest, stored int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.largest, len(f.stored)
}

func (f *fakeStore) ListByCaller(context.Context, string, model.Rail, model.SettlementStatus, int, int) ([]model.PurchaseEvent, error) {
	return nil, nil
}

func eventMsg(t *testing.T, offset int64, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.PurchaseEvent{ID: id, Caller: "fp", Rail: model.RailQris, Operation: "show_qris"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Offset: offset, Value: b}
}

func runLoader(t *testing.T, w *AuditLoader) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func waitFlush(t *testing.T, store *fakeStore) int {
	t.Helper()
	select {
	case n := <-store.flushed:
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a flush")
		return 0
	}
}

func TestAuditLoaderFlushesBySizeAndCommitsPoison(t *testing.T) {
	cons := newFakeConsumer(
		eventMsg(t, 1, "ev-1"),
		kafka.Message{Offset: 2, Value: []byte("{not json")},
		eventMsg(t, 3, "ev-3"),
	)
	store := newFakeStore(0)
	w := &AuditLoader{Consumer: cons, Events: store, BatchSize: 2, BatchWait: time.Hour}

	cancel, done := runLoader(t, w)
	if n := waitFlush(t, store); n != 2 {
		t.Fatalf("expected 2 stored events, got %d", n)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	got := cons.commits()
	if len(got) != 3 {
		t.Fatalf("expected 3 committed messages (poison included), got %d", len(got))
	}
	if got[1].Offset != 2 {
		t.Fatalf("expected poison message committed in order, got offset %d", got[1].Offset)
	}
}

func TestAuditLoaderKeepsBatchWhenStoreFails(t *testing.T) {
	cons := newFakeConsumer(eventMsg(t, 1, "ev-1"))
	store := newFakeStore(1)
	w := &AuditLoader{Consumer: cons, Events: store, BatchSize: 100, BatchWait: 10 * time.Millisecond}

	cancel, done := runLoader(t, w)
	if n := waitFlush(t, store); n != 1 {
		t.Fatalf("expected the retried batch to hold 1 event, got %d", n)
	}
	cancel()
	<-done

	calls, _, _ := store.stats()
	if calls < 2 {
		t.Fatalf("expected a failed insert and a retry, got %d calls", calls)
	}
	if got := cons.commits(); len(got) != 1 {
		t.Fatalf("expected exactly one commit after the stored batch, got %d", len(got))
	}
}

func TestAuditLoaderFlushesOnShutdown(t *testing.T) {
	cons := newFakeConsumer(eventMsg(t, 1, "ev-1"), eventMsg(t, 2, "ev-2"))
	drained := cons.drained
	store := newFakeStore(0)
	w := &AuditLoader{Consumer: cons, Events: store, BatchSize: 100, BatchWait: time.Hour}

	cancel, done := runLoader(t, w)
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer never drained")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if n := waitFlush(t, store); n != 2 {
		t.Fatalf("expected 2 events flushed on shutdown, got %d", n)
	}
	if got := cons.commits(); len(got) != 2 {
		t.Fatalf("expected 2 commits on shutdown, got %d", len(got))
	}
}

func eventMsgs(t *testing.T, n int) []kafka.Message {
	t.Helper()
	msgs := make([]kafka.Message, n)
	for i := range msgs {
		msgs[i] = eventMsg(t, int64(i+1), fmt.Sprintf("ev-%d", i+1))
	}
	return msgs
}

func TestAuditLoaderPausesWhileStoreIsDown(t *testing.T) {
	cons := newFakeConsumer(eventMsgs(t, 200)...)
	store := newFakeStore(1 << 30)
	w := &AuditLoader{Consumer: cons, Events: store, BatchSize: 10, BatchWait: 10 * time.Millisecond, RetryMax: 40 * time.Millisecond}

	cancel, done := runLoader(t, w)
	time.Sleep(300 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	calls, largest, _ := store.stats()
	if largest > w.BatchSize {
		t.Fatalf("expected batches capped at %d events, got %d", w.BatchSize, largest)
	}
	// one backed-off retry per 40ms at most, plus the shutdown attempt
	if calls > 12 {
		t.Fatalf("expected backed-off inserts, got %d", calls)
	}
	// buffered batch, channel buffer and the one the fetcher holds
	if n := cons.fetched(); n > 2*w.BatchSize+1 {
		t.Fatalf("expected fetching to pause, got %d fetches", n)
	}
	if got := cons.commits(); len(got) != 0 {
		t.Fatalf("expected no commits while the store is down, got %d", len(got))
	}
}

func TestAuditLoaderResumesAfterStoreRecovers(t *testing.T) {
	cons := newFakeConsumer(eventMsgs(t, 50)...)
	store := newFakeStore(3)
	w := &AuditLoader{Consumer: cons, Events: store, BatchSize: 10, BatchWait: 5 * time.Millisecond, RetryMax: 10 * time.Millisecond}

	cancel, done := runLoader(t, w)
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(3 * time.Second)
	for len(cons.commits()) < 50 {
		if time.Now().After(deadline) {
			_, _, stored := store.stats()
			t.Fatalf("expected all 50 messages committed, got %d (stored %d)", len(cons.commits()), stored)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, largest, stored := store.stats(); stored != 50 || largest > w.BatchSize {
		t.Fatalf("unexpected store state: stored=%d largest=%d", stored, largest)
	}
}
