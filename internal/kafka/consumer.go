package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/segmentio/kafka-go"
)

// The audit topic carries one JSON model.PurchaseEvent per message, keyed
// by the caller fingerprint. Producer writes it; Consumer reads it for the
// ClickHouse loader, which commits offsets only after a batch is stored.

// ErrNoEventID marks a message that decodes but carries no event id.
var ErrNoEventID = errors.New("audit event without id")

// EncodeEvent builds the audit topic message for e.
func EncodeEvent(e model.PurchaseEvent) (Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return Message{Key: []byte(e.Caller), Value: b}, nil
}

// DecodeEvent parses an audit topic message.
func DecodeEvent(m Message) (model.PurchaseEvent, error) {
	var ev model.PurchaseEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return model.PurchaseEvent{}, fmt.Errorf("decode event at offset %d: %w", m.Offset, err)
	}
	if ev.ID == "" {
		return model.PurchaseEvent{}, fmt.Errorf("offset %d: %w", m.Offset, ErrNoEventID)
	}
	return ev, nil
}

// Config selects the audit topic and consumer group. Zero sizes and
// intervals fall back to defaults sized for small JSON events.
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // default 1s
	MaxWait        time.Duration // default 250ms
}

func (c Config) reader() kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       c.MinBytes,
		MaxBytes:       c.MaxBytes,
		CommitInterval: c.CommitInterval,
		MaxWait:        c.MaxWait,
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = 1 << 10
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = 10 << 20
	}
	if rc.CommitInterval <= 0 {
		rc.CommitInterval = time.Second
	}
	if rc.MaxWait <= 0 {
		rc.MaxWait = 250 * time.Millisecond
	}
	return rc
}

// Consumer is a group reader on the audit topic. Offsets advance only
// through Commit.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(c Config) *Consumer {
	return &Consumer{r: kafka.NewReader(c.reader())}
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

// Commit acknowledges a stored batch, poison messages included.
func (c *Consumer) Commit(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return c.r.CommitMessages(ctx, msgs...)
}

func (c *Consumer) Close() error { return c.r.Close() }
