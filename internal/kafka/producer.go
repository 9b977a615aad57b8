package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/segmentio/kafka-go"
)

// Producer publishes purchase audit events, keyed by caller fingerprint so
// one caller's events stay ordered within a partition.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Producer) Publish(ctx context.Context, e model.PurchaseEvent) error {
	m, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
