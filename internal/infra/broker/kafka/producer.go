package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	appchat "sneakmarket/internal/app/chat"
)

// Producer publishes chat events to one topic, keyed by conversation id so
// per-conversation ordering survives partitioning.
type Producer struct {
	sync  sarama.SyncProducer
	topic string
}

// NewProducer builds an idempotent synchronous producer.
func NewProducer(brokers []string, topic string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync, topic: topic}, nil
}

// Publish wraps the event in a CloudEvents 1.0 envelope and sends it.
func (p *Producer) Publish(ctx context.Context, evt appchat.Event) error {
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	envelope := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            evt.Type,
		"source":          "app://sneakmarket/" + evt.Origin,
		"time":            occurred,
		"datacontenttype": "application/json",
		"data":            evt,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.ConversationID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/cloudevents+json")},
			{Key: []byte("origin"), Value: []byte(evt.Origin)},
		},
	}
	_, _, err = p.sync.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

var _ appchat.EventPublisher = (*Producer)(nil)
