package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	appchat "sneakmarket/internal/app/chat"
)

// Relay consumes chat events produced by other service instances and injects
// them into the local hub, so subscribers on this instance see appends made
// anywhere. Events carrying this instance's origin are skipped: the hub
// already delivered them synchronously.
type Relay struct {
	group  sarama.ConsumerGroup
	hub    *appchat.Hub
	origin string
	logger *slog.Logger
}

// NewRelay builds a consumer-group relay. The group id must be unique per
// instance so every instance sees every event.
func NewRelay(brokers []string, groupID, origin string, hub *appchat.Hub, cfg *sarama.Config, logger *slog.Logger) (*Relay, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Relay{group: group, hub: hub, origin: origin, logger: logger}, nil
}

// Run consumes until the context is cancelled.
func (r *Relay) Run(ctx context.Context, topics []string) error {
	for {
		if err := r.group.Consume(ctx, topics, relayHandler{relay: r}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *Relay) Close() error {
	return r.group.Close()
}

func (r *Relay) apply(raw []byte) {
	var envelope struct {
		Type string        `json:"type"`
		Data appchat.Event `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if r.logger != nil {
			r.logger.Warn("relay: undecodable event dropped", "error", err)
		}
		return
	}
	evt := envelope.Data
	if evt.Origin == r.origin {
		return
	}
	switch evt.Type {
	case appchat.EventMessageAppended:
		if evt.Message != nil {
			r.hub.PublishMessage(*evt.Message)
		}
	case appchat.EventConversationUpdated:
		if evt.Conversation != nil {
			r.hub.PublishConversation(*evt.Conversation)
		}
	}
}

type relayHandler struct {
	relay *Relay
}

func (relayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (relayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h relayHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.relay.apply(message.Value)
		sess.MarkMessage(message, "")
	}
	return nil
}
