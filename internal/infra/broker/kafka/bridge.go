package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/realtime"
)

// DefaultEventsTopic carries gateway broadcast envelopes between nodes.
const DefaultEventsTopic = "chat-events"

// Bridge mirrors local gateway broadcasts onto Kafka and replays envelopes
// from peer nodes into the local rooms. With a per-node consumer group every
// node sees every broadcast, keeping fan-out globally correct when the
// gateway is horizontally scaled.
type Bridge struct {
	Producer *Producer
	Topic    string
	Gateway  *realtime.Gateway
	Logger   *slog.Logger
}

// Publish implements realtime.EventBus.
func (b *Bridge) Publish(ctx context.Context, evt realtime.BusEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	key := evt.Room
	if key == "" {
		key = evt.Origin
	}
	return b.Producer.Publish(ctx, b.topic(), key, payload)
}

// Handle is the consumer side: decode a peer envelope and replay it locally.
// Undecodable records are dropped.
func (b *Bridge) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt realtime.BusEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		if b.Logger != nil {
			b.Logger.Warn("dropping undecodable bus event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
		return nil
	}
	b.Gateway.Replay(evt)
	return nil
}

// Run consumes the events topic until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, brokers []string, groupID string) error {
	consumer, err := NewConsumer(brokers, groupID, nil, b.Handle)
	if err != nil {
		return err
	}
	defer consumer.Close()
	return consumer.Run(ctx, []string{b.topic()})
}

func (b *Bridge) topic() string {
	if b.Topic != "" {
		return b.Topic
	}
	return DefaultEventsTopic
}
