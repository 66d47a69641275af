package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// HandlerFunc processes one consumed record. Returning an error leaves the
// offset unmarked, so the record is delivered again.
type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer drives a sarama consumer group and feeds each record to a
// HandlerFunc.
type Consumer struct {
	group  sarama.ConsumerGroup
	handle HandlerFunc
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handle HandlerFunc) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Version = sarama.V2_5_0_0
		// Broadcast envelopes are live traffic; a joining node starts at the
		// head instead of replaying stale presence and message frames.
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: group, handle: handle}, nil
}

// Run consumes topics until ctx is cancelled, rejoining the group after each
// rebalance.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	runner := groupRunner{handle: c.handle}
	for {
		if err := c.group.Consume(ctx, topics, runner); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupRunner struct {
	handle HandlerFunc
}

func (groupRunner) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (groupRunner) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (r groupRunner) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := r.handle(sess.Context(), msg); err != nil {
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
