package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/dedup"
	"github.com/openbid/auction-pipeline/internal/event"
	"github.com/openbid/auction-pipeline/internal/metrics"
)

// Handler processes one decoded, deduplicated event. Returning an error
// keeps the offset uncommitted so the broker redelivers the message.
type Handler interface {
	HandleEvent(ctx context.Context, ev event.Event) error
}

// Consumer is a consumer-group runtime. Each claimed partition is drained by
// one synchronous worker, so per-key ordering holds for every partition
// count; nothing here assumes a single partition.
//
// Per message, in order: dedup gate, decode, dispatch, dedup record, offset
// mark. The dedup record lands after the side effect commits but before the
// offset, which is what turns redelivery into a no-op.
type Consumer struct {
	group    sarama.ConsumerGroup
	groupID  string
	topics   []string
	handlers map[string]Handler
	dedup    dedup.Store
	logger   *zap.Logger
}

// NewConsumer joins the given consumer group.
func NewConsumer(brokers []string, groupID string, store dedup.Store, logger *zap.Logger) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", groupID, err)
	}

	return &Consumer{
		group:    group,
		groupID:  groupID,
		handlers: make(map[string]Handler),
		dedup:    store,
		logger:   logger,
	}, nil
}

// Register routes a topic's events to a handler. Must be called before Run.
func (c *Consumer) Register(topic string, h Handler) {
	c.handlers[topic] = h
	c.topics = append(c.topics, topic)
}

// Run consumes until the context is cancelled. Session errors (rebalances,
// handler failures) restart consumption from the last committed offset, so
// an uncommitted message is redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.topics) == 0 {
		return fmt.Errorf("consumer group %s has no registered topics", c.groupID)
	}

	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error",
				zap.String("group", c.groupID),
				zap.Error(err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			c.logger.Error("consume session ended",
				zap.String("group", c.groupID),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Info("consumer session started",
		zap.String("group", c.groupID),
		zap.Any("claims", session.Claims()))
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim drains one partition. A handler failure aborts the claim
// without marking the failed message, forcing redelivery; everything after
// it on the partition is redelivered too, preserving order.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handleMessage(session, msg); err != nil {
				return err
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage runs the dedup-gated dispatch for one message.
func (c *Consumer) handleMessage(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := session.Context()

	applied, err := c.dedup.HasApplied(ctx, msg.Topic, msg.Partition, msg.Offset)
	if err != nil {
		// Without the dedup answer a dispatch could double-apply; leave
		// the message uncommitted and retry later.
		return fmt.Errorf("dedup check for %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	if applied {
		metrics.DuplicateEvents.WithLabelValues(msg.Topic).Inc()
		c.logger.Debug("duplicate message skipped",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		session.MarkMessage(msg, "")
		return nil
	}

	ev, err := event.Decode(msg.Value)
	if err != nil {
		// Malformed or unknown-shaped messages can never succeed; skip
		// them so they do not wedge the partition.
		c.logger.Error("undecodable message skipped",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		session.MarkMessage(msg, "")
		return nil
	}

	handler, ok := c.handlers[msg.Topic]
	if !ok {
		c.logger.Warn("no handler for topic, message skipped",
			zap.String("topic", msg.Topic))
		session.MarkMessage(msg, "")
		return nil
	}

	if err := handler.HandleEvent(ctx, ev); err != nil {
		metrics.HandlerFailures.WithLabelValues(msg.Topic).Inc()
		c.logger.Error("handler failed, message will be redelivered",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
		return err
	}

	if err := c.dedup.MarkApplied(ctx, msg.Topic, msg.Partition, msg.Offset); err != nil {
		// The side effect committed but the dedup record did not. Leaving
		// the offset uncommitted redelivers the message; handlers are
		// guarded (state checks, idempotent inserts) so a rare double
		// dispatch is preferable to skipping the record.
		return fmt.Errorf("mark applied for %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}

	session.MarkMessage(msg, "")
	metrics.EventsConsumed.WithLabelValues(msg.Topic).Inc()
	return nil
}
