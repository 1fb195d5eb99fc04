package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryHandler re-runs settlement for one payment.
type RetryHandler func(ctx context.Context, ev SettlementRetryEvent) error

// RetryConsumer consumes settlement.retry and hands each event to a
// RetryHandler. Messages that fail are rejected without requeue; the
// reconciliation sweep picks the payment up again, so a poison message
// cannot spin the consumer.
type RetryConsumer struct {
	url    string
	handle RetryHandler
	log    *slog.Logger
}

func NewRetryConsumer(url string, handle RetryHandler, log *slog.Logger) *RetryConsumer {
	return &RetryConsumer{url: url, handle: handle, log: log.With(slog.String("component", "settlement-retry-consumer"))}
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (c *RetryConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", slog.Any("err", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended; reconnecting", slog.Any("err", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *RetryConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn("set QoS failed", slog.Any("err", err))
	}
	if _, err := ch.QueueDeclare(SettlementRetryQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(SettlementRetryQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(ctx, d.Body); err != nil {
				c.log.Error("handle message failed", slog.Any("err", err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one settlement.retry body and runs the handler.
func (c *RetryConsumer) HandleMessage(ctx context.Context, body []byte) error {
	var ev SettlementRetryEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.PaymentID == 0 {
		return errors.New("event without payment_id")
	}
	if err := c.handle(ctx, ev); err != nil {
		return fmt.Errorf("payment %d: %w", ev.PaymentID, err)
	}
	c.log.Info("settlement retried", slog.Uint64("payment_id", ev.PaymentID))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
