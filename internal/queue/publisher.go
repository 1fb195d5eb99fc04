package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends events to RabbitMQ. It dials per publish: events are
// rare (one per settlement) and a broker outage must never outlive the
// call that hit it. Errors are logged and returned so callers can decide
// to ignore them without interrupting the request flow.
type Publisher struct {
	url string
	log *slog.Logger
}

func NewPublisher(url string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// maxDialTimeout caps how long a publish waits for the broker. Publishes
// run inside request handling, so the caller's deadline also applies.
const maxDialTimeout = 2 * time.Second

func dialTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d := maxDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d <= 0 {
		return 0, context.DeadlineExceeded
	}
	return d, nil
}

// PublishSettled publishes to payment.settled.
func (p *Publisher) PublishSettled(ctx context.Context, ev PaymentSettledEvent) error {
	return p.publish(ctx, PaymentSettledQueue, ev)
}

// PublishSettlementRetry publishes to settlement.retry.
func (p *Publisher) PublishSettlementRetry(ctx context.Context, ev SettlementRetryEvent) error {
	return p.publish(ctx, SettlementRetryQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	const op = "queue.Publisher.publish"
	log := p.log.With(slog.String("op", op), slog.String("queue", queue))

	timeout, err := dialTimeout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		log.Warn("dial failed", slog.Any("err", err))
		return fmt.Errorf("%s: dial: %w", op, err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("channel open failed", slog.Any("err", err))
		return fmt.Errorf("%s: channel: %w", op, err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Warn("queue declare failed", slog.Any("err", err))
		return fmt.Errorf("%s: declare: %w", op, err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		log.Warn("publish failed", slog.Any("err", err))
		return fmt.Errorf("%s: publish: %w", op, err)
	}
	return nil
}
