package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

const defaultPublishTimeout = 5 * time.Second

// Sender is the raw publish capability of a Broker.
type Sender interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// OutboundEnvelope is the wire shape of lifecycle events.
type OutboundEnvelope struct {
	EventType  string    `json:"event_type"`
	EventID    string    `json:"event_id"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher emits lifecycle events. Delivery is best-effort: failures are
// logged and counted but never returned.
type Publisher struct {
	sender   Sender
	exchange string
	source   string
	timeout  time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewPublisher publishes to exchange through s.
func NewPublisher(s Sender, exchange string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sender:   s,
		exchange: exchange,
		source:   "ai-review-service",
		timeout:  defaultPublishTimeout,
		log:      logger.Get().Named("publisher"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends payload under routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) {
	if err := p.PublishEvent(ctx, routingKey, payload); err != nil {
		metrics.RecordPublish(routingKey, "error")
		metrics.RecordErrorByComponent("publisher", "publish")
		p.log.Warn(ctx, "lifecycle event not published",
			logger.String("routing_key", routingKey),
			logger.Error(err))
		return
	}
	metrics.RecordPublish(routingKey, "ok")
}

// PublishEvent is Publish with the error surfaced.
func (p *Publisher) PublishEvent(ctx context.Context, routingKey string, payload any) error {
	now := p.now().UTC()
	env := OutboundEnvelope{
		EventType:  routingKey,
		EventID:    uuid.NewString(),
		Source:     p.source,
		OccurredAt: now,
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.sender.Publish(pctx, p.exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID,
		Timestamp:    now,
		Type:         routingKey,
		AppId:        p.source,
		Headers:      headers,
		Body:         body,
	})
}
