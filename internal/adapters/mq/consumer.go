package mq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/aireview/internal/domain/attempts"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dead-letter header names.
const (
	HeaderDeathReason        = "x-death-reason"
	HeaderAttempts           = "x-attempts"
	HeaderOriginalRoutingKey = "x-original-routing-key"
	headerDeliveryCount      = "x-delivery-count"
)

// Dead-letter reasons.
const (
	ReasonMalformed  = "malformed"
	ReasonRetryLimit = "retry_limit"
	ReasonPanic      = "panic"
)

const defaultRetryLimit = 5

// Handler routes one normalized event.
type Handler interface {
	Handle(ctx context.Context, ev model.Event) (model.Disposition, error)
}

// Consumer settles deliveries according to the handler's disposition.
type Consumer struct {
	handler        Handler
	sender         Sender
	deadExchange   string
	retryLimit     int
	tracker        attempts.Tracker
	handlerTimeout time.Duration
	log            logger.Logger
	tracer         trace.Tracer
}

// NewConsumer builds a consumer. Dead letters go to deadExchange through s.
func NewConsumer(h Handler, s Sender, deadExchange string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		handler:      h,
		sender:       s,
		deadExchange: deadExchange,
		retryLimit:   defaultRetryLimit,
		tracker:      attempts.NewInMemoryTracker(),
		log:          logger.Get().Named("consumer"),
		tracer:       otel.Tracer("github.com/okian/aireview/internal/adapters/mq"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleDelivery decodes, routes and settles d. It never returns an error:
// every outcome ends in an ack, a requeue or a dead letter.
func (c *Consumer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	metrics.IncInFlight()
	defer metrics.DecInFlight()
	if d.Redelivered {
		metrics.RecordRedelivery()
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(tableOrEmpty(d.Headers)))
	ctx, span := c.tracer.Start(ctx, "consume "+d.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", d.Exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
		))
	defer span.End()

	start := time.Now()
	env, err := model.DecodeEnvelope(d.Body)
	if err != nil {
		span.RecordError(err)
		c.log.Error(ctx, "undecodable event", logger.String("routing_key", d.RoutingKey), logger.Error(err))
		c.deadLetter(ctx, d, c.key(env, d), ReasonMalformed, 1)
		metrics.RecordEventConsumed(d.RoutingKey, "dead_letter")
		return
	}
	key := c.key(env, d)
	log := c.log.With(logger.String("event_type", env.EventType), logger.String("event_id", env.EventID))

	ev, err := model.Normalize(env)
	if err != nil {
		span.RecordError(err)
		log.Error(ctx, "event payload does not match its type", logger.Error(err))
		c.deadLetter(ctx, d, key, ReasonMalformed, 1)
		metrics.RecordEventConsumed(env.EventType, "dead_letter")
		return
	}

	hctx, cancel := c.handlerContext(ctx)
	disp, err := c.invoke(hctx, ev)
	cancel()
	metrics.RecordEventLatency(env.EventType, float64(time.Since(start).Milliseconds()))

	if err == nil && disp != model.Retry {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error(ctx, "ack failed", logger.Error(ackErr))
		}
		c.tracker.Forget(ctx, key)
		metrics.RecordEventConsumed(env.EventType, disp.String())
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attempt := c.attempt(ctx, key, d)
	if c.retryLimit > 0 && attempt >= c.retryLimit {
		log.Error(ctx, "retry limit reached, dead-lettering",
			logger.Int("attempt", attempt),
			logger.Int("retry_limit", c.retryLimit),
			logger.Error(err))
		reason := ReasonRetryLimit
		if errors.Is(err, ErrHandlerPanic) {
			reason = ReasonPanic
		}
		c.deadLetter(ctx, d, key, reason, attempt)
		metrics.RecordEventConsumed(env.EventType, "dead_letter")
		return
	}

	log.Warn(ctx, "event failed, requeueing", logger.Int("attempt", attempt), logger.Error(err))
	if nackErr := d.Nack(false, true); nackErr != nil {
		log.Error(ctx, "nack failed", logger.Error(nackErr))
	}
	metrics.RecordEventConsumed(env.EventType, "requeue")
}

// invoke turns a handler panic into a Retry carrying ErrHandlerPanic so it
// counts against the retry limit like any other failure.
func (c *Consumer) invoke(ctx context.Context, ev model.Event) (disp model.Disposition, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("consumer", "panic")
			disp, err = model.Retry, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return c.handler.Handle(ctx, ev)
}

func (c *Consumer) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.handlerTimeout > 0 {
		return context.WithTimeout(ctx, c.handlerTimeout)
	}
	return context.WithCancel(ctx)
}

// key identifies a message across redeliveries.
func (c *Consumer) key(env model.Envelope, d amqp.Delivery) string {
	switch {
	case env.EventID != "":
		return env.EventID
	case d.MessageId != "":
		return d.MessageId
	default:
		return uuid.NewSHA1(uuid.NameSpaceOID, d.Body).String()
	}
}

// attempt is the larger of the broker's delivery count and the local tally.
func (c *Consumer) attempt(ctx context.Context, key string, d amqp.Delivery) int {
	n := c.tracker.Record(ctx, key)
	if hdr := deliveryCount(d.Headers); hdr+1 > n {
		n = hdr + 1
	}
	return n
}

func deliveryCount(h amqp.Table) int {
	switch v := h[headerDeliveryCount].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// deadLetter republishes d to the dead-letter exchange and acks it. If the
// republish fails the message is requeued instead so it is not lost.
func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, key, reason string, attempt int) {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderDeathReason] = reason
	headers[HeaderAttempts] = int32(attempt)
	headers[HeaderOriginalRoutingKey] = d.RoutingKey

	err := c.sender.Publish(ctx, c.deadExchange, d.RoutingKey, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Type:         d.Type,
		Headers:      headers,
		Body:         d.Body,
	})
	if err != nil {
		c.log.Error(ctx, "dead-letter publish failed, requeueing", logger.Error(err))
		metrics.RecordErrorByComponent("consumer", "dead_letter")
		_ = d.Nack(false, true)
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Error(ctx, "ack after dead-letter failed", logger.Error(ackErr))
	}
	c.tracker.Forget(ctx, key)
	metrics.RecordDeadLettered(reason)
}

func tableOrEmpty(t amqp.Table) amqp.Table {
	if t == nil {
		return amqp.Table{}
	}
	return t
}
