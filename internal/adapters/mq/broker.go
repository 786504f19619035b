// Package mq connects the pipeline to the domain-event topic exchange.
package mq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker owns the AMQP connection, one channel for consuming and one for
// publishing. Publishing is serialized because channels are not safe for
// concurrent publishes.
type Broker struct {
	cfg  config.AMQP
	conn *amqp.Connection
	sub  *amqp.Channel

	pubMu sync.Mutex
	pub   *amqp.Channel

	deliveries <-chan amqp.Delivery
	cancelled  atomic.Bool
	log        logger.Logger
}

// Dial connects and declares the topology.
func Dial(ctx context.Context, cfg config.AMQP, opts ...BrokerOption) (*Broker, error) {
	b := &Broker{cfg: cfg, log: logger.Get().Named("broker")}
	for _, opt := range opts {
		opt(b)
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Properties: amqp.Table{"connection_name": cfg.ConsumerTag},
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	b.conn = conn

	if b.sub, err = conn.Channel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if b.pub, err = conn.Channel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := b.declare(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go b.watch(ctx,
		conn.NotifyClose(make(chan *amqp.Error, 1)),
		b.sub.NotifyCancel(make(chan string, 1)))

	b.log.Info(ctx, "broker connected",
		logger.String("exchange", cfg.Exchange),
		logger.String("queue", cfg.Queue),
		logger.Int("prefetch", cfg.Prefetch))
	return b, nil
}

// declare sets up the topic exchange, the shared durable queue bound to the
// inbound routing keys, and the dead-letter fanout with its queue.
func (b *Broker) declare() error {
	ch := b.sub
	if err := ch.ExchangeDeclare(b.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: exchange %s: %v", ErrTopology, b.cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(b.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: queue %s: %v", ErrTopology, b.cfg.Queue, err)
	}
	for _, key := range model.InboundRoutingKeys() {
		if err := ch.QueueBind(b.cfg.Queue, key, b.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("%w: bind %s: %v", ErrTopology, key, err)
		}
	}

	if b.cfg.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(b.cfg.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("%w: exchange %s: %v", ErrTopology, b.cfg.DeadLetterExchange, err)
		}
		if _, err := ch.QueueDeclare(b.cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("%w: queue %s: %v", ErrTopology, b.cfg.DeadLetterQueue, err)
		}
		if err := ch.QueueBind(b.cfg.DeadLetterQueue, "", b.cfg.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("%w: bind %s: %v", ErrTopology, b.cfg.DeadLetterQueue, err)
		}
	}

	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("%w: qos: %v", ErrTopology, err)
	}
	return nil
}

// watch logs connection loss and server-side consumer cancellation until
// both notification channels are closed.
func (b *Broker) watch(ctx context.Context, closed <-chan *amqp.Error, cancelled <-chan string) {
	for closed != nil || cancelled != nil {
		select {
		case err, ok := <-closed:
			if !ok {
				closed = nil
				continue
			}
			if err != nil {
				b.log.Error(ctx, "broker connection closed",
					logger.Int("code", err.Code),
					logger.String("reason", err.Reason),
					logger.Bool("server", err.Server))
			}
		case tag, ok := <-cancelled:
			if !ok {
				cancelled = nil
				continue
			}
			b.cancelled.Store(true)
			b.log.Error(ctx, "consumer cancelled by server", logger.String("consumer_tag", tag))
		}
	}
}

// Consume starts delivery with manual acknowledgement.
func (b *Broker) Consume() error {
	if b.sub == nil {
		return ErrNotConnected
	}
	d, err := b.sub.Consume(b.cfg.Queue, b.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", b.cfg.Queue, err)
	}
	b.deliveries = d
	b.cancelled.Store(false)
	return nil
}

// Dequeue returns the delivery channel opened by Consume. It is closed when
// the channel or connection goes away.
func (b *Broker) Dequeue(context.Context) <-chan amqp.Delivery {
	return b.deliveries
}

// Publish sends msg to exchange with routingKey.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if b.pub == nil || b.pub.IsClosed() {
		return ErrNotConnected
	}
	if err := b.pub.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, routingKey, err)
	}
	return nil
}

// Healthy reports whether the connection and the consume channel are open
// and the server has not cancelled the consumer.
func (b *Broker) Healthy() bool {
	return b.conn != nil && !b.conn.IsClosed() &&
		b.sub != nil && !b.sub.IsClosed() &&
		!b.cancelled.Load()
}

// StopConsuming asks the server to stop delivering. Deliveries already
// buffered are still handed out and the delivery channel then closes.
func (b *Broker) StopConsuming() error {
	if b.sub == nil || b.sub.IsClosed() {
		return nil
	}
	return b.sub.Cancel(b.cfg.ConsumerTag, false)
}

// Close closes the connection. Deliveries that were never acked are
// redelivered by the server.
func (b *Broker) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}
