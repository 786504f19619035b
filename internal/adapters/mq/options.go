package mq

import (
	"time"

	"github.com/okian/aireview/internal/domain/attempts"
	"github.com/okian/aireview/pkg/logger"
)

// BrokerOption applies a configuration option to the Broker.
type BrokerOption func(*Broker)

// WithBrokerLogger sets the broker logger.
func WithBrokerLogger(l logger.Logger) BrokerOption {
	return func(b *Broker) {
		if l != nil {
			b.log = l
		}
	}
}

// ConsumerOption applies a configuration option to the Consumer.
type ConsumerOption func(*Consumer)

// WithRetryLimit sets how many failed attempts a message gets before it is
// dead-lettered. 0 requeues forever.
func WithRetryLimit(n int) ConsumerOption {
	return func(c *Consumer) {
		if n >= 0 {
			c.retryLimit = n
		}
	}
}

// WithAttemptTracker replaces the in-process attempt tracker.
func WithAttemptTracker(t attempts.Tracker) ConsumerOption {
	return func(c *Consumer) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithHandlerTimeout bounds one Handle call. 0 disables the bound.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d >= 0 {
			c.handlerTimeout = d
		}
	}
}

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(l logger.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.log = l
		}
	}
}

// PublisherOption applies a configuration option to the Publisher.
type PublisherOption func(*Publisher)

// WithPublishTimeout bounds one publish.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSource sets the source field of outbound envelopes.
func WithSource(s string) PublisherOption {
	return func(p *Publisher) {
		if s != "" {
			p.source = s
		}
	}
}

// WithPublisherLogger sets the publisher logger.
func WithPublisherLogger(l logger.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.log = l
		}
	}
}
