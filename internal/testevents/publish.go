package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender publishes one message; *mq.Broker satisfies it.
type Sender interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// publishEvents publishes events concurrently using a worker pool.
func publishEvents(ctx context.Context, config *Config, sender Sender, events []model.Envelope, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "publishing events", logger.Int("events", len(events)), logger.Int("workers", config.Workers))

	var published, failed int64
	jobs := make(chan model.Envelope, config.Workers*WorkerChannelMultiplier)

	var wg sync.WaitGroup
	for w := 0; w < max(config.Workers, 1); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for env := range jobs {
				if err := publishSingleEvent(ctx, sender, config, env); err != nil {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Warn(ctx, "publish failed", logger.String("eventID", env.EventID), logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&published, 1)
			}
		}()
	}

	for _, env := range events {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return fmt.Errorf("context cancelled during publishing: %w", ctx.Err())
		case jobs <- env:
		}
	}
	close(jobs)
	wg.Wait()

	stats.EventsPublished = int(published)
	stats.EventsFailed = int(failed)
	if published == 0 {
		return fmt.Errorf("none of %d events were published", len(events))
	}
	return nil
}

func publishSingleEvent(ctx context.Context, sender Sender, config *Config, env model.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.EventID, err)
	}
	pctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	return sender.Publish(pctx, config.Exchange, env.EventType, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID,
		Timestamp:    time.Now().UTC(),
		Type:         env.EventType,
		Body:         body,
	})
}
