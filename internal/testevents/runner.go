package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/aireview/internal/adapters/mq"
	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run dials the broker described by config and publishes the scenario.
func Run(ctx context.Context, config *Config) error {
	amqpCfg := defaultAMQP(ctx)
	amqpCfg.URL = config.AMQPURL
	amqpCfg.Exchange = config.Exchange

	broker, err := mq.Dial(ctx, amqpCfg)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer func() { _ = broker.Close() }()

	return RunWith(ctx, config, broker)
}

func defaultAMQP(ctx context.Context) config.AMQP {
	return config.New(ctx).AMQP
}

// RunWith publishes the scenario through sender and, when an ops URL is
// configured, waits for the service to settle every event.
func RunWith(ctx context.Context, config *Config, sender Sender) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting event run",
		logger.String("exchange", config.Exchange),
		logger.String("scenario", config.Scenario),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.Bool("verbose", config.Verbose))

	var ops *opsClient
	if config.OpsURL != "" {
		ops = newOpsClient(config.OpsURL, config.Timeout)
		before, err := ops.stats(ctx)
		if err != nil {
			return fmt.Errorf("service health check failed: %w", err)
		}
		if !before.Started {
			return fmt.Errorf("service is not consuming")
		}
		stats.ProcessedBefore = before.Processed
	}

	events, err := Generate(ctx, config)
	if err != nil {
		return fmt.Errorf("event generation failed: %w", err)
	}
	stats.EventsGenerated = len(events)

	if err := publishEvents(ctx, config, sender, events, stats); err != nil {
		return fmt.Errorf("event publishing failed: %w", err)
	}

	if ops != nil {
		log.Info(ctx, "waiting for events to be settled")
		after, err := waitForProcessed(ctx, ops, stats.ProcessedBefore, stats.EventsPublished, config.Wait)
		stats.ProcessedAfter = after
		if err != nil {
			return fmt.Errorf("result verification failed: %w", err)
		}
	}

	if config.OutputFile != "" {
		if err := saveEventsToFile(ctx, config.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)
	return nil
}

// saveEventsToFile writes the published envelopes as a JSON array.
func saveEventsToFile(ctx context.Context, filename string, events []model.Envelope) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, eventsPerSecond float64
	if stats.EventsGenerated > 0 {
		successRate = float64(stats.EventsPublished) / float64(stats.EventsGenerated) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsPublished) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsPublished", stats.EventsPublished),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int64("processed", stats.ProcessedAfter-stats.ProcessedBefore),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
