package testevents

import "time"

const (
	// WorkerChannelMultiplier sizes the publish queue relative to the worker count.
	WorkerChannelMultiplier = 2
	// PollInterval is how often the ops /stats endpoint is polled while waiting.
	PollInterval         = 2 * time.Second
	PercentageMultiplier = 100
)
