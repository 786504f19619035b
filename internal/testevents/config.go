package testevents

import "time"

// Scenario names accepted by -scenario.
const (
	ScenarioStageChanged = "stage_changed"
	ScenarioCreated      = "created"
	ScenarioDocument     = "document"
	ScenarioMixed        = "mixed"
)

// Config holds configuration for an event run.
type Config struct {
	AMQPURL    string        // Broker URL
	Exchange   string        // Topic exchange to publish to
	OpsURL     string        // Ops HTTP base URL used for verification; empty skips it
	Scenario   string        // Which inbound events to generate
	NumEvents  int           // Number of events to publish
	JobID      string        // Job the generated applications belong to
	DocumentID string        // Document id for document scenarios; empty generates one per event
	Workers    int           // Number of concurrent publishers
	Timeout    time.Duration // Per-publish and per-request timeout
	Wait       time.Duration // How long to wait for the service to settle the events
	OutputFile string        // Output file for the generated envelopes
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated int
	EventsPublished int
	EventsFailed    int
	ProcessedBefore int64
	ProcessedAfter  int64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
