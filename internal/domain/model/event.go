// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Inbound routing keys.
const (
	EventApplicationCreated      = "application.created"
	EventApplicationStageChanged = "application.stage_changed"
	EventDocumentProcessed       = "document.processed"
)

// Outbound routing keys.
const (
	EventReviewStarted     = "ai_review.started"
	EventReviewCompleted   = "ai_review.completed"
	EventReviewFailed      = "ai_review.failed"
	EventMetadataExtracted = "resume.metadata.extracted"
)

// StageAIReview is the pipeline stage that triggers a fit review.
const StageAIReview = "ai_review"

// InboundRoutingKeys lists the keys the consumer queue binds to.
func InboundRoutingKeys() []string {
	return []string{EventApplicationCreated, EventApplicationStageChanged, EventDocumentProcessed}
}

// Envelope is the wire shape of every domain event.
type Envelope struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Payload   map[string]any `json:"payload"`
}

// DecodeEnvelope parses a message body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	}
	if env.Payload == nil {
		env.Payload = map[string]any{}
	}
	return env, nil
}

// Event is the normalized form of an Envelope. Exactly one concrete type
// exists per routing key; everything else becomes Unknown.
type Event interface {
	Type() string
	ID() string
}

// ApplicationCreated is emitted when a candidate applies to a job.
type ApplicationCreated struct {
	EventID        string `mapstructure:"-"`
	ApplicationID  string `mapstructure:"application_id"`
	CandidateID    string `mapstructure:"candidate_id"`
	JobID          string `mapstructure:"job_id"`
	Stage          string `mapstructure:"stage"`
	AutoTransition bool   `mapstructure:"auto_transition"`
}

func (e ApplicationCreated) Type() string { return EventApplicationCreated }
func (e ApplicationCreated) ID() string   { return e.EventID }

// ApplicationStageChanged is emitted when an application moves between stages.
// PreviousStage is canonical; both wire aliases are folded into it.
type ApplicationStageChanged struct {
	EventID        string
	ApplicationID  string
	CandidateID    string
	JobID          string
	NewStage       string
	PreviousStage  string
	AutoTransition bool
}

// stageChangedPayload is the wire form; producers disagree on the name of the
// prior-stage field.
type stageChangedPayload struct {
	ApplicationID  string `mapstructure:"application_id"`
	CandidateID    string `mapstructure:"candidate_id"`
	JobID          string `mapstructure:"job_id"`
	NewStage       string `mapstructure:"new_stage"`
	OldStage       string `mapstructure:"old_stage"`
	PreviousStage  string `mapstructure:"previous_stage"`
	AutoTransition bool   `mapstructure:"auto_transition"`
}

func (e ApplicationStageChanged) Type() string { return EventApplicationStageChanged }
func (e ApplicationStageChanged) ID() string   { return e.EventID }

// DocumentProcessed is emitted once upstream text extraction finishes.
type DocumentProcessed struct {
	EventID          string `mapstructure:"-"`
	DocumentID       string `mapstructure:"document_id"`
	ProcessingStatus string `mapstructure:"processing_status"`
	EntityType       string `mapstructure:"entity_type"`
	EntityID         string `mapstructure:"entity_id"`
	DocumentType     string `mapstructure:"document_type"`
}

func (e DocumentProcessed) Type() string { return EventDocumentProcessed }
func (e DocumentProcessed) ID() string   { return e.EventID }

// Unknown carries events the pipeline does not handle.
type Unknown struct {
	EventID   string
	EventType string
}

func (e Unknown) Type() string { return e.EventType }
func (e Unknown) ID() string   { return e.EventID }

// Normalize converts an Envelope into its concrete Event variant.
func Normalize(env Envelope) (Event, error) {
	switch env.EventType {
	case EventApplicationCreated:
		var ev ApplicationCreated
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.EventID = env.EventID
		return ev, nil
	case EventApplicationStageChanged:
		var wire stageChangedPayload
		if err := decodePayload(env.Payload, &wire); err != nil {
			return nil, err
		}
		prev := wire.OldStage
		if prev == "" {
			prev = wire.PreviousStage
		}
		return ApplicationStageChanged{
			EventID:        env.EventID,
			ApplicationID:  wire.ApplicationID,
			CandidateID:    wire.CandidateID,
			JobID:          wire.JobID,
			NewStage:       wire.NewStage,
			PreviousStage:  prev,
			AutoTransition: wire.AutoTransition,
		}, nil
	case EventDocumentProcessed:
		var ev DocumentProcessed
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.EventID = env.EventID
		return ev, nil
	default:
		return Unknown{EventID: env.EventID, EventType: env.EventType}, nil
	}
}

func decodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       lenientBool,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// lenientBool decodes string flags such as "yes" or "1". Strings that are not
// booleans decode to false so an optional flag never rejects the event.
func lenientBool(from, to reflect.Kind, data any) (any, error) {
	if from != reflect.String || to != reflect.Bool {
		return data, nil
	}
	s := strings.ToLower(strings.TrimSpace(reflect.ValueOf(data).String()))
	switch s {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off", "":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, nil
	}
	return b, nil
}
