package testevents

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
)

// Generate builds n inbound envelopes for scenario. Application, candidate
// and document ids are deterministic in their index so runs can be replayed.
func Generate(ctx context.Context, config *Config) ([]model.Envelope, error) {
	if config.NumEvents < 1 {
		return nil, fmt.Errorf("events must be positive, got %d", config.NumEvents)
	}
	logger.Get().Info(ctx, "generating inbound events",
		logger.String("scenario", config.Scenario),
		logger.Int("numEvents", config.NumEvents))

	events := make([]model.Envelope, 0, config.NumEvents)
	for i := 0; i < config.NumEvents; i++ {
		scenario := config.Scenario
		if scenario == ScenarioMixed {
			scenario = mixedScenario(i)
		}
		env, err := generateSingleEvent(scenario, i, config)
		if err != nil {
			return nil, err
		}
		events = append(events, env)
	}
	return events, nil
}

func mixedScenario(i int) string {
	switch i % 3 {
	case 0:
		return ScenarioStageChanged
	case 1:
		return ScenarioCreated
	default:
		return ScenarioDocument
	}
}

func generateSingleEvent(scenario string, index int, config *Config) (model.Envelope, error) {
	n := strconv.Itoa(index + 1)
	jobID := config.JobID
	if jobID == "" {
		jobID = "J1"
	}

	switch scenario {
	case ScenarioStageChanged:
		return model.Envelope{
			EventType: model.EventApplicationStageChanged,
			EventID:   uuid.NewString(),
			Payload: map[string]any{
				"application_id":  "A" + n,
				"candidate_id":    "C" + n,
				"job_id":          jobID,
				"previous_stage":  "screening",
				"new_stage":       model.StageAIReview,
				"auto_transition": index%2 == 0,
			},
		}, nil
	case ScenarioCreated:
		return model.Envelope{
			EventType: model.EventApplicationCreated,
			EventID:   uuid.NewString(),
			Payload: map[string]any{
				"application_id": "A" + n,
				"candidate_id":   "C" + n,
				"job_id":         jobID,
				"stage":          model.StageAIReview,
			},
		}, nil
	case ScenarioDocument:
		docID := config.DocumentID
		if docID == "" {
			docID = "D" + n
		}
		return model.Envelope{
			EventType: model.EventDocumentProcessed,
			EventID:   uuid.NewString(),
			Payload: map[string]any{
				"document_id":       docID,
				"processing_status": model.StatusProcessed,
				"entity_type":       model.EntityTypeCandidate,
				"entity_id":         "C" + n,
				"document_type":     model.DocumentTypeResume,
			},
		}, nil
	default:
		return model.Envelope{}, fmt.Errorf("unknown scenario %q", scenario)
	}
}
