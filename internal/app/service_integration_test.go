package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/okian/aireview/internal/adapters/ai"
	"github.com/okian/aireview/internal/adapters/enrichment"
	"github.com/okian/aireview/internal/adapters/mq"
	"github.com/okian/aireview/internal/adapters/repository"
	service "github.com/okian/aireview/internal/app"
	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/extraction"
	"github.com/okian/aireview/internal/domain/fitreview"
	"github.com/okian/aireview/internal/domain/model"
	amqp "github.com/rabbitmq/amqp091-go"
	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const upstreamApplication = `{
  "id": "A1",
  "candidate_id": "C1",
  "job_id": "J1",
  "job": {"id": "J1", "title": "Backend Engineer", "description": "Build payment services in Go", "location": "Berlin"},
  "candidate": {"id": "C1", "location": "Berlin"},
  "job_requirements": [{"description": "Go", "requirement_type": "skill", "is_mandatory": true}],
  "documents": [{"id": "d1", "document_type": "resume", "metadata": {"extracted_text": "Eight years of Go."}}]
}`

const fitReply = `{"fit_score":85,"recommendation":"good_fit","overall_summary":"Strong Go background","confidence_level":80,` +
	`"strengths":["Go"],"concerns":[],"matched_skills":["Go"],"missing_skills":[],"skills_match_percentage":100,` +
	`"candidate_years":8,"meets_experience_requirement":true,"location_compatibility":"perfect"}`

const extractionReply = `{"professional_summary":"Payments engineer","experience":[{"title":"Engineer","company":"Acme"}],` +
	`"education":[],"skills":[{"name":"Go","category":"technical"},{"name":"SQL","category":"technical"}],"certifications":[]}`

type wire struct {
	exchange, key string
	msg           amqp.Publishing
}

type captureSender struct {
	mu   sync.Mutex
	sent []wire
}

func (c *captureSender) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, wire{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *captureSender) byKey(key string) []wire {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []wire
	for _, w := range c.sent {
		if w.key == key {
			out = append(out, w)
		}
	}
	return out
}

type ackCounter struct {
	acks, nacks atomic.Int32
}

func (a *ackCounter) Ack(uint64, bool) error          { a.acks.Add(1); return nil }
func (a *ackCounter) Nack(uint64, bool, bool) error   { a.nacks.Add(1); return nil }
func (a *ackCounter) Reject(tag uint64, r bool) error { return a.Nack(tag, false, r) }

var integrationSeq atomic.Int64

func openIntegrationDB() (*repository.DB, *gorm.DB) {
	dsn := fmt.Sprintf("file:service-%d?mode=memory&cache=shared", integrationSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	So(err, ShouldBeNil)
	sqlDB, err := gdb.DB()
	So(err, ShouldBeNil)
	sqlDB.SetMaxOpenConns(1)
	db := repository.NewWithGorm(gdb)
	So(db.Migrate(context.Background(), true), ShouldBeNil)
	return db, gdb
}

func routeCompleter(calls *atomic.Int32) ai.Completer {
	return ai.CompleterFunc(func(ctx context.Context, req ai.Request) (ai.Response, error) {
		calls.Add(1)
		switch req.Operation {
		case fitreview.Operation:
			return ai.Response{Content: "```json\n" + fitReply + "\n```", Model: "test-model"}, nil
		case extraction.Operation:
			return ai.Response{Content: extractionReply, Model: "test-model"}, nil
		default:
			return ai.Response{}, fmt.Errorf("unexpected operation %q", req.Operation)
		}
	})
}

func delivery(ack amqp.Acknowledger, key, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Exchange:     "domain.events",
		RoutingKey:   key,
		ContentType:  "application/json",
		Body:         []byte(body),
	}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given the pipeline wired to real adapters", t, func() {
		ctx := context.Background()
		db, gdb := openIntegrationDB()
		defer db.Close()

		var upstreamHits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&upstreamHits, 1)
			if r.URL.Path != "/applications/A1" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(upstreamApplication))
		}))
		defer srv.Close()

		var aiCalls atomic.Int32
		completer := routeCompleter(&aiCalls)
		reviews := repository.NewReviewStore(db)
		documents := repository.NewDocumentStore(db)
		sender := &captureSender{}
		pipeline := service.NewPipeline(service.Dependencies{
			Enricher:  enrichment.NewResolver(config.Upstream{BaseURL: srv.URL, ServiceName: "ai-review", Timeout: 2 * time.Second}),
			Analyzer:  fitreview.NewAnalyzer(completer),
			Extractor: extraction.NewAnalyzer(completer),
			Reviews:   reviews,
			Documents: documents,
			Publisher: mq.NewPublisher(sender, "domain.events"),
		})
		consumer := mq.NewConsumer(pipeline, sender, "domain.events.dlx")

		Convey("When application A1 moves into ai_review", func() {
			ack := &ackCounter{}
			consumer.HandleDelivery(ctx, delivery(ack, model.EventApplicationStageChanged,
				`{"event_type":"application.stage_changed","event_id":"ev-1","payload":{"application_id":"A1","old_stage":"screening","new_stage":"ai_review","auto_transition":true}}`))

			Convey("Then exactly one review row is stored", func() {
				rows, err := reviews.FindByApplication(ctx, "A1")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].FitScore, ShouldEqual, 85)
				So(rows[0].Recommendation, ShouldEqual, model.RecommendationGoodFit)
				So(rows[0].CandidateID, ShouldEqual, "C1")
				So(rows[0].ModelVersion, ShouldEqual, "test-model")
			})

			Convey("Then one completed event carries the score", func() {
				completed := sender.byKey(model.EventReviewCompleted)
				So(completed, ShouldHaveLength, 1)
				So(completed[0].exchange, ShouldEqual, "domain.events")

				var env struct {
					EventType string                `json:"event_type"`
					Payload   model.ReviewCompleted `json:"payload"`
				}
				So(json.Unmarshal(completed[0].msg.Body, &env), ShouldBeNil)
				So(env.EventType, ShouldEqual, model.EventReviewCompleted)
				So(env.Payload.FitScore, ShouldEqual, 85)
				So(env.Payload.ApplicationID, ShouldEqual, "A1")
				So(env.Payload.AutoTransition, ShouldBeTrue)
				So(sender.byKey(model.EventReviewStarted), ShouldHaveLength, 1)
			})

			Convey("Then the delivery is acked once", func() {
				So(ack.acks.Load(), ShouldEqual, 1)
				So(ack.nacks.Load(), ShouldEqual, 0)
				So(atomic.LoadInt32(&upstreamHits), ShouldEqual, 1)
			})

			Convey("Then job stats reflect the review", func() {
				svc := service.New(newFakeBroker(), consumer, pipeline, service.WithReviewReader(reviews))
				stats, err := svc.JobStats(ctx, "J1")
				So(err, ShouldBeNil)
				So(stats.TotalReviews, ShouldEqual, 1)
				So(stats.RecommendationCounts[model.RecommendationGoodFit], ShouldEqual, 1)

				view, err := svc.LatestReview(ctx, "A1")
				So(err, ShouldBeNil)
				So(view.SkillsMatch.MatchPercentage, ShouldEqual, 100)
			})
		})

		Convey("When a processed résumé arrives", func() {
			So(gdb.Exec(
				"INSERT INTO documents (id, document_type, entity_type, entity_id, processing_status, metadata, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
				"d1", "resume", "candidate", "C1", "processed",
				datatypes.JSONMap{"extracted_text": longText},
				time.Now().UTC(),
			).Error, ShouldBeNil)
			body := `{"event_type":"document.processed","event_id":"ev-2","payload":{"document_id":"d1","processing_status":"processed"}}`

			ack := &ackCounter{}
			consumer.HandleDelivery(ctx, delivery(ack, model.EventDocumentProcessed, body))

			Convey("Then structured data is stored and announced", func() {
				So(ack.acks.Load(), ShouldEqual, 1)
				doc, err := documents.FindDocument(ctx, "d1")
				So(err, ShouldBeNil)
				So(doc.HasStructuredData(), ShouldBeTrue)
				So(doc.ExtractedText(), ShouldEqual, longText)

				extracted := sender.byKey(model.EventMetadataExtracted)
				So(extracted, ShouldHaveLength, 1)
				var env struct {
					Payload model.MetadataExtracted `json:"payload"`
				}
				So(json.Unmarshal(extracted[0].msg.Body, &env), ShouldBeNil)
				So(env.Payload.StructuredDataAvailable, ShouldBeTrue)
				So(env.Payload.SkillsCount, ShouldEqual, 2)
			})

			Convey("Then a redelivery does not call the model again", func() {
				before := aiCalls.Load()
				again := &ackCounter{}
				consumer.HandleDelivery(ctx, delivery(again, model.EventDocumentProcessed, body))
				So(again.acks.Load(), ShouldEqual, 1)
				So(aiCalls.Load(), ShouldEqual, before)
			})
		})
	})
}
