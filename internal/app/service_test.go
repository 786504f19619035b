package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	service "github.com/okian/aireview/internal/app"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type published struct {
	key     string
	payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{key: key, payload: payload})
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.key)
	}
	return out
}

func (p *recordingPublisher) last() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1].payload
}

type fakeEnricher struct {
	calls []model.AnalysisInput
	err   error
}

func (f *fakeEnricher) Enrich(ctx context.Context, in model.AnalysisInput) (model.AnalysisInput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return model.AnalysisInput{}, f.err
	}
	in.JobTitle = "Backend Engineer"
	return in, nil
}

type fakeAnalyzer struct {
	calls int
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in model.AnalysisInput) (model.FitReview, error) {
	f.calls++
	if f.err != nil {
		return model.FitReview{}, f.err
	}
	return model.FitReview{
		ID:             "R1",
		ApplicationID:  in.ApplicationID,
		CandidateID:    in.CandidateID,
		JobID:          in.JobID,
		FitScore:       85,
		Recommendation: model.RecommendationGoodFit,
	}, nil
}

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, text, documentID string) (model.ResumeStructuredData, error) {
	f.calls++
	if f.err != nil {
		return model.ResumeStructuredData{}, f.err
	}
	return model.ResumeStructuredData{
		SourceDocumentID: documentID,
		Skills:           []model.Skill{{Name: "Go"}, {Name: "SQL"}},
		Experience:       []model.Experience{{Company: "Acme"}},
		Education:        []model.Education{},
		Certifications:   []model.Certification{},
	}, nil
}

type fakeReviews struct {
	rows []model.FitReview
	err  error
}

func (f *fakeReviews) Create(ctx context.Context, r *model.FitReview) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *r)
	return nil
}

type fakeDocuments struct {
	docs   map[string]*model.Document
	merged map[string]any
}

func (f *fakeDocuments) FindDocument(ctx context.Context, id string) (*model.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocuments) MergeMetadata(ctx context.Context, id, key string, value any) error {
	if f.merged == nil {
		f.merged = map[string]any{}
	}
	f.merged[id+"/"+key] = value
	return nil
}

type fixture struct {
	enricher  *fakeEnricher
	analyzer  *fakeAnalyzer
	extractor *fakeExtractor
	reviews   *fakeReviews
	documents *fakeDocuments
	publisher *recordingPublisher
	pipeline  *service.Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		enricher:  &fakeEnricher{},
		analyzer:  &fakeAnalyzer{},
		extractor: &fakeExtractor{},
		reviews:   &fakeReviews{},
		documents: &fakeDocuments{docs: map[string]*model.Document{}},
		publisher: &recordingPublisher{},
	}
	f.pipeline = service.NewPipeline(service.Dependencies{
		Enricher:  f.enricher,
		Analyzer:  f.analyzer,
		Extractor: f.extractor,
		Reviews:   f.reviews,
		Documents: f.documents,
		Publisher: f.publisher,
	})
	return f
}

func resume(id, text string) *model.Document {
	return &model.Document{
		ID:               id,
		DocumentType:     model.DocumentTypeResume,
		EntityType:       model.EntityTypeCandidate,
		EntityID:         "C1",
		ProcessingStatus: model.StatusProcessed,
		Metadata:         map[string]any{model.ExtractedTextKey: text},
	}
}

var longText = strings.Repeat("Senior Go engineer with payments experience. ", 3)

func TestPipeline_FitRouting(t *testing.T) {
	Convey("Given a pipeline", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("When a stage change does not enter ai_review", func() {
			disp, err := f.pipeline.Handle(ctx, model.ApplicationStageChanged{ApplicationID: "A1", NewStage: "interview"})

			Convey("Then it is skipped without enrichment", func() {
				So(err, ShouldBeNil)
				So(disp, ShouldEqual, model.Skip)
				So(f.enricher.calls, ShouldBeEmpty)
				So(f.publisher.keys(), ShouldBeEmpty)
			})
		})

		Convey("When an application is created outside ai_review", func() {
			disp, err := f.pipeline.Handle(ctx, model.ApplicationCreated{ApplicationID: "A1", Stage: "submitted"})
			So(err, ShouldBeNil)
			So(disp, ShouldEqual, model.Skip)
			So(f.enricher.calls, ShouldBeEmpty)
		})

		Convey("When an application is created in ai_review", func() {
			disp, err := f.pipeline.Handle(ctx, model.ApplicationCreated{
				ApplicationID: "A1", CandidateID: "C1", JobID: "J1", Stage: model.StageAIReview, AutoTransition: true,
			})

			Convey("Then enrichment receives exactly the event ids", func() {
				So(err, ShouldBeNil)
				So(disp, ShouldEqual, model.Ack)
				So(f.enricher.calls, ShouldHaveLength, 1)
				in := f.enricher.calls[0]
				So(in.ApplicationID, ShouldEqual, "A1")
				So(in.CandidateID, ShouldEqual, "C1")
				So(in.JobID, ShouldEqual, "J1")
				So(in.TriggeredBy, ShouldEqual, model.EventApplicationCreated)
			})

			Convey("Then started and completed events bracket the persisted review", func() {
				So(f.reviews.rows, ShouldHaveLength, 1)
				So(f.publisher.keys(), ShouldResemble, []string{model.EventReviewStarted, model.EventReviewCompleted})
				done, ok := f.publisher.last().(model.ReviewCompleted)
				So(ok, ShouldBeTrue)
				So(done.ReviewID, ShouldEqual, "R1")
				So(done.FitScore, ShouldEqual, 85)
				So(done.Recommendation, ShouldEqual, model.RecommendationGoodFit)
				So(done.AutoTransition, ShouldBeTrue)
			})
		})

		Convey("When the event carries no application id", func() {
			disp, err := f.pipeline.Handle(ctx, model.ApplicationStageChanged{NewStage: model.StageAIReview})
			So(err, ShouldBeNil)
			So(disp, ShouldEqual, model.Skip)
			So(f.enricher.calls, ShouldBeEmpty)
		})

		Convey("When enrichment fails", func() {
			f.enricher.err = errors.New("upstream down")
			disp, err := f.pipeline.Handle(ctx, model.ApplicationStageChanged{ApplicationID: "A1", NewStage: model.StageAIReview})

			Convey("Then a failure is announced and the event is retried", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, service.StageEnrichment)
				So(disp, ShouldEqual, model.Retry)
				So(f.analyzer.calls, ShouldEqual, 0)
				So(f.publisher.keys(), ShouldResemble, []string{model.EventReviewStarted, model.EventReviewFailed})
				failed := f.publisher.last().(model.ReviewFailed)
				So(failed.ApplicationID, ShouldEqual, "A1")
				So(failed.Error, ShouldContainSubstring, "upstream down")
			})
		})

		Convey("When persistence fails", func() {
			f.reviews.err = errors.New("db gone")
			disp, err := f.pipeline.Handle(ctx, model.ApplicationStageChanged{ApplicationID: "A1", NewStage: model.StageAIReview})
			So(disp, ShouldEqual, model.Retry)
			So(errors.Is(err, f.reviews.err), ShouldBeTrue)
			So(f.publisher.keys(), ShouldResemble, []string{model.EventReviewStarted, model.EventReviewFailed})
		})

		Convey("When the event type is not handled", func() {
			disp, err := f.pipeline.Handle(ctx, model.Unknown{EventType: "candidate.deleted"})
			So(err, ShouldBeNil)
			So(disp, ShouldEqual, model.Skip)
		})
	})
}

func TestPipeline_Extraction(t *testing.T) {
	Convey("Given a pipeline with stored documents", t, func() {
		ctx := context.Background()
		f := newFixture()
		processed := func(id string) model.DocumentProcessed {
			return model.DocumentProcessed{DocumentID: id, ProcessingStatus: model.StatusProcessed}
		}

		Convey("When an eligible résumé is processed", func() {
			f.documents.docs["d1"] = resume("d1", longText)
			disp, err := f.pipeline.Handle(ctx, processed("d1"))

			Convey("Then structured data is merged and announced with counts", func() {
				So(err, ShouldBeNil)
				So(disp, ShouldEqual, model.Ack)
				So(f.documents.merged, ShouldContainKey, "d1/"+model.StructuredDataKey)
				ev := f.publisher.last().(model.MetadataExtracted)
				So(ev.StructuredDataAvailable, ShouldBeTrue)
				So(ev.SkillsCount, ShouldEqual, 2)
				So(ev.ExperienceCount, ShouldEqual, 1)
				So(ev.EducationCount, ShouldEqual, 0)
				So(ev.EntityID, ShouldEqual, "C1")
			})
		})

		Convey("When the résumé already has structured data", func() {
			doc := resume("d1", longText)
			doc.Metadata[model.StructuredDataKey] = map[string]any{"skills": []any{}}
			f.documents.docs["d1"] = doc
			disp, err := f.pipeline.Handle(ctx, processed("d1"))

			Convey("Then no AI call is made", func() {
				So(err, ShouldBeNil)
				So(disp, ShouldEqual, model.Skip)
				So(f.extractor.calls, ShouldEqual, 0)
				So(f.publisher.keys(), ShouldBeEmpty)
			})
		})

		ineligible := []struct {
			name string
			doc  *model.Document
		}{
			{"a cover letter", func() *model.Document { d := resume("d1", longText); d.DocumentType = "cover_letter"; return d }()},
			{"a job attachment", func() *model.Document { d := resume("d1", longText); d.EntityType = "job"; return d }()},
			{"a short text", resume("d1", "Go dev")},
		}
		for _, tc := range ineligible {
			Convey("When the document is "+tc.name, func() {
				f.documents.docs["d1"] = tc.doc
				disp, err := f.pipeline.Handle(ctx, processed("d1"))
				So(err, ShouldBeNil)
				So(disp, ShouldEqual, model.Skip)
				So(f.extractor.calls, ShouldEqual, 0)
			})
		}

		Convey("When the document does not exist", func() {
			disp, err := f.pipeline.Handle(ctx, processed("missing"))
			So(err, ShouldBeNil)
			So(disp, ShouldEqual, model.Skip)
		})

		Convey("When processing did not succeed upstream", func() {
			f.documents.docs["d1"] = resume("d1", longText)
			disp, _ := f.pipeline.Handle(ctx, model.DocumentProcessed{DocumentID: "d1", ProcessingStatus: "failed"})
			So(disp, ShouldEqual, model.Skip)
			So(f.extractor.calls, ShouldEqual, 0)
		})

		Convey("When extraction fails", func() {
			f.documents.docs["d1"] = resume("d1", longText)
			f.extractor.err = errors.New("model timeout")
			disp, err := f.pipeline.Handle(ctx, processed("d1"))

			Convey("Then the failure is announced and the event still acked", func() {
				So(err, ShouldBeNil)
				So(disp, ShouldEqual, model.Ack)
				So(f.documents.merged, ShouldBeEmpty)
				ev := f.publisher.last().(model.MetadataExtracted)
				So(ev.StructuredDataAvailable, ShouldBeFalse)
				So(ev.Error, ShouldContainSubstring, "model timeout")
			})
		})
	})
}

type fakeBroker struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	consuming  bool
	closed     bool
	dropped    bool
}

func newFakeBroker() *fakeBroker { return &fakeBroker{deliveries: make(chan amqp.Delivery)} }

func (b *fakeBroker) Dequeue(context.Context) <-chan amqp.Delivery { return b.deliveries }

func (b *fakeBroker) Consume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consuming = true
	return nil
}

func (b *fakeBroker) StopConsuming() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consuming {
		b.consuming = false
		if !b.dropped {
			close(b.deliveries)
		}
	}
	return nil
}

// drop closes the delivery channel the way amqp091 does when the server
// cancels the consumer, while the connection stays up.
func (b *fakeBroker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = true
	close(b.deliveries)
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consuming && !b.closed
}

type countingHandler struct {
	mu    sync.Mutex
	count int
}

func (h *countingHandler) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
}

func signalled(ch <-chan struct{}, within time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(within):
		return false
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		broker := newFakeBroker()
		handler := &countingHandler{}
		svc := service.New(broker, handler, newFixture().pipeline, service.WithWorkerCount(2))

		Convey("Then it reports itself as stopped", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Healthy(), ShouldBeFalse)
		})

		Convey("When it is started", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			broker.deliveries <- amqp.Delivery{RoutingKey: model.EventApplicationCreated}
			broker.deliveries <- amqp.Delivery{RoutingKey: model.EventDocumentProcessed}

			Convey("Then deliveries reach the handler", func() {
				So(svc.Healthy(), ShouldBeTrue)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["brokerHealthy"], ShouldEqual, true)
			})

			Convey("And the broker drops the delivery channel", func() {
				broker.drop()

				Convey("Then the service reports the consumer as lost", func() {
					So(signalled(svc.ConsumerLost(), 2*time.Second), ShouldBeTrue)
					So(svc.Healthy(), ShouldBeFalse)
					stats := svc.GetStats()
					So(stats["consuming"], ShouldEqual, false)
					So(stats["brokerHealthy"], ShouldEqual, true)
					So(svc.Stop(ctx), ShouldBeNil)
				})
			})

			Convey("And stopping drains the workers and closes the broker", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(broker.closed, ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(signalled(svc.ConsumerLost(), 50*time.Millisecond), ShouldBeFalse)
				handler.mu.Lock()
				defer handler.mu.Unlock()
				So(handler.count, ShouldEqual, 2)
			})
		})
	})
}

func TestService_RequestReview(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		f := newFixture()
		svc := service.New(newFakeBroker(), &countingHandler{}, f.pipeline)

		Convey("When a review is requested directly", func() {
			r, err := svc.RequestReview(ctx, model.AnalysisInput{ApplicationID: "A9"})
			So(err, ShouldBeNil)
			So(r.FitScore, ShouldEqual, 85)
			So(f.enricher.calls[0].TriggeredBy, ShouldEqual, "manual")
		})

		Convey("When the application id is missing", func() {
			_, err := svc.RequestReview(ctx, model.AnalysisInput{})
			So(errors.Is(err, model.ErrMalformedEvent), ShouldBeTrue)
			So(f.enricher.calls, ShouldBeEmpty)
		})

		Convey("When no review reader is wired", func() {
			_, err := svc.JobStats(ctx, "J1")
			So(errors.Is(err, service.ErrNoReviewReader), ShouldBeTrue)
		})
	})
}
