package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/okian/aireview/internal/adapters/repository"
	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var dbSeq atomic.Int64

func openTestDB() (*repository.DB, *gorm.DB) {
	dsn := fmt.Sprintf("file:repo-%d?mode=memory&cache=shared", dbSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	So(err, ShouldBeNil)
	sqlDB, err := gdb.DB()
	So(err, ShouldBeNil)
	sqlDB.SetMaxOpenConns(1)

	db := repository.NewWithGorm(gdb)
	So(db.Migrate(context.Background(), true), ShouldBeNil)
	return db, gdb
}

func intPtr(v int) *int { return &v }

func review(app, job string, score int, rec string, at time.Time) *model.FitReview {
	return &model.FitReview{
		ApplicationID:  app,
		CandidateID:    "C-" + app,
		JobID:          job,
		FitScore:       score,
		Recommendation: rec,
		AnalyzedAt:     at,
	}
}

func TestOpen(t *testing.T) {
	Convey("Given a sqlite DSN", t, func() {
		ctx := context.Background()
		dsn := fmt.Sprintf("%sfile:open-%d?mode=memory&cache=shared", repository.SQLitePrefix, dbSeq.Add(1))

		Convey("When the database is opened", func() {
			db, err := repository.Open(ctx, config.Database{DSN: dsn}, repository.WithLogger(logger.Get()))
			So(err, ShouldBeNil)
			defer db.Close()

			Convey("Then it pings, migrates and stores reviews", func() {
				So(db.Ping(ctx), ShouldBeNil)
				So(db.Migrate(ctx, false), ShouldBeNil)
				store := repository.NewReviewStore(db)
				So(store.Create(ctx, review("A1", "J1", 70, model.RecommendationGoodFit, time.Now())), ShouldBeNil)
				got, err := store.FindLatestByApplication(ctx, "A1")
				So(err, ShouldBeNil)
				So(got.FitScore, ShouldEqual, 70)
			})
		})

		Convey("When the sqlite path is empty", func() {
			_, err := repository.Open(ctx, config.Database{DSN: repository.SQLitePrefix})
			So(errors.Is(err, repository.ErrOpenDatabase), ShouldBeTrue)
		})
	})

	Convey("Given an unparseable postgres DSN", t, func() {
		_, err := repository.Open(context.Background(), config.Database{DSN: "postgres://%zz"})
		So(errors.Is(err, repository.ErrOpenDatabase), ShouldBeTrue)
	})
}

func TestReviewStore(t *testing.T) {
	Convey("Given a review store", t, func() {
		ctx := context.Background()
		db, _ := openTestDB()
		defer db.Close()
		store := repository.NewReviewStore(db)
		t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

		Convey("When a review with null optional columns is round-tripped", func() {
			r := review("A1", "J1", 85, model.RecommendationGoodFit, t0)
			So(store.Create(ctx, r), ShouldBeNil)
			So(r.ID, ShouldNotBeEmpty)

			got, err := store.FindByID(ctx, r.ID)
			So(err, ShouldBeNil)
			view := got.View()

			Convey("Then the nested view surfaces zero values instead of nulls", func() {
				So(view.SkillsMatch.MatchPercentage, ShouldEqual, 0)
				So(view.SkillsMatch.MatchedSkills, ShouldResemble, []string{})
				So(view.SkillsMatch.MissingSkills, ShouldResemble, []string{})
				So(view.ExperienceAnalysis.CandidateYears, ShouldEqual, 0)
				So(view.ExperienceAnalysis.RequiredYears, ShouldEqual, 0)
				So(view.ExperienceAnalysis.MeetsRequirement, ShouldBeFalse)

				b, err := json.Marshal(view)
				So(err, ShouldBeNil)
				So(string(b), ShouldNotContainSubstring, "null")
			})
		})

		Convey("When a fully populated review is round-tripped", func() {
			cand, req, meets := 6.5, 4.0, true
			r := review("A1", "J1", 91, model.RecommendationStrongFit, t0)
			r.SkillsMatchPercentage = intPtr(80)
			r.MatchedSkills = []string{"Go", "SQL"}
			r.MissingSkills = []string{"Kafka"}
			r.Strengths = []string{"Depth"}
			r.CandidateYears, r.RequiredYears, r.MeetsExperienceRequirement = &cand, &req, &meets
			So(store.Create(ctx, r), ShouldBeNil)

			got, err := store.FindByID(ctx, r.ID)
			So(err, ShouldBeNil)
			view := got.View()

			Convey("Then the flat columns are exposed as nested fields", func() {
				So(view.SkillsMatch.MatchPercentage, ShouldEqual, 80)
				So(view.SkillsMatch.MatchedSkills, ShouldResemble, []string{"Go", "SQL"})
				So(view.SkillsMatch.MissingSkills, ShouldResemble, []string{"Kafka"})
				So(view.ExperienceAnalysis.CandidateYears, ShouldEqual, 6.5)
				So(view.ExperienceAnalysis.RequiredYears, ShouldEqual, 4.0)
				So(view.ExperienceAnalysis.MeetsRequirement, ShouldBeTrue)
				So(view.Strengths, ShouldResemble, []string{"Depth"})
			})
		})

		Convey("When an application is reviewed twice", func() {
			first := review("A1", "J1", 60, model.RecommendationFairFit, t0)
			second := review("A1", "J1", 75, model.RecommendationGoodFit, t0.Add(time.Hour))
			So(store.Create(ctx, first), ShouldBeNil)
			So(store.Create(ctx, second), ShouldBeNil)

			Convey("Then both rows are kept and the newest is current", func() {
				history, err := store.FindByApplication(ctx, "A1")
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 2)
				So(history[0].ID, ShouldEqual, second.ID)

				latest, err := store.FindLatestByApplication(ctx, "A1")
				So(err, ShouldBeNil)
				So(latest.FitScore, ShouldEqual, 75)
			})
		})

		Convey("When looking up missing rows", func() {
			_, err := store.FindByID(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

			_, err = store.FindLatestByApplication(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When creating without an application id", func() {
			err := store.Create(ctx, &model.FitReview{FitScore: 1})
			So(errors.Is(err, repository.ErrEmptyID), ShouldBeTrue)
		})

		Convey("When listing with filters", func() {
			So(store.Create(ctx, review("A1", "J1", 92, model.RecommendationStrongFit, t0)), ShouldBeNil)
			So(store.Create(ctx, review("A2", "J1", 55, model.RecommendationFairFit, t0.Add(time.Minute))), ShouldBeNil)
			So(store.Create(ctx, review("A3", "J2", 30, model.RecommendationPoorFit, t0.Add(2*time.Minute))), ShouldBeNil)

			Convey("Then job and score bounds narrow the result", func() {
				rows, err := store.List(ctx, model.ReviewFilter{JobID: "J1", MinScore: intPtr(50), MaxScore: intPtr(90)})
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].ApplicationID, ShouldEqual, "A2")
			})

			Convey("Then recommendation and paging apply", func() {
				rows, err := store.List(ctx, model.ReviewFilter{Recommendation: model.RecommendationPoorFit})
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)

				page, err := store.List(ctx, model.ReviewFilter{Limit: 1, Offset: 1})
				So(err, ShouldBeNil)
				So(page, ShouldHaveLength, 1)
				So(page[0].ApplicationID, ShouldEqual, "A2")
			})

			Convey("Then an invalid limit is rejected", func() {
				_, err := store.List(ctx, model.ReviewFilter{Limit: -1})
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})

		Convey("When computing job stats", func() {
			old := review("A1", "J1", 40, model.RecommendationPoorFit, t0)
			old.SkillsMatchPercentage = intPtr(20)
			cur := review("A1", "J1", 80, model.RecommendationGoodFit, t0.Add(time.Hour))
			cur.SkillsMatchPercentage = intPtr(60)
			other := review("A2", "J1", 90, model.RecommendationStrongFit, t0.Add(30*time.Minute))
			for _, r := range []*model.FitReview{old, cur, other, review("A9", "J2", 10, model.RecommendationPoorFit, t0)} {
				So(store.Create(ctx, r), ShouldBeNil)
			}

			stats, err := store.JobStats(ctx, "J1")
			So(err, ShouldBeNil)

			Convey("Then history is counted but averages use the latest review per application", func() {
				So(stats.TotalReviews, ShouldEqual, 3)
				So(stats.Applications, ShouldEqual, 2)
				So(stats.AverageScore, ShouldEqual, 85.0)
				So(stats.AverageSkillsMatch, ShouldEqual, 60.0)
				So(stats.RecommendationCounts[model.RecommendationGoodFit], ShouldEqual, 1)
				So(stats.RecommendationCounts[model.RecommendationStrongFit], ShouldEqual, 1)
				So(stats.RecommendationCounts[model.RecommendationPoorFit], ShouldEqual, 0)
				So(stats.LatestAnalyzedAt.Equal(t0.Add(time.Hour)), ShouldBeTrue)
			})

			Convey("Then an unknown job yields empty stats", func() {
				empty, err := store.JobStats(ctx, "J404")
				So(err, ShouldBeNil)
				So(empty.TotalReviews, ShouldEqual, 0)
				So(empty.LatestAnalyzedAt, ShouldBeNil)
				So(empty.RecommendationCounts, ShouldContainKey, model.RecommendationFairFit)
			})
		})
	})
}

func TestDocumentStore(t *testing.T) {
	Convey("Given a document store", t, func() {
		ctx := context.Background()
		db, gdb := openTestDB()
		defer db.Close()
		store := repository.NewDocumentStore(db)

		So(gdb.Exec(
			"INSERT INTO documents (id, document_type, entity_type, entity_id, processing_status, metadata, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			"d1", "resume", "candidate", "C1", "processed",
			datatypes.JSONMap{"extracted_text": "Experienced Go developer", "pages": float64(2)},
			time.Now().UTC(),
		).Error, ShouldBeNil)

		Convey("When a document is loaded", func() {
			doc, err := store.FindDocument(ctx, "d1")

			Convey("Then its fields and metadata are exposed", func() {
				So(err, ShouldBeNil)
				So(doc.DocumentType, ShouldEqual, "resume")
				So(doc.EntityType, ShouldEqual, "candidate")
				So(doc.ExtractedText(), ShouldEqual, "Experienced Go developer")
				So(doc.HasStructuredData(), ShouldBeFalse)
			})
		})

		Convey("When structured data is merged", func() {
			err := store.MergeMetadata(ctx, "d1", model.StructuredDataKey, model.ResumeStructuredData{
				SourceDocumentID:     "d1",
				ExtractionConfidence: 0.85,
				Skills:               []model.Skill{{Name: "Go"}},
			})
			So(err, ShouldBeNil)

			doc, err := store.FindDocument(ctx, "d1")
			So(err, ShouldBeNil)

			Convey("Then unrelated keys survive", func() {
				So(doc.ExtractedText(), ShouldEqual, "Experienced Go developer")
				So(doc.Metadata["pages"], ShouldEqual, json.Number("2"))

				var raw string
				So(gdb.Raw("SELECT metadata FROM documents WHERE id = ?", "d1").Scan(&raw).Error, ShouldBeNil)
				var column map[string]any
				So(json.Unmarshal([]byte(raw), &column), ShouldBeNil)
				So(column["pages"], ShouldEqual, 2.0)
				So(column["extracted_text"], ShouldEqual, "Experienced Go developer")
				So(column, ShouldContainKey, model.StructuredDataKey)
			})

			Convey("Then the new key is present", func() {
				has, err := store.HasStructuredData(ctx, "d1")
				So(err, ShouldBeNil)
				So(has, ShouldBeTrue)
				sd, ok := doc.Metadata[model.StructuredDataKey].(map[string]any)
				So(ok, ShouldBeTrue)
				So(sd["source_document_id"], ShouldEqual, "d1")
			})
		})

		Convey("When the document does not exist", func() {
			_, err := store.FindDocument(ctx, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(errors.Is(store.MergeMetadata(ctx, "missing", "k", 1), repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the id is empty", func() {
			_, err := store.FindDocument(ctx, "")
			So(errors.Is(err, repository.ErrEmptyID), ShouldBeTrue)
		})
	})
}
