package enrichment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/aireview/internal/adapters/enrichment"
	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const applicationJSON = `{
  "data": {
    "id": 17,
    "candidate_id": "C1",
    "job_id": "J1",
    "job": {"id": "J1", "title": "Backend Engineer", "description": "Go services", "location": "Berlin", "required_experience_years": 4},
    "candidate": {"id": "C1", "location": "Hamburg"},
    "job_requirements": [
      {"description": "Go", "requirement_type": "skill", "is_mandatory": true},
      {"description": "Kafka", "requirement_type": "skill", "is_mandatory": false},
      {"description": "BSc in CS", "requirement_type": "education", "is_mandatory": true}
    ],
    "documents": [
      {"id": "d1", "document_type": "resume", "metadata": {"extracted_text": "first text"}},
      {"id": "d2", "document_type": "cover_letter", "metadata": {}},
      {"id": "d3", "document_type": "resume", "metadata": {"extracted_text": "second text"}}
    ],
    "pre_screen_answers": [{"question_text": "Notice period?", "answer_text": "One month"}]
  }
}`

func upstream(status int, body string, hits *int32, seen *http.Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		*seen = *r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newResolver(base string) *enrichment.Resolver {
	return enrichment.NewResolver(config.Upstream{
		BaseURL:      base,
		ServiceName:  "ai-review",
		ServiceToken: "secret",
		Timeout:      2 * time.Second,
	})
}

func TestEnrich(t *testing.T) {
	Convey("Given an enrichment resolver", t, func() {
		ctx := context.Background()
		var hits int32
		var seen http.Request

		Convey("When the input is already complete", func() {
			srv := upstream(http.StatusOK, applicationJSON, &hits, &seen)
			defer srv.Close()
			in := model.AnalysisInput{
				ApplicationID:  "A1",
				JobTitle:       "Engineer",
				JobDescription: "Build",
				RequiredSkills: []string{"Go"},
			}
			out, err := newResolver(srv.URL).Enrich(ctx, in)

			Convey("Then no request is made and the input is returned", func() {
				So(err, ShouldBeNil)
				So(atomic.LoadInt32(&hits), ShouldEqual, 0)
				So(out, ShouldResemble, in)
			})
		})

		Convey("When the input only carries ids", func() {
			srv := upstream(http.StatusOK, applicationJSON, &hits, &seen)
			defer srv.Close()
			out, err := newResolver(srv.URL).Enrich(ctx, model.AnalysisInput{ApplicationID: "A1", AutoTransition: true})

			Convey("Then the application is fetched with its relations", func() {
				So(err, ShouldBeNil)
				So(seen.URL.Path, ShouldEqual, "/applications/A1")
				So(seen.URL.Query().Get("include"), ShouldEqual, enrichment.Include)
				So(seen.Header.Get(enrichment.HeaderInternalService), ShouldEqual, "ai-review")
				So(seen.Header.Get(enrichment.HeaderServiceToken), ShouldEqual, "secret")
			})

			Convey("Then every document's text is joined in order", func() {
				So(out.ResumeText, ShouldEqual, "first text"+enrichment.DocumentSeparator+"second text")
				So(out.DocumentCount, ShouldEqual, 3)
			})

			Convey("Then skills are split by mandatory flag", func() {
				So(out.RequiredSkills, ShouldResemble, []string{"Go"})
				So(out.PreferredSkills, ShouldResemble, []string{"Kafka"})
				So(out.Requirements, ShouldHaveLength, 3)
				So(out.Requirements[2], ShouldResemble, model.JobRequirement{Description: "BSc in CS", Type: "education", Mandatory: true})
			})

			Convey("Then job, candidate and pre-screen data are merged", func() {
				So(out.CandidateID, ShouldEqual, "C1")
				So(out.JobID, ShouldEqual, "J1")
				So(out.JobTitle, ShouldEqual, "Backend Engineer")
				So(out.JobLocation, ShouldEqual, "Berlin")
				So(out.CandidateLocation, ShouldEqual, "Hamburg")
				So(*out.RequiredExperienceYears, ShouldEqual, 4.0)
				So(out.PreScreenAnswers, ShouldResemble, []model.PreScreenAnswer{{Question: "Notice period?", Answer: "One month"}})
				So(out.AutoTransition, ShouldBeTrue)
			})
		})

		Convey("When no document has extracted text", func() {
			srv := upstream(http.StatusOK, `{"id":"A2","documents":[{"id":"d1","metadata":{}},{"id":"d2"}]}`, &hits, &seen)
			defer srv.Close()
			out, err := newResolver(srv.URL).Enrich(ctx, model.AnalysisInput{ApplicationID: "A2"})

			Convey("Then the text is empty and the count is carried", func() {
				So(err, ShouldBeNil)
				So(out.ResumeText, ShouldEqual, "")
				So(out.DocumentCount, ShouldEqual, 2)
			})
		})

		Convey("When upstream returns a non-success status", func() {
			srv := upstream(http.StatusNotFound, `{"error":"no such application"}`, &hits, &seen)
			defer srv.Close()
			_, err := newResolver(srv.URL).Enrich(ctx, model.AnalysisInput{ApplicationID: "A404"})

			Convey("Then the error is ErrUpstreamStatus", func() {
				So(errors.Is(err, enrichment.ErrUpstreamStatus), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "404")
			})
		})

		Convey("When upstream returns garbage", func() {
			srv := upstream(http.StatusOK, `<html>`, &hits, &seen)
			defer srv.Close()
			_, err := newResolver(srv.URL).Enrich(ctx, model.AnalysisInput{ApplicationID: "A1"})
			So(errors.Is(err, enrichment.ErrUpstreamResponse), ShouldBeTrue)
		})

		Convey("When no base url is configured", func() {
			_, err := newResolver("").Enrich(ctx, model.AnalysisInput{ApplicationID: "A1"})
			So(errors.Is(err, enrichment.ErrNotConfigured), ShouldBeTrue)
		})
	})
}
