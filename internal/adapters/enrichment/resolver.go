// Package enrichment hydrates minimal event payloads into complete analysis
// inputs from the upstream system of record.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DocumentSeparator joins the extracted text of multiple documents.
const DocumentSeparator = "\n\n=== NEXT DOCUMENT ===\n\n"

// Include lists the relations requested with every application.
const Include = "job,candidate,job_requirements,documents,pre_screen_answers"

// Header names used to authenticate internal calls.
const (
	HeaderInternalService = "X-Internal-Service"
	HeaderServiceToken    = "X-Service-Token"
)

const maxErrorBody = 512

// Resolver fetches application data over HTTP.
type Resolver struct {
	baseURL string
	service string
	token   string
	client  *http.Client
	log     logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver builds a resolver for cfg.
func NewResolver(cfg config.Upstream, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		service: cfg.ServiceName,
		token:   cfg.ServiceToken,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logger.Get().Named("enrichment"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enrich returns in unchanged when it already carries a title, description
// and required skills. Otherwise the upstream application is fetched and
// merged into a copy of in; caller-supplied values win.
func (r *Resolver) Enrich(ctx context.Context, in model.AnalysisInput) (model.AnalysisInput, error) {
	if !in.NeedsEnrichment() {
		metrics.RecordEnrichment("skipped", 0)
		return in, nil
	}

	start := time.Now()
	rec, err := r.fetch(ctx, in.ApplicationID)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordEnrichment("error", latency)
		return in, err
	}
	metrics.RecordEnrichment("fetched", latency)

	return r.merge(ctx, in, rec), nil
}

func (r *Resolver) fetch(ctx context.Context, applicationID string) (applicationRecord, error) {
	if r.baseURL == "" {
		return applicationRecord{}, ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/applications/%s?include=%s", r.baseURL, url.PathEscape(applicationID), Include)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return applicationRecord{}, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderInternalService, r.service)
	if r.token != "" {
		req.Header.Set(HeaderServiceToken, r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return applicationRecord{}, fmt.Errorf("fetch application %s: %w", applicationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return applicationRecord{}, fmt.Errorf("%w: %d for application %s: %s",
			ErrUpstreamStatus, resp.StatusCode, applicationID, strings.TrimSpace(string(snippet)))
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return applicationRecord{}, fmt.Errorf("%w: %v", ErrUpstreamResponse, err)
	}
	return decodeRecord(body)
}

func (r *Resolver) merge(ctx context.Context, in model.AnalysisInput, rec applicationRecord) model.AnalysisInput {
	out := in
	out.CandidateID = firstNonEmpty(in.CandidateID, rec.CandidateID, rec.Candidate.ID)
	out.JobID = firstNonEmpty(in.JobID, rec.JobID, rec.Job.ID)
	out.JobTitle = firstNonEmpty(in.JobTitle, rec.Job.Title)
	out.JobDescription = firstNonEmpty(in.JobDescription, rec.Job.Description)
	out.JobLocation = firstNonEmpty(in.JobLocation, rec.Job.Location)
	out.CandidateLocation = firstNonEmpty(in.CandidateLocation, rec.Candidate.Location)
	if out.RequiredExperienceYears == nil {
		out.RequiredExperienceYears = rec.Job.RequiredExperienceYears
	}

	var required, preferred []string
	requirements := make([]model.JobRequirement, 0, len(rec.JobRequirements))
	for _, row := range rec.JobRequirements {
		desc := strings.TrimSpace(row.Description)
		if desc == "" {
			continue
		}
		kind := row.kind()
		requirements = append(requirements, model.JobRequirement{Description: desc, Type: kind, Mandatory: row.IsMandatory})
		if kind != model.RequirementSkill {
			continue
		}
		if row.IsMandatory {
			required = append(required, desc)
		} else {
			preferred = append(preferred, desc)
		}
	}
	if len(out.RequiredSkills) == 0 {
		out.RequiredSkills = required
	}
	if len(out.PreferredSkills) == 0 {
		out.PreferredSkills = preferred
	}
	if len(out.Requirements) == 0 {
		out.Requirements = requirements
	}

	if len(out.PreScreenAnswers) == 0 {
		for _, p := range rec.PreScreenAnswers {
			pair := p.pair()
			if strings.TrimSpace(pair.Question) == "" {
				continue
			}
			out.PreScreenAnswers = append(out.PreScreenAnswers, pair)
		}
	}

	if strings.TrimSpace(out.ResumeText) == "" {
		out.ResumeText = r.joinDocumentText(ctx, in.ApplicationID, rec.Documents)
	}
	out.DocumentCount = len(rec.Documents)
	return out
}

// joinDocumentText concatenates every document's extracted text in order.
func (r *Resolver) joinDocumentText(ctx context.Context, applicationID string, docs []documentRecord) string {
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		text, _ := d.Metadata[model.ExtractedTextKey].(string)
		if strings.TrimSpace(text) == "" {
			r.log.Info(ctx, "document has no extracted text",
				logger.String("application_id", applicationID),
				logger.String("document_id", d.ID),
				logger.String("document_type", d.DocumentType))
			continue
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, DocumentSeparator)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
