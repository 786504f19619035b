package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/aireview/internal/config"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the slice of genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient talks to the Gemini API through google.golang.org/genai.
type GeminiClient struct {
	models      contentGenerator
	model       string
	temperature float32
}

// NewGemini builds a client from cfg. A missing key yields a client whose
// calls return ErrMissingAPIKey.
func NewGemini(ctx context.Context, cfg config.AI) (*GeminiClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultGeminiModel
	}
	g := &GeminiClient{model: model, temperature: cfg.Temperature}

	if strings.TrimSpace(cfg.APIKey) == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

// newGeminiWithGenerator is used by tests to inject a fake backend.
func newGeminiWithGenerator(gen contentGenerator, model string) *GeminiClient {
	return &GeminiClient{models: gen, model: model}
}

// Complete sends the system prompt as a system instruction and asks for an
// application/json reply.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	if g.models == nil {
		return Response{}, ErrMissingAPIKey
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(g.temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.User), cfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return Response{}, ErrEmptyResponse
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyResponse
	}

	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return Response{Content: text, Model: model}, nil
}
