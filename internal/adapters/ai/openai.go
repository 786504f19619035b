package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/aireview/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OpenAIClient talks to an OpenAI-compatible chat-completion API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	configured  bool
}

// NewOpenAI builds a client from cfg. A missing key does not fail
// construction; every call then returns ErrMissingAPIKey.
func NewOpenAI(cfg config.AI) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	oc.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		configured:  strings.TrimSpace(cfg.APIKey) != "",
	}
}

// Complete sends a system+user pair and requests a JSON object reply.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if !c.configured {
		return Response{}, ErrMissingAPIKey
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{}, ErrEmptyResponse
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return Response{Content: resp.Choices[0].Message.Content, Model: model}, nil
}
