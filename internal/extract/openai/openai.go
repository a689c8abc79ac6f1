// Package openai provides a care-plan extractor backed by the OpenAI chat
// completions API using native tool calling.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/carescribe/carescribe/internal/extract"
)

// extractionTemperature keeps tool-call output consistent across runs.
const extractionTemperature = 0.1

// Extractor implements extract.Extractor using the OpenAI API.
type Extractor struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the extractor.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Extractor.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI extractor.
func New(apiKey string, model string, opts ...Option) (*Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Extractor{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Compile-time interface assertion.
var _ extract.Extractor = (*Extractor)(nil)

// Extract implements extract.Extractor. It offers the care-plan schema as a
// tool definition and validates the arguments of the model's tool call.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*extract.Fields, error) {
	resp, err := e.client.Chat.Completions.New(ctx, e.buildParams(transcript))
	if err != nil {
		return nil, &extract.ServiceError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, extract.ErrRefused
	}

	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Function.Name == extract.ToolName {
			return extract.ParseArguments(tc.Function.Arguments)
		}
	}
	return nil, extract.ErrRefused
}

// buildParams converts the transcript and tool schema into OpenAI SDK params.
func (e *Extractor) buildParams(transcript string) oai.ChatCompletionNewParams {
	tool := extract.Definition()

	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(extract.SystemPrompt),
			oai.UserMessage(extract.Prompt(transcript)),
		},
		Temperature: param.NewOpt(extractionTemperature),
		Tools: []oai.ChatCompletionToolParam{{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: param.NewOpt(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Parameters),
			},
		}},
	}
}
