// Package anyllm provides a care-plan extractor backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports Gemini, Anthropic, OpenAI, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	e, err := anyllm.NewGemini("gemini-2.0-flash")
//	e, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/carescribe/carescribe/internal/extract"
)

// extractionTemperature keeps the model close to the transcript wording
// instead of paraphrasing field contents.
const extractionTemperature = 0.1

// Extractor implements extract.Extractor by wrapping github.com/mozilla-ai/any-llm-go.
type Extractor struct {
	backend anyllmlib.Provider
	model   string
}

// New creates an Extractor backed by the given LLM provider name.
//
// providerName is one of: "gemini", "anthropic", "openai", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gemini-2.0-flash", "claude-3-5-sonnet-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// If no API key option is provided, the backend falls back to the relevant
// environment variable (e.g., GEMINI_API_KEY, ANTHROPIC_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Extractor, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Extractor{backend: backend, model: model}, nil
}

// NewGemini creates an Extractor backed by Google Gemini.
// Without options, it reads the GEMINI_API_KEY or GOOGLE_API_KEY environment variable.
func NewGemini(model string, opts ...anyllmlib.Option) (*Extractor, error) {
	return New("gemini", model, opts...)
}

// NewAnthropic creates an Extractor backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Extractor, error) {
	return New("anthropic", model, opts...)
}

// NewOllama creates an Extractor backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Extractor, error) {
	return New("ollama", model, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "gemini":
		return gemini.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: gemini, anthropic, openai, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Extract implements extract.Extractor. It offers the care-plan schema as a
// tool definition and validates the arguments of the model's tool call.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*extract.Fields, error) {
	resp, err := e.backend.Completion(ctx, e.buildParams(transcript))
	if err != nil {
		return nil, &extract.ServiceError{Err: fmt.Errorf("anyllm: completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, extract.ErrRefused
	}

	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Function.Name != extract.ToolName {
			continue
		}
		return extract.ParseArguments(tc.Function.Arguments)
	}

	return nil, extract.ErrRefused
}

// buildParams converts the transcript into anyllm CompletionParams carrying
// the care-plan tool definition.
func (e *Extractor) buildParams(transcript string) anyllmlib.CompletionParams {
	def := extract.Definition()
	temp := extractionTemperature

	return anyllmlib.CompletionParams{
		Model: e.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: extract.SystemPrompt},
			{Role: anyllmlib.RoleUser, Content: extract.Prompt(transcript)},
		},
		Temperature: &temp,
		Tools: []anyllmlib.Tool{
			{
				Type: "function",
				Function: anyllmlib.Function{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			},
		},
	}
}
