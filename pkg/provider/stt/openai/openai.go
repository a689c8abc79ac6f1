// Package openai provides a transcriber backed by the OpenAI audio API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/carescribe/carescribe/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Provider implements stt.Transcriber using the OpenAI audio transcriptions
// endpoint.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
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

// New constructs a new OpenAI transcriber. model may be empty, in which case
// whisper-1 is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
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

	m := oai.AudioModel(model)
	if model == "" {
		m = defaultModel
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: m}, nil
}

// Transcribe implements stt.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.Config) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(audio), fileName(cfg.Codec), mimeType(cfg.Codec)),
	}
	if cfg.Language != "" {
		params.Language = param.NewOpt(normalizeLanguage(cfg.Language))
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

// fileName derives an upload filename from the declared codec. The OpenAI
// API sniffs the container from the filename extension.
func fileName(codec string) string {
	switch strings.ToLower(codec) {
	case "mp3":
		return "audio.mp3"
	case "webm", "webm_opus":
		return "audio.webm"
	case "ogg", "ogg_opus":
		return "audio.ogg"
	case "m4a":
		return "audio.m4a"
	default:
		return "audio.wav"
	}
}

// mimeType derives the upload MIME type from the declared codec.
func mimeType(codec string) string {
	switch strings.ToLower(codec) {
	case "mp3":
		return "audio/mpeg"
	case "webm", "webm_opus":
		return "audio/webm"
	case "ogg", "ogg_opus":
		return "audio/ogg"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

// normalizeLanguage reduces a BCP-47 tag to the ISO-639-1 code the OpenAI
// API expects ("ja-JP" → "ja").
func normalizeLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return tag[:i]
	}
	return tag
}
