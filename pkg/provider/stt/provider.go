// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber wraps a batch transcription service (e.g., a local
// whisper.cpp server or the OpenAI audio API) and converts one recorded
// conversation blob into plain text. The pipeline records whole
// conversations before submitting them, so the interface is deliberately
// batch-shaped; there is no streaming session handle.
//
// Implementations must be safe for concurrent use. Multiple pipeline runs
// may transcribe simultaneously.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned by Transcribe when the service processed the audio
// successfully but detected no speech in it. Callers must treat this
// differently from a transport error: the audio was heard, it was just
// silent or unintelligible.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Config describes the audio format and recognition hints for a
// transcription request. Zero values fall back to provider defaults.
type Config struct {
	// Codec is the audio encoding of the submitted bytes (e.g., "wav",
	// "pcm16", "webm"). Providers that only accept one container may reject
	// other values.
	Codec string

	// SampleRate is the audio sample rate in Hz (e.g., 16000).
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "ja-JP").
	// An empty string uses the provider's configured default.
	Language string
}

// Transcriber is the abstraction over any batch speech-to-text backend.
//
// Transcribe converts audio into plain text. It returns [ErrNoSpeech] when
// the service reports no recognisable speech, and any other error for
// transport or service failures. An empty string with a nil error is also a
// legal result for providers that cannot distinguish silence.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, cfg Config) (string, error)
}
