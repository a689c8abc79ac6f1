// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber in unit tests to feed controlled transcription results
// without a live speech-to-text backend. All fields are safe to set before
// calling any method; mutating them during a concurrent call is the caller's
// responsibility.
//
// Example:
//
//	m := &mock.Transcriber{Text: "こんにちは"}
//	text, err := m.Transcribe(ctx, audio, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/carescribe/carescribe/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Audio is the audio blob passed to Transcribe.
	Audio []byte

	// Cfg is the configuration passed to Transcribe.
	Cfg stt.Config
}

// Transcriber is a mock implementation of stt.Transcriber.
// Zero values cause Transcribe to return ("", nil). Set Err to inject errors.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned by Transcribe instead of Text.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the configured Text or Err.
func (t *Transcriber) Transcribe(_ context.Context, audio []byte, cfg stt.Config) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, Call{Audio: audio, Cfg: cfg})
	if t.Err != nil {
		return "", t.Err
	}
	return t.Text, nil
}

// CallCount returns the number of recorded Transcribe invocations.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
