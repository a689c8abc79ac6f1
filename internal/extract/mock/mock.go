// Package mock provides a test double for the extract.Extractor interface.
//
// Use Extractor in unit tests to verify that the pipeline passes the expected
// transcripts and to feed controlled extraction results without a live LLM
// backend. All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	e := &mock.Extractor{
//	    Fields: &extract.Fields{SubjectName: "山田太郎", LongTermGoal: "自宅での生活を続ける"},
//	}
//	fields, err := e.Extract(ctx, transcript)
package mock

import (
	"context"
	"sync"

	"github.com/carescribe/carescribe/internal/extract"
)

// Call records a single invocation of Extract.
type Call struct {
	// Ctx is the context passed to Extract.
	Ctx context.Context
	// Transcript is the transcript text passed to Extract.
	Transcript string
}

// Extractor is a mock implementation of extract.Extractor.
// Zero values cause Extract to return nil, nil. Set Err to inject an error.
type Extractor struct {
	mu sync.Mutex

	// Fields is returned by Extract when Err is nil.
	Fields *extract.Fields

	// Err, if non-nil, is returned as the error from Extract.
	Err error

	// Calls records every invocation of Extract in order.
	Calls []Call
}

// Extract records the call and returns the configured Fields and Err.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*extract.Fields, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, Call{Ctx: ctx, Transcript: transcript})
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Fields, nil
}

// CallCount returns the number of times Extract was called.
func (e *Extractor) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
