// Package transcriptstore persists the transcripts produced by each care
// conversation. A transcript is immutable once written: re-running
// extraction never re-transcribes, and downstream failures never delete the
// text.
package transcriptstore

import (
	"context"
	"time"
)

// Transcription is one stored conversation transcript.
type Transcription struct {
	// ID uniquely identifies the transcription.
	ID string `json:"id"`

	// OwnerID is the care manager the transcription belongs to. Every read
	// path filters by it.
	OwnerID string `json:"owner_id"`

	// Text is the transcript content. May be empty when the audio contained
	// no recognisable speech.
	Text string `json:"text"`

	// SourceAudioName is the original audio file name, if any.
	SourceAudioName string `json:"source_audio_name,omitempty"`

	// CreatedAt is set by the store on Save.
	CreatedAt time.Time `json:"created_at"`
}

// Store provides persistence for transcriptions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts a new transcription and fills in CreatedAt. Returns an
	// error if a transcription with the same ID already exists.
	Save(ctx context.Context, tr *Transcription) error

	// Get retrieves a transcription by ID, scoped to the owner.
	// Returns (nil, nil) if not found.
	Get(ctx context.Context, ownerID, id string) (*Transcription, error)

	// ListByOwner returns the owner's transcriptions, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Transcription, error)
}
