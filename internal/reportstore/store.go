// Package reportstore persists care-plan reports, the structured output of
// the extraction pipeline. A report may reference the transcription it was
// extracted from and the client it concerns; both links are optional so a
// report survives upstream gaps (manual text input, unresolvable subject).
package reportstore

import (
	"context"
	"errors"
	"time"

	"github.com/carescribe/carescribe/pkg/careplan"
)

// ErrInvalid is wrapped by write methods when the report is missing its
// identity fields (id, owner_id). Content fields are never validated here:
// the store is a pure mapping write, and required-ness of extracted fields
// is the extraction contract's concern.
var ErrInvalid = errors.New("reportstore: invalid report")

// Report is one persisted care-plan report.
type Report struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// TranscriptionID links the source transcription. Nil for reports
	// created from manually entered text.
	TranscriptionID *string `json:"transcription_id,omitempty"`

	// ClientID links the resolved client. Nil when the conversation named
	// no subject or resolution failed.
	ClientID *string `json:"client_id,omitempty"`

	SubjectName        string             `json:"subject_name,omitempty"`
	SubjectAge         *int               `json:"subject_age,omitempty"`
	CareLevel          string             `json:"care_level,omitempty"`
	LifeIssues         string             `json:"life_issues,omitempty"`
	LongTermGoal       string             `json:"long_term_goal"`
	LongTermGoalPeriod string             `json:"long_term_goal_period,omitempty"`
	ShortTermNeeds     []careplan.Need    `json:"short_term_needs"`
	Services           []careplan.Service `json:"services"`
	Equipment          string             `json:"equipment,omitempty"`
	Remarks            string             `json:"remarks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides CRUD operations for care-plan reports.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new report and fills in CreatedAt/UpdatedAt. Returns
	// an error if a report with the same ID already exists.
	Create(ctx context.Context, r *Report) error

	// Get retrieves a report by ID, scoped to the owner.
	// Returns (nil, nil) if not found.
	Get(ctx context.Context, ownerID, id string) (*Report, error)

	// ListByOwner returns the owner's reports, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Report, error)

	// Update replaces a report's content fields and bumps UpdatedAt.
	// Returns an error if the report is not found.
	Update(ctx context.Context, r *Report) error

	// Delete removes a report by ID, scoped to the owner. Deleting a
	// non-existent report is not an error.
	Delete(ctx context.Context, ownerID, id string) error
}
