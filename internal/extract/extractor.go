// Package extract defines the schema-constrained care-plan extractor.
//
// An extractor converts the unstructured transcript of a care-manager /
// client conversation into the structured [Fields] shape. The contract is
// schema-first: the target schema — every field, its type, and whether it is
// required — is handed to the language model as an explicit tool definition,
// and the returned payload is validated against that same schema. Absent
// information is omitted, never guessed, and never parsed out of free-form
// prose.
//
// Implementations must be safe for concurrent use. Each Extract call is a
// single attempt against the backing model; retry policy belongs to the
// caller.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carescribe/carescribe/pkg/careplan"
)

// ErrRefused is returned by Extract when the model declines the request or
// returns no parseable structured payload at all (e.g., prose instead of a
// tool call).
var ErrRefused = errors.New("extract: model returned no structured payload")

// ValidationError reports required schema fields that the model's payload
// failed to supply. It is a non-fatal, per-conversation condition — the
// transcript stays intact and the caller may re-run extraction.
type ValidationError struct {
	// Missing lists the schema names of required fields that were absent or
	// empty in the payload.
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extract: payload missing required fields: %s", strings.Join(e.Missing, ", "))
}

// ServiceError wraps a transport or service failure from the extraction
// backend (timeout, HTTP error, auth failure). Distinct from [ErrRefused]:
// the model never produced an answer.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("extract: service failure: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Fields is the structured care-plan content extracted from one
// conversation. It is transient — the pipeline maps it into a persisted
// report — so it carries no identity or timestamps.
//
// SubjectName and LongTermGoal are the fields declared required to the
// model. Only a missing LongTermGoal fails validation; a payload without a
// subject name is still usable (the pipeline skips client resolution and
// persists the report unlinked).
type Fields struct {
	// SubjectName is the client's name as spoken in the conversation.
	SubjectName string `json:"subject_name"`

	// SubjectAge is the client's age in years. Nil when not mentioned.
	SubjectAge *int `json:"subject_age,omitempty"`

	// CareLevel is the long-term-care certification level
	// (e.g., "要介護2"). See careplan.CareLevels for the vocabulary.
	CareLevel string `json:"care_level,omitempty"`

	// LifeIssues describes difficulties in daily living.
	LifeIssues string `json:"life_issues,omitempty"`

	// LongTermGoal is the overall care goal.
	LongTermGoal string `json:"long_term_goal"`

	// LongTermGoalPeriod is the target period for the long-term goal.
	LongTermGoalPeriod string `json:"long_term_goal_period,omitempty"`

	// ShortTermNeeds lists short-term goals in extraction order.
	ShortTermNeeds []careplan.Need `json:"short_term_needs,omitempty"`

	// Services lists planned services in extraction order.
	Services []careplan.Service `json:"services,omitempty"`

	// Equipment describes welfare equipment needs.
	Equipment string `json:"equipment,omitempty"`

	// Remarks holds anything else worth recording (emergency contacts,
	// family structure, etc.).
	Remarks string `json:"remarks,omitempty"`
}

// Extractor is the abstraction over any schema-constrained extraction
// backend.
type Extractor interface {
	// Extract sends transcript to the model together with the care-plan
	// schema and returns the validated structured fields.
	//
	// Error taxonomy: [ErrRefused] when no structured payload came back,
	// [*ValidationError] when required fields were missing, and
	// [*ServiceError] for transport/service failures. Each call is a single
	// attempt; no internal retries.
	Extract(ctx context.Context, transcript string) (*Fields, error)
}
