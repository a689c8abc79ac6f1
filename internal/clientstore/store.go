// Package clientstore persists client (care recipient) records and answers
// the name lookups the resolver needs. Records created from conversation
// mentions carry provisional defaults; demographic and insurance fields are
// curated by the care manager afterwards and are never overwritten by the
// extraction pipeline.
package clientstore

import (
	"context"
	"errors"
	"time"
)

// ErrInvalid is wrapped by write methods when the client record fails
// validation (missing identity fields, unknown status).
var ErrInvalid = errors.New("clientstore: invalid client")

// Client status lifecycle values.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// UnknownBirthDate is the sentinel stored when a client is created from a
// conversation that mentioned neither birth date nor age.
var UnknownBirthDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Client is a care recipient managed by one care manager.
type Client struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// Name is the client's name exactly as recorded. Resolution matches on
	// it verbatim after trimming.
	Name string `json:"name"`

	// NameReading is the phonetic (kana) reading. Curated, never extracted.
	NameReading string `json:"name_reading,omitempty"`

	// BirthDate is [UnknownBirthDate] when never provided.
	BirthDate time.Time `json:"birth_date"`

	Gender      string `json:"gender,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`

	// CareLevel is the certified long-term-care level (e.g. "要介護2").
	CareLevel string `json:"care_level,omitempty"`

	// InsuranceNumber is curated by the care manager, never extracted.
	InsuranceNumber string `json:"insurance_number,omitempty"`

	// Status is one of [StatusActive], [StatusInactive], [StatusSuspended].
	Status string `json:"status"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides persistence and lookup for clients.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new client and fills in CreatedAt/UpdatedAt. Returns
	// an error if a client with the same ID already exists.
	Create(ctx context.Context, c *Client) error

	// Get retrieves a client by ID, scoped to the owner.
	// Returns (nil, nil) if not found.
	Get(ctx context.Context, ownerID, id string) (*Client, error)

	// FindByName returns the owner's clients whose name matches exactly,
	// newest first. An empty result is not an error.
	FindByName(ctx context.Context, ownerID, name string) ([]Client, error)

	// ListByOwner returns all of the owner's clients, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Client, error)

	// Update replaces a client's curated fields and bumps UpdatedAt.
	// Returns an error if the client is not found.
	Update(ctx context.Context, c *Client) error

	// UpdateStatus transitions a client's lifecycle status. Returns an
	// error if the client is not found or the status is invalid.
	UpdateStatus(ctx context.Context, ownerID, id, status string) error
}

// ValidStatus reports whether s is a recognised lifecycle status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}
