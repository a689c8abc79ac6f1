// Package resolve links an extracted subject name to a client record,
// creating a provisional record when no match exists.
//
// Matching is exact on the trimmed name. Fuzzy similarity is surfaced only
// as suggestions for the care manager to review; it never changes which
// record a report is linked to, so a misheard name can create a duplicate
// but can never silently attach a report to the wrong person.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/carescribe/carescribe/internal/clientstore"
)

// maxSuggestionDistance is the Levenshtein ceiling for a near-miss
// suggestion. Two edits covers the common transcription slips (one wrong
// kanji, a dropped or doubled character) without pulling in unrelated names.
const maxSuggestionDistance = 2

// ErrEmptyName is returned when Resolve is called without a subject name.
// Callers skip resolution entirely in that case; reaching the resolver with
// an empty name is a contract violation, not a lookup miss.
var ErrEmptyName = errors.New("resolve: subject name must not be empty")

// Hints carries optional conversation-derived attributes applied only when
// a new client record is provisioned. Existing records are never mutated.
type Hints struct {
	// Age in years, if mentioned.
	Age *int

	// CareLevel, if mentioned (e.g. "要介護2").
	CareLevel string
}

// Resolution is the outcome of resolving one subject name.
type Resolution struct {
	// ClientID is the linked client record.
	ClientID string `json:"client_id"`

	// Created reports whether a new provisional record was created.
	Created bool `json:"created"`

	// Ambiguous reports that more than one record matched the name exactly
	// and the most recently created one was chosen.
	Ambiguous bool `json:"ambiguous"`

	// CandidateIDs lists every exact match when Ambiguous is true, newest
	// first (so CandidateIDs[0] == ClientID).
	CandidateIDs []string `json:"candidate_ids,omitempty"`

	// Suggestions lists existing client names within edit distance of an
	// unmatched name, closest first. Advisory only.
	Suggestions []string `json:"suggestions,omitempty"`
}

// Resolver finds or creates client records by name.
type Resolver struct {
	clients clientstore.Store
	now     func() time.Time
	newID   func() string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source used for age-derived birth dates.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithIDFunc overrides the ID generator for newly provisioned records.
func WithIDFunc(newID func() string) Option {
	return func(r *Resolver) { r.newID = newID }
}

// New creates a Resolver backed by the given client store.
func New(clients clientstore.Store, opts ...Option) *Resolver {
	r := &Resolver{
		clients: clients,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve links subjectName to a client record owned by ownerID.
//
// Exactly one exact match links to that record without modifying it, even
// when hints disagree with its stored attributes. Multiple matches link to
// the most recently created record and flag the resolution as ambiguous.
// No match provisions a new record carrying the hints.
//
// Two concurrent resolutions of the same unseen name may both provision a
// record; the duplicate surfaces as an ambiguity on the next resolution
// rather than failing either caller.
func (r *Resolver) Resolve(ctx context.Context, ownerID, subjectName string, hints Hints) (*Resolution, error) {
	name := strings.TrimSpace(subjectName)
	if name == "" {
		return nil, ErrEmptyName
	}

	matches, err := r.clients.FindByName(ctx, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("resolve: lookup %q: %w", name, err)
	}

	switch len(matches) {
	case 0:
		return r.provision(ctx, ownerID, name, hints)
	case 1:
		return &Resolution{ClientID: matches[0].ID}, nil
	default:
		res := &Resolution{
			ClientID:  matches[0].ID,
			Ambiguous: true,
		}
		for _, m := range matches {
			res.CandidateIDs = append(res.CandidateIDs, m.ID)
		}
		return res, nil
	}
}

// provision creates a new client record for an unmatched name.
func (r *Resolver) provision(ctx context.Context, ownerID, name string, hints Hints) (*Resolution, error) {
	c := &clientstore.Client{
		ID:        r.newID(),
		OwnerID:   ownerID,
		Name:      name,
		BirthDate: r.birthDateFromAge(hints.Age),
		CareLevel: hints.CareLevel,
		Status:    clientstore.StatusActive,
	}
	if err := r.clients.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("resolve: create client %q: %w", name, err)
	}

	res := &Resolution{ClientID: c.ID, Created: true}
	res.Suggestions = r.suggestions(ctx, ownerID, name)
	return res, nil
}

// birthDateFromAge derives a nominal birth date from an age hint: January 1
// of the year the client turned the stated age. Without a hint the store
// sentinel marks the date unknown.
func (r *Resolver) birthDateFromAge(age *int) time.Time {
	if age == nil || *age <= 0 {
		return clientstore.UnknownBirthDate
	}
	year := r.now().Year() - *age
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// suggestions returns existing client names within edit distance of name,
// closest first. A failed listing degrades to no suggestions; the
// resolution itself already succeeded.
func (r *Resolver) suggestions(ctx context.Context, ownerID, name string) []string {
	existing, err := r.clients.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil
	}

	type scored struct {
		name string
		dist int
	}
	var near []scored
	seen := map[string]struct{}{name: {}}
	for _, c := range existing {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		d := matchr.Levenshtein(name, c.Name)
		if d > maxSuggestionDistance {
			continue
		}
		seen[c.Name] = struct{}{}
		near = append(near, scored{name: c.Name, dist: d})
	}

	sort.SliceStable(near, func(i, j int) bool { return near[i].dist < near[j].dist })

	out := make([]string, 0, len(near))
	for _, s := range near {
		out = append(out, s.name)
	}
	return out
}
