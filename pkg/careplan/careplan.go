// Package careplan defines the shared care-plan types used across all
// CareScribe packages.
//
// These types form the lingua franca between the extractor, the stores, and
// the pipeline orchestrator. They are intentionally minimal — each package
// defines its own domain types, but cross-cutting data structures live here
// to avoid circular imports. Field names double as the wire contract for the
// HTTP API, so the JSON tags follow the persisted snake_case shapes.
package careplan

// Need is a single short-term need or goal extracted from a conversation.
type Need struct {
	// Content is the goal text (e.g., "walk unassisted to the mailbox").
	Content string `json:"content"`

	// Period is the target period (e.g., "3 months").
	Period string `json:"period"`
}

// Service is one planned care service with its delivery cadence.
type Service struct {
	// ServiceType names the kind of service (e.g., "home-visit care",
	// "day care", "rehabilitation").
	ServiceType string `json:"service_type"`

	// Frequency is the delivery cadence (e.g., "twice weekly").
	Frequency string `json:"frequency"`

	// Details holds free-text specifics of the service.
	Details string `json:"details"`
}

// CareLevels lists the recognised long-term-care certification levels, from
// lightest support need to heaviest. The vocabulary follows the Japanese
// long-term-care insurance system, which is the configured locale of the
// surrounding product.
var CareLevels = []string{
	"要支援1",
	"要支援2",
	"要介護1",
	"要介護2",
	"要介護3",
	"要介護4",
	"要介護5",
}
