// Package feedback provides clinician feedback storage for antibiotic
// recommendations. It stores corrections and agreements so guideline
// maintainers can triage discrepancies between the engine and bedside
// judgment.
package feedback

import (
	"context"
	"io"
	"time"
)

// Type categorizes what the clinician disagreed with.
type Type string

const (
	TypeIncorrectDrug            Type = "incorrect_drug"
	TypeIncorrectDose            Type = "incorrect_dose"
	TypeContraindicationMissed   Type = "contraindication_missed"
	TypeAllergyMisclassification Type = "allergy_misclassification"
	TypeMissingGuideline         Type = "missing_guideline"
	TypeAgreement                Type = "agreement"
	TypeOther                    Type = "other"
)

// Priority drives the review queue ordering.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// PriorityFor maps a feedback type to its review priority. Patient-safety
// types are always critical.
func PriorityFor(t Type) Priority {
	switch t {
	case TypeIncorrectDrug, TypeContraindicationMissed, TypeAllergyMisclassification:
		return PriorityCritical
	case TypeIncorrectDose, TypeMissingGuideline:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Submission is one clinician's feedback on a recommendation.
type Submission struct {
	ID                 int64     `json:"id,omitempty"`
	RequestID          string    `json:"request_id"`
	InfectionCategory  string    `json:"infection_category"`
	AllergyStatus      string    `json:"allergy_status,omitempty"`
	FeedbackType       Type      `json:"feedback_type"`
	RecommendedRegimen string    `json:"recommended_regimen"`
	ExpectedRegimen    string    `json:"expected_regimen,omitempty"`
	Comment            string    `json:"comment,omitempty"`
	Priority           Priority  `json:"priority"`
	Reviewed           bool      `json:"reviewed"`
	Reviewer           string    `json:"reviewer,omitempty"`
	ReviewNotes        string    `json:"review_notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Stats summarizes the feedback backlog for the diagnostics surface.
type Stats struct {
	Total         int64            `json:"total"`
	PendingReview int64            `json:"pending_review"`
	ByType        map[string]int64 `json:"by_type"`
	ByPriority    map[string]int64 `json:"by_priority"`
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Feedback for the same
	// request_id + feedback_type is updated in place.
	Save(ctx context.Context, sub *Submission) error

	// Get retrieves feedback for a request and type, nil when absent.
	Get(ctx context.Context, requestID string, feedbackType Type) (*Submission, error)

	// List returns feedback entries newest first with pagination.
	List(ctx context.Context, limit, offset int) ([]*Submission, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Stats aggregates totals by type and priority.
	Stats(ctx context.Context) (*Stats, error)

	// MarkReviewed records the reviewer's disposition for an entry.
	MarkReviewed(ctx context.Context, id int64, reviewer, notes string) error

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Count      int           `json:"count"`
	Feedback   []*Submission `json:"feedback"`
}
