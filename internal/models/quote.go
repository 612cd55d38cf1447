package models

import (
	"time"

	"github.com/lib/pq"
)

// QuoteStatus tracks a provider bid.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "PENDING"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusRejected  QuoteStatus = "REJECTED"
	QuoteStatusWithdrawn QuoteStatus = "WITHDRAWN"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
)

var quoteTransitions = map[QuoteStatus]map[QuoteStatus]struct{}{
	QuoteStatusPending: {
		QuoteStatusAccepted:  {},
		QuoteStatusRejected:  {},
		QuoteStatusWithdrawn: {},
		QuoteStatusExpired:   {},
	},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	_, ok := quoteTransitions[s][next]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s QuoteStatus) Terminal() bool {
	return len(quoteTransitions[s]) == 0
}

// Quote validity and duration bounds.
const (
	DefaultQuoteValidityDays = 30
	MaxQuoteValidityDays     = 90
)

// Quote is a provider's priced bid against a service request. CostBreakdown
// holds the encoded breakdown text.
type Quote struct {
	ID                    string         `db:"id" json:"id"`
	RequestID             string         `db:"request_id" json:"request_id"`
	ProviderID            string         `db:"provider_id" json:"provider_id"`
	EstimatedCost         float64        `db:"estimated_cost" json:"estimated_cost"`
	CostBreakdown         string         `db:"cost_breakdown" json:"-"`
	EstimatedDurationDays int            `db:"estimated_duration_days" json:"estimated_duration_days"`
	TechnicalAssessment   string         `db:"technical_assessment" json:"technical_assessment"`
	ProposedSolution      string         `db:"proposed_solution" json:"proposed_solution"`
	MaterialsIncluded     bool           `db:"materials_included" json:"materials_included"`
	WarrantyPeriodMonths  int            `db:"warranty_period_months" json:"warranty_period_months"`
	TermsAndConditions    *string        `db:"terms_and_conditions" json:"terms_and_conditions,omitempty"`
	ValidityPeriodDays    int            `db:"validity_period_days" json:"validity_period_days"`
	Attachments           pq.StringArray `db:"attachments" json:"attachments"`
	Status                QuoteStatus    `db:"status" json:"status"`
	RejectionReason       *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt           time.Time      `db:"submitted_at" json:"submitted_at"`
	ExpiresAt             time.Time      `db:"expires_at" json:"expires_at"`
	AcceptedAt            *time.Time     `db:"accepted_at" json:"accepted_at,omitempty"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// IsExpired reports whether a pending quote has outlived its validity window.
func (q *Quote) IsExpired(now time.Time) bool {
	return q.Status == QuoteStatusPending && now.After(q.ExpiresAt)
}

// QuoteFilter captures list criteria.
type QuoteFilter struct {
	RequestID  string
	ProviderID string
	Status     []QuoteStatus
	Limit      int
	Offset     int
}
