package models

import (
	"time"

	"github.com/lib/pq"
)

// RequestStatus tracks the bidding lifecycle of a service request.
type RequestStatus string

const (
	RequestStatusOpen             RequestStatus = "OPEN"
	RequestStatusQuotesReceived   RequestStatus = "QUOTES_RECEIVED"
	RequestStatusProviderSelected RequestStatus = "PROVIDER_SELECTED"
	RequestStatusCancelled        RequestStatus = "CANCELLED"
	RequestStatusExpired          RequestStatus = "EXPIRED"
)

var requestTransitions = map[RequestStatus]map[RequestStatus]struct{}{
	RequestStatusOpen: {
		RequestStatusQuotesReceived:   {},
		RequestStatusProviderSelected: {},
		RequestStatusCancelled:        {},
		RequestStatusExpired:          {},
	},
	RequestStatusQuotesReceived: {
		RequestStatusProviderSelected: {},
		RequestStatusCancelled:        {},
		RequestStatusExpired:          {},
	},
}

// Valid reports whether the status is known.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusOpen, RequestStatusQuotesReceived, RequestStatusProviderSelected, RequestStatusCancelled, RequestStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	_, ok := requestTransitions[s][next]
	return ok
}

// AcceptsQuotes reports whether providers may still bid.
func (s RequestStatus) AcceptsQuotes() bool {
	return s == RequestStatusOpen || s == RequestStatusQuotesReceived
}

// ServiceRequest is a citizen's maintenance problem open for bidding.
type ServiceRequest struct {
	ID                    string         `db:"id" json:"id"`
	CitizenID             string         `db:"citizen_id" json:"citizen_id"`
	DiagnosticID          *string        `db:"diagnostic_id" json:"diagnostic_id,omitempty"`
	ProblemTitle          string         `db:"problem_title" json:"problem_title"`
	ProblemDescription    string         `db:"problem_description" json:"problem_description"`
	ProblemCategory       string         `db:"problem_category" json:"problem_category"`
	AdditionalImages      pq.StringArray `db:"additional_images" json:"additional_images"`
	PreferredProviderType *ProviderType  `db:"preferred_provider_type" json:"preferred_provider_type,omitempty"`
	PreferredServiceDate  *time.Time     `db:"preferred_service_date" json:"preferred_service_date,omitempty"`
	PropertyType          *string        `db:"property_type" json:"property_type,omitempty"`
	PropertyAddress       *string        `db:"property_address" json:"property_address,omitempty"`
	ContactPhone          *string        `db:"contact_phone" json:"contact_phone,omitempty"`
	Status                RequestStatus  `db:"status" json:"status"`
	SelectedQuoteID       *string        `db:"selected_quote_id" json:"selected_quote_id,omitempty"`
	QuotesCount           int            `db:"quotes_count" json:"quotes_count"`
	ViewsCount            int            `db:"views_count" json:"views_count"`
	ExpiresAt             *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// IsPastExpiry reports whether the request's bidding window has closed.
func (r *ServiceRequest) IsPastExpiry(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// ServiceRequestFilter captures list criteria.
type ServiceRequestFilter struct {
	CitizenID  string
	Status     []RequestStatus
	Category   string
	ActiveOnly bool
	Now        time.Time
	Limit      int
	Offset     int
}
