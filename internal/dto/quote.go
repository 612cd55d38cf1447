package dto

import (
	"time"

	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/costbreakdown"
)

// CreateQuote is a provider's bid on a service request.
type CreateQuote struct {
	RequestID             string                   `json:"request_id" validate:"required"`
	EstimatedCost         float64                  `json:"estimated_cost" validate:"gte=0"`
	CostBreakdown         *costbreakdown.Breakdown `json:"cost_breakdown" validate:"required"`
	EstimatedDurationDays int                      `json:"estimated_duration_days" validate:"min=1,max=365"`
	TechnicalAssessment   string                   `json:"technical_assessment" validate:"required,max=2000"`
	ProposedSolution      string                   `json:"proposed_solution" validate:"required,max=2000"`
	MaterialsIncluded     bool                     `json:"materials_included"`
	WarrantyPeriodMonths  int                      `json:"warranty_period_months" validate:"min=0,max=120"`
	TermsAndConditions    *string                  `json:"terms_and_conditions" validate:"omitempty,max=2000"`
	ValidityPeriodDays    int                      `json:"validity_period_days" validate:"omitempty,min=1,max=90"`
	Attachments           []string                 `json:"attachments" validate:"omitempty,dive,required"`
}

// UpdateQuote patches a pending quote. Nil fields are left untouched.
type UpdateQuote struct {
	EstimatedCost         *float64                 `json:"estimated_cost" validate:"omitempty,gte=0"`
	CostBreakdown         *costbreakdown.Breakdown `json:"cost_breakdown"`
	EstimatedDurationDays *int                     `json:"estimated_duration_days" validate:"omitempty,min=1,max=365"`
	TechnicalAssessment   *string                  `json:"technical_assessment" validate:"omitempty,min=1,max=2000"`
	ProposedSolution      *string                  `json:"proposed_solution" validate:"omitempty,min=1,max=2000"`
	MaterialsIncluded     *bool                    `json:"materials_included"`
	WarrantyPeriodMonths  *int                     `json:"warranty_period_months" validate:"omitempty,min=0,max=120"`
	TermsAndConditions    *string                  `json:"terms_and_conditions" validate:"omitempty,max=2000"`
	ValidityPeriodDays    *int                     `json:"validity_period_days" validate:"omitempty,min=1,max=90"`
	Attachments           []string                 `json:"attachments" validate:"omitempty,dive,required"`
}

// AcceptQuote carries the project details chosen at acceptance time.
type AcceptQuote struct {
	ProjectTitle       *string    `json:"project_title" validate:"omitempty,max=200"`
	ProjectDescription *string    `json:"project_description" validate:"omitempty,max=2000"`
	ScheduledStartDate *time.Time `json:"scheduled_start_date"`
	ScheduledEndDate   *time.Time `json:"scheduled_end_date"`
}

// RejectQuote carries the optional rejection reason.
type RejectQuote struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// QuoteResponse is a quote with its decoded cost breakdown.
type QuoteResponse struct {
	models.Quote
	CostBreakdown costbreakdown.Breakdown `json:"cost_breakdown"`
	IsExpired     bool                    `json:"is_expired"`
}

// AcceptQuoteResponse reports the entities written by an acceptance.
type AcceptQuoteResponse struct {
	Quote   QuoteResponse  `json:"quote"`
	Project models.Project `json:"project"`
}
