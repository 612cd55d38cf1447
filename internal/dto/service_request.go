package dto

import (
	"time"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

// CreateServiceRequest is the payload a citizen submits to open a request for bids.
type CreateServiceRequest struct {
	DiagnosticID          *string              `json:"diagnostic_id" validate:"omitempty,uuid"`
	ProblemTitle          string               `json:"problem_title" validate:"required,max=200"`
	ProblemDescription    string               `json:"problem_description" validate:"required,max=2000"`
	ProblemCategory       string               `json:"problem_category" validate:"required,max=100"`
	AdditionalImages      []string             `json:"additional_images" validate:"omitempty,dive,required"`
	PreferredProviderType *models.ProviderType `json:"preferred_provider_type" validate:"omitempty,oneof=ENGINEER COMPANY"`
	PreferredServiceDate  *time.Time           `json:"preferred_service_date"`
	PropertyType          *string              `json:"property_type" validate:"omitempty,max=100"`
	PropertyAddress       *string              `json:"property_address" validate:"omitempty,max=300"`
	ContactPhone          *string              `json:"contact_phone" validate:"omitempty,max=20"`
	ExpiresAt             *time.Time           `json:"expires_at"`
}

// UpdateServiceRequest patches an open request. Nil fields are left untouched.
type UpdateServiceRequest struct {
	ProblemTitle          *string              `json:"problem_title" validate:"omitempty,min=1,max=200"`
	ProblemDescription    *string              `json:"problem_description" validate:"omitempty,min=1,max=2000"`
	ProblemCategory       *string              `json:"problem_category" validate:"omitempty,min=1,max=100"`
	AdditionalImages      []string             `json:"additional_images" validate:"omitempty,dive,required"`
	PreferredProviderType *models.ProviderType `json:"preferred_provider_type" validate:"omitempty,oneof=ENGINEER COMPANY"`
	PreferredServiceDate  *time.Time           `json:"preferred_service_date"`
	PropertyType          *string              `json:"property_type" validate:"omitempty,max=100"`
	PropertyAddress       *string              `json:"property_address" validate:"omitempty,max=300"`
	ContactPhone          *string              `json:"contact_phone" validate:"omitempty,max=20"`
	ExpiresAt             *time.Time           `json:"expires_at"`
}

// ServiceRequestQuery holds list filters bound from the query string.
type ServiceRequestQuery struct {
	CitizenID  string   `form:"citizen_id"`
	Status     []string `form:"status"`
	Category   string   `form:"category"`
	ActiveOnly bool     `form:"active_only"`
	Mine       bool     `form:"mine"`
	Limit      int      `form:"limit"`
	Offset     int      `form:"offset"`
}
