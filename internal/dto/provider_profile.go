package dto

import "github.com/noah-isme/bonyankop-api/internal/models"

// CreateProviderProfile onboards the caller as an engineer or company.
type CreateProviderProfile struct {
	ProviderType      models.ProviderType `json:"provider_type" validate:"required,oneof=ENGINEER COMPANY"`
	BusinessName      string              `json:"business_name" validate:"required,max=200"`
	Description       *string             `json:"description" validate:"omitempty,max=2000"`
	ServicesOffered   []string            `json:"services_offered" validate:"omitempty,max=50,dive,min=1,max=100"`
	Certifications    []string            `json:"certifications" validate:"omitempty,max=50,dive,min=1,max=200"`
	CoverageAreas     []string            `json:"coverage_areas" validate:"omitempty,max=50,dive,min=1,max=100"`
	LicenseNumber     *string             `json:"license_number" validate:"omitempty,max=100"`
	YearsOfExperience *int                `json:"years_of_experience" validate:"omitempty,gte=0,lte=80"`
}

// UpdateProviderProfile patches the caller's profile. Reputation fields are not editable.
type UpdateProviderProfile struct {
	BusinessName      *string  `json:"business_name" validate:"omitempty,max=200"`
	Description       *string  `json:"description" validate:"omitempty,max=2000"`
	ServicesOffered   []string `json:"services_offered" validate:"omitempty,max=50,dive,min=1,max=100"`
	Certifications    []string `json:"certifications" validate:"omitempty,max=50,dive,min=1,max=200"`
	CoverageAreas     []string `json:"coverage_areas" validate:"omitempty,max=50,dive,min=1,max=100"`
	LicenseNumber     *string  `json:"license_number" validate:"omitempty,max=100"`
	YearsOfExperience *int     `json:"years_of_experience" validate:"omitempty,gte=0,lte=80"`
}

// ProviderSearch holds the directory search query parameters.
type ProviderSearch struct {
	Term         string `form:"q"`
	ProviderType string `form:"provider_type"`
	CoverageArea string `form:"coverage_area"`
}
