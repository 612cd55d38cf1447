package models

import (
	"time"

	"github.com/lib/pq"
)

// ProviderType distinguishes individual engineers from companies.
type ProviderType string

const (
	ProviderTypeEngineer ProviderType = "ENGINEER"
	ProviderTypeCompany  ProviderType = "COMPANY"
)

// Valid reports whether the provider type is known.
func (t ProviderType) Valid() bool {
	return t == ProviderTypeEngineer || t == ProviderTypeCompany
}

// Role is the account role allowed to own a profile of this type.
func (t ProviderType) Role() UserRole {
	if t == ProviderTypeCompany {
		return RoleCompany
	}
	return RoleEngineer
}

// ProviderProfile holds a provider's public identity and reputation aggregate.
// AverageRating, TotalRatings, TotalProjects and CompletionRate are written by
// the reputation aggregator only.
type ProviderProfile struct {
	ID                string         `db:"id" json:"id"`
	UserID            string         `db:"user_id" json:"user_id"`
	ProviderType      ProviderType   `db:"provider_type" json:"provider_type"`
	BusinessName      string         `db:"business_name" json:"business_name"`
	Description       *string        `db:"description" json:"description,omitempty"`
	ServicesOffered   pq.StringArray `db:"services_offered" json:"services_offered"`
	Certifications    pq.StringArray `db:"certifications" json:"certifications"`
	CoverageAreas     pq.StringArray `db:"coverage_areas" json:"coverage_areas"`
	LicenseNumber     *string        `db:"license_number" json:"license_number,omitempty"`
	YearsOfExperience *int           `db:"years_of_experience" json:"years_of_experience,omitempty"`
	ResponseTimeHours *float64       `db:"response_time_hours" json:"response_time_hours,omitempty"`
	IsVerified        bool           `db:"is_verified" json:"is_verified"`
	IsFeatured        bool           `db:"is_featured" json:"is_featured"`
	AverageRating     float64        `db:"average_rating" json:"average_rating"`
	TotalRatings      int            `db:"total_ratings" json:"total_ratings"`
	TotalProjects     int            `db:"total_projects" json:"total_projects"`
	CompletionRate    float64        `db:"completion_rate" json:"completion_rate"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// ProviderListing is a profile joined with its owner's contact details.
type ProviderListing struct {
	ProviderProfile
	UserEmail    string `db:"user_email" json:"user_email"`
	UserFullName string `db:"user_full_name" json:"user_full_name"`
}

// ProviderFilter narrows provider directory queries.
type ProviderFilter struct {
	Search       string
	ProviderType ProviderType
	CoverageArea string
	VerifiedOnly bool
	FeaturedOnly bool
	Limit        int
	Offset       int
}

// ReputationSummary is the cached public view of a provider's standing.
type ReputationSummary struct {
	ProviderID     string    `json:"provider_id"`
	BusinessName   string    `json:"business_name"`
	ProviderType   string    `json:"provider_type"`
	IsVerified     bool      `json:"is_verified"`
	AverageRating  float64   `json:"average_rating"`
	TotalRatings   int       `json:"total_ratings"`
	TotalProjects  int       `json:"total_projects"`
	CompletionRate float64   `json:"completion_rate"`
	GeneratedAt    time.Time `json:"generated_at"`
}
