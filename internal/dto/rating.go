package dto

import "github.com/noah-isme/bonyankop-api/internal/models"

// CreateRating is a citizen's review of a completed project.
type CreateRating struct {
	ProjectID             string  `json:"project_id" validate:"required"`
	OverallRating         int     `json:"overall_rating"`
	QualityRating         int     `json:"quality_rating"`
	TimelinessRating      int     `json:"timeliness_rating"`
	ProfessionalismRating int     `json:"professionalism_rating"`
	ValueRating           int     `json:"value_rating"`
	CommunicationRating   int     `json:"communication_rating"`
	ReviewTitle           *string `json:"review_title" validate:"omitempty,max=200"`
	ReviewText            *string `json:"review_text" validate:"omitempty,max=2000"`
	WouldRecommend        *bool   `json:"would_recommend"`
}

// Scores returns the six scores as a model value.
func (r CreateRating) Scores() models.Scores {
	return models.Scores{
		Overall:         r.OverallRating,
		Quality:         r.QualityRating,
		Timeliness:      r.TimelinessRating,
		Professionalism: r.ProfessionalismRating,
		Value:           r.ValueRating,
		Communication:   r.CommunicationRating,
	}
}

// UpdateRating patches a rating. Nil fields are left untouched.
type UpdateRating struct {
	OverallRating         *int    `json:"overall_rating"`
	QualityRating         *int    `json:"quality_rating"`
	TimelinessRating      *int    `json:"timeliness_rating"`
	ProfessionalismRating *int    `json:"professionalism_rating"`
	ValueRating           *int    `json:"value_rating"`
	CommunicationRating   *int    `json:"communication_rating"`
	ReviewTitle           *string `json:"review_title" validate:"omitempty,max=200"`
	ReviewText            *string `json:"review_text" validate:"omitempty,max=2000"`
	WouldRecommend        *bool   `json:"would_recommend"`
}

// ProviderResponse is the provider's public reply to a rating.
type ProviderResponse struct {
	Response string `json:"response" validate:"required,max=2000"`
}

// ToggleFlag sets a boolean moderation flag.
type ToggleFlag struct {
	Value bool `json:"value"`
}

// RatingResponse exposes a rating with its derived sub-score average.
type RatingResponse struct {
	models.Rating
	AverageSubRating float64 `json:"average_sub_rating"`
}
