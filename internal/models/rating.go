package models

import "time"

// Score bounds shared by every rating dimension.
const (
	MinScore = 1
	MaxScore = 5
)

// Scores groups the six rating dimensions.
type Scores struct {
	Overall         int `db:"overall_rating" json:"overall_rating" validate:"min=1,max=5"`
	Quality         int `db:"quality_rating" json:"quality_rating" validate:"min=1,max=5"`
	Timeliness      int `db:"timeliness_rating" json:"timeliness_rating" validate:"min=1,max=5"`
	Professionalism int `db:"professionalism_rating" json:"professionalism_rating" validate:"min=1,max=5"`
	Value           int `db:"value_rating" json:"value_rating" validate:"min=1,max=5"`
	Communication   int `db:"communication_rating" json:"communication_rating" validate:"min=1,max=5"`
}

// InRange reports whether every score lies within 1..5.
func (s Scores) InRange() bool {
	for _, v := range []int{s.Overall, s.Quality, s.Timeliness, s.Professionalism, s.Value, s.Communication} {
		if v < MinScore || v > MaxScore {
			return false
		}
	}
	return true
}

// AverageSubRating is the mean of the five category scores. Overall is not part of it.
func (s Scores) AverageSubRating() float64 {
	return float64(s.Quality+s.Timeliness+s.Professionalism+s.Value+s.Communication) / 5.0
}

// Rating is a citizen's review of one completed project.
type Rating struct {
	ID         string `db:"id" json:"id"`
	ProjectID  string `db:"project_id" json:"project_id"`
	CitizenID  string `db:"citizen_id" json:"citizen_id"`
	ProviderID string `db:"provider_id" json:"provider_id"`
	Scores
	ReviewTitle      *string    `db:"review_title" json:"review_title,omitempty"`
	ReviewText       *string    `db:"review_text" json:"review_text,omitempty"`
	WouldRecommend   *bool      `db:"would_recommend" json:"would_recommend,omitempty"`
	ProviderResponse *string    `db:"provider_response" json:"provider_response,omitempty"`
	ResponseAt       *time.Time `db:"response_at" json:"response_at,omitempty"`
	IsVerified       bool       `db:"is_verified" json:"is_verified"`
	IsFeatured       bool       `db:"is_featured" json:"is_featured"`
	HelpfulCount     int        `db:"helpful_count" json:"helpful_count"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// RatingAggregate is the live rating set summary for a provider.
type RatingAggregate struct {
	Average float64 `db:"average"`
	Count   int     `db:"count"`
}
