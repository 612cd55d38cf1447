package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

const ratingColumns = `id, project_id, citizen_id, provider_id, overall_rating, quality_rating, timeliness_rating,
       professionalism_rating, value_rating, communication_rating, review_title, review_text, would_recommend,
       provider_response, response_at, is_verified, is_featured, helpful_count, created_at, updated_at`

// RatingRepository persists project ratings.
type RatingRepository struct {
	db *sqlx.DB
}

// NewRatingRepository constructs the repository.
func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

func (r *RatingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a rating. A second rating by the same citizen for the same project yields ErrDuplicate.
func (r *RatingRepository) Create(ctx context.Context, exec sqlx.ExtContext, rating *models.Rating) error {
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = now
	}
	rating.UpdatedAt = now

	const query = `INSERT INTO ratings
	(id, project_id, citizen_id, provider_id, overall_rating, quality_rating, timeliness_rating, professionalism_rating,
	 value_rating, communication_rating, review_title, review_text, would_recommend, is_verified, is_featured,
	 helpful_count, created_at, updated_at)
	VALUES (:id, :project_id, :citizen_id, :provider_id, :overall_rating, :quality_rating, :timeliness_rating, :professionalism_rating,
	 :value_rating, :communication_rating, :review_title, :review_text, :would_recommend, :is_verified, :is_featured,
	 :helpful_count, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, rating); err != nil {
		if translateWriteError(err) == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

// GetByID fetches a rating by identifier.
func (r *RatingRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE id = $1`
	var rating models.Rating
	if err := sqlx.GetContext(ctx, r.exec(exec), &rating, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get rating: %w", err)
	}
	return &rating, nil
}

// ListByProvider returns a provider's ratings, newest first.
func (r *RatingRepository) ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]models.Rating, error) {
	limit, offset = clampLimit(limit, offset)
	query := fmt.Sprintf(`SELECT `+ratingColumns+` FROM ratings WHERE provider_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)
	var ratings []models.Rating
	if err := r.db.SelectContext(ctx, &ratings, query, providerID); err != nil {
		return nil, fmt.Errorf("list ratings by provider: %w", err)
	}
	return ratings, nil
}

// ListByProject returns the ratings left on one project, newest first.
func (r *RatingRepository) ListByProject(ctx context.Context, projectID string) ([]models.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE project_id = $1 ORDER BY created_at DESC`
	var ratings []models.Rating
	if err := r.db.SelectContext(ctx, &ratings, query, projectID); err != nil {
		return nil, fmt.Errorf("list ratings by project: %w", err)
	}
	return ratings, nil
}

// ListByCitizen returns the ratings a citizen has written, newest first.
func (r *RatingRepository) ListByCitizen(ctx context.Context, citizenID string, limit, offset int) ([]models.Rating, error) {
	limit, offset = clampLimit(limit, offset)
	query := fmt.Sprintf(`SELECT `+ratingColumns+` FROM ratings WHERE citizen_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)
	var ratings []models.Rating
	if err := r.db.SelectContext(ctx, &ratings, query, citizenID); err != nil {
		return nil, fmt.Errorf("list ratings by citizen: %w", err)
	}
	return ratings, nil
}

// Featured returns featured ratings ordered by score then helpfulness.
func (r *RatingRepository) Featured(ctx context.Context, limit int) ([]models.Rating, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT `+ratingColumns+` FROM ratings WHERE is_featured = TRUE
	ORDER BY overall_rating DESC, helpful_count DESC, created_at DESC LIMIT %d`, limit)
	var ratings []models.Rating
	if err := r.db.SelectContext(ctx, &ratings, query); err != nil {
		return nil, fmt.Errorf("list featured ratings: %w", err)
	}
	return ratings, nil
}

// Update writes the citizen-editable rating fields.
func (r *RatingRepository) Update(ctx context.Context, exec sqlx.ExtContext, rating *models.Rating) error {
	rating.UpdatedAt = time.Now().UTC()
	const query = `UPDATE ratings SET overall_rating = :overall_rating, quality_rating = :quality_rating,
	timeliness_rating = :timeliness_rating, professionalism_rating = :professionalism_rating,
	value_rating = :value_rating, communication_rating = :communication_rating, review_title = :review_title,
	review_text = :review_text, would_recommend = :would_recommend, updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, rating)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return expectAffected(result, "update rating")
}

// SetProviderResponse overwrites the provider's reply.
func (r *RatingRepository) SetProviderResponse(ctx context.Context, id, response string, at time.Time) error {
	const query = `UPDATE ratings SET provider_response = $2, response_at = $3, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, response, at)
	if err != nil {
		return fmt.Errorf("set provider response: %w", err)
	}
	return expectAffected(result, "set provider response")
}

// IncrementHelpful bumps the helpful counter atomically.
func (r *RatingRepository) IncrementHelpful(ctx context.Context, id string) error {
	const query = `UPDATE ratings SET helpful_count = helpful_count + 1 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment helpful: %w", err)
	}
	return expectAffected(result, "increment helpful")
}

// SetVerified toggles the verified flag.
func (r *RatingRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	const query = `UPDATE ratings SET is_verified = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, verified, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set rating verified: %w", err)
	}
	return expectAffected(result, "set rating verified")
}

// SetFeatured toggles the featured flag.
func (r *RatingRepository) SetFeatured(ctx context.Context, id string, featured bool) error {
	const query = `UPDATE ratings SET is_featured = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, featured, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set rating featured: %w", err)
	}
	return expectAffected(result, "set rating featured")
}

// AggregateForProvider computes the live average overall score and count.
func (r *RatingRepository) AggregateForProvider(ctx context.Context, exec sqlx.ExtContext, providerID string) (models.RatingAggregate, error) {
	const query = `SELECT COALESCE(AVG(overall_rating), 0) AS average, COUNT(*) AS count FROM ratings WHERE provider_id = $1`
	var agg models.RatingAggregate
	if err := sqlx.GetContext(ctx, r.exec(exec), &agg, query, providerID); err != nil {
		return agg, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}
