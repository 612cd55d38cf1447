package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

const providerProfileColumns = `id, user_id, provider_type, business_name, description, services_offered, certifications,
       coverage_areas, license_number, years_of_experience, response_time_hours, is_verified, is_featured,
       average_rating, total_ratings, total_projects, completion_rate, created_at, updated_at`

const providerListingSelect = `SELECT p.id, p.user_id, p.provider_type, p.business_name, p.description, p.services_offered,
       p.certifications, p.coverage_areas, p.license_number, p.years_of_experience, p.response_time_hours,
       p.is_verified, p.is_featured, p.average_rating, p.total_ratings, p.total_projects, p.completion_rate,
       p.created_at, p.updated_at, u.email AS user_email, u.full_name AS user_full_name
  FROM provider_profiles p
  JOIN users u ON u.id = p.user_id`

// ProviderProfileRepository persists provider profiles. The reputation columns are
// written only through UpdateRatingStats and UpdateProjectStats.
type ProviderProfileRepository struct {
	db *sqlx.DB
}

// NewProviderProfileRepository constructs the repository.
func NewProviderProfileRepository(db *sqlx.DB) *ProviderProfileRepository {
	return &ProviderProfileRepository{db: db}
}

func (r *ProviderProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a profile with zeroed reputation. A second profile for the same user yields ErrDuplicate.
func (r *ProviderProfileRepository) Create(ctx context.Context, profile *models.ProviderProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	for _, list := range []*pq.StringArray{&profile.ServicesOffered, &profile.Certifications, &profile.CoverageAreas} {
		if *list == nil {
			*list = pq.StringArray{}
		}
	}
	profile.IsVerified = false
	profile.IsFeatured = false
	profile.AverageRating = 0
	profile.TotalRatings = 0
	profile.TotalProjects = 0
	profile.CompletionRate = 0
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	const query = `INSERT INTO provider_profiles
	(id, user_id, provider_type, business_name, description, services_offered, certifications, coverage_areas,
	 license_number, years_of_experience, created_at, updated_at)
	VALUES (:id, :user_id, :provider_type, :business_name, :description, :services_offered, :certifications, :coverage_areas,
	 :license_number, :years_of_experience, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		if translateWriteError(err) == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create provider profile: %w", err)
	}
	return nil
}

// UpdateProviderProfileParams carries the owner-editable profile fields. Nil fields are left alone.
type UpdateProviderProfileParams struct {
	ID                string
	BusinessName      *string
	Description       *string
	ServicesOffered   []string
	Certifications    []string
	CoverageAreas     []string
	LicenseNumber     *string
	YearsOfExperience *int
}

// UpdateDetails writes the present descriptive fields of a profile.
func (r *ProviderProfileRepository) UpdateDetails(ctx context.Context, params UpdateProviderProfileParams) error {
	args := map[string]interface{}{
		"id":         params.ID,
		"updated_at": time.Now().UTC(),
	}
	setParts := []string{"updated_at = :updated_at"}
	add := func(column string, value interface{}) {
		setParts = append(setParts, column+" = :"+column)
		args[column] = value
	}
	if params.BusinessName != nil {
		add("business_name", *params.BusinessName)
	}
	if params.Description != nil {
		add("description", *params.Description)
	}
	if params.ServicesOffered != nil {
		add("services_offered", pq.StringArray(params.ServicesOffered))
	}
	if params.Certifications != nil {
		add("certifications", pq.StringArray(params.Certifications))
	}
	if params.CoverageAreas != nil {
		add("coverage_areas", pq.StringArray(params.CoverageAreas))
	}
	if params.LicenseNumber != nil {
		add("license_number", *params.LicenseNumber)
	}
	if params.YearsOfExperience != nil {
		add("years_of_experience", *params.YearsOfExperience)
	}
	query := fmt.Sprintf("UPDATE provider_profiles SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.db, query, args)
	if err != nil {
		return fmt.Errorf("update provider profile: %w", err)
	}
	return expectAffected(result, "update provider profile")
}

// SetVerified flips the moderation flag. Unverifying a profile also drops it from the featured list.
func (r *ProviderProfileRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	const query = `UPDATE provider_profiles SET is_verified = $2, is_featured = is_featured AND $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, verified, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set provider verified: %w", err)
	}
	return expectAffected(result, "set provider verified")
}

// SetFeatured flips the featured flag.
func (r *ProviderProfileRepository) SetFeatured(ctx context.Context, id string, featured bool) error {
	const query = `UPDATE provider_profiles SET is_featured = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, featured, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set provider featured: %w", err)
	}
	return expectAffected(result, "set provider featured")
}

// GetListing fetches one profile with its owner's contact details.
func (r *ProviderProfileRepository) GetListing(ctx context.Context, id string) (*models.ProviderListing, error) {
	var listing models.ProviderListing
	if err := r.db.GetContext(ctx, &listing, providerListingSelect+` WHERE p.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get provider listing: %w", err)
	}
	return &listing, nil
}

// List returns directory entries matching the filter, verified and best rated first.
func (r *ProviderProfileRepository) List(ctx context.Context, filter models.ProviderFilter) ([]models.ProviderListing, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(providerListingSelect)

	conditions := make([]string, 0, 5)
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		conditions = append(conditions, fmt.Sprintf("(p.business_name ILIKE $%[1]d OR p.description ILIKE $%[1]d)", len(args)))
	}
	if filter.ProviderType != "" {
		args = append(args, filter.ProviderType)
		conditions = append(conditions, fmt.Sprintf("p.provider_type = $%d", len(args)))
	}
	if area := strings.TrimSpace(filter.CoverageArea); area != "" {
		args = append(args, area)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(p.coverage_areas)", len(args)))
	}
	if filter.VerifiedOnly || filter.FeaturedOnly {
		conditions = append(conditions, "p.is_verified = TRUE")
	}
	if filter.FeaturedOnly {
		conditions = append(conditions, "p.is_featured = TRUE")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY p.is_verified DESC, p.average_rating DESC, p.created_at ASC")

	limit, offset := clampLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var listings []models.ProviderListing
	if err := r.db.SelectContext(ctx, &listings, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list provider profiles: %w", err)
	}
	return listings, nil
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// GetByID fetches a profile by identifier.
func (r *ProviderProfileRepository) GetByID(ctx context.Context, id string) (*models.ProviderProfile, error) {
	return r.getOne(ctx, r.db, `SELECT `+providerProfileColumns+` FROM provider_profiles WHERE id = $1`, id)
}

// GetByUserID fetches the profile owned by a user.
func (r *ProviderProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.ProviderProfile, error) {
	return r.getOne(ctx, r.db, `SELECT `+providerProfileColumns+` FROM provider_profiles WHERE user_id = $1`, userID)
}

// LockByID loads a profile with a row lock held until the surrounding transaction ends.
func (r *ProviderProfileRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ProviderProfile, error) {
	return r.getOne(ctx, r.exec(exec), `SELECT `+providerProfileColumns+` FROM provider_profiles WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProviderProfileRepository) getOne(ctx context.Context, exec sqlx.ExtContext, query, arg string) (*models.ProviderProfile, error) {
	var profile models.ProviderProfile
	if err := sqlx.GetContext(ctx, exec, &profile, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get provider profile: %w", err)
	}
	return &profile, nil
}

// UpdateRatingStats stores the recomputed rating aggregate.
func (r *ProviderProfileRepository) UpdateRatingStats(ctx context.Context, exec sqlx.ExtContext, id string, average float64, total int) error {
	const query = `UPDATE provider_profiles SET average_rating = $2, total_ratings = $3, updated_at = $4 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, average, total, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update provider rating stats: %w", err)
	}
	return expectAffected(result, "update provider rating stats")
}

// UpdateProjectStats stores the recomputed project aggregate.
func (r *ProviderProfileRepository) UpdateProjectStats(ctx context.Context, exec sqlx.ExtContext, id string, totalProjects int, completionRate float64) error {
	const query = `UPDATE provider_profiles SET total_projects = $2, completion_rate = $3, updated_at = $4 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, totalProjects, completionRate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update provider project stats: %w", err)
	}
	return expectAffected(result, "update provider project stats")
}
