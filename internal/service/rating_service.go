package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/internal/repository"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
	"github.com/noah-isme/bonyankop-api/pkg/export"
)

type ratingStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, rating *models.Rating) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Rating, error)
	ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]models.Rating, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Rating, error)
	ListByCitizen(ctx context.Context, citizenID string, limit, offset int) ([]models.Rating, error)
	Featured(ctx context.Context, limit int) ([]models.Rating, error)
	Update(ctx context.Context, exec sqlx.ExtContext, rating *models.Rating) error
	SetProviderResponse(ctx context.Context, id, response string, at time.Time) error
	IncrementHelpful(ctx context.Context, id string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	SetFeatured(ctx context.Context, id string, featured bool) error
}

type ratedProjectReader interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Project, error)
}

type ratingRecomputer interface {
	RecomputeRatings(ctx context.Context, exec sqlx.ExtContext, providerID string) error
	Invalidate(ctx context.Context, providerID string)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

const ratingExportPageSize = 200

var ratingExportHeaders = []string{
	"rating_id", "project_id", "overall", "quality", "timeliness", "professionalism",
	"value", "communication", "would_recommend", "review_title", "helpful_count", "created_at",
}

// RatingServiceParams groups constructor dependencies.
type RatingServiceParams struct {
	Ratings    ratingStore
	Projects   ratedProjectReader
	Reputation ratingRecomputer
	Tx         txProvider
	Policy     *AccessPolicy
	Events     eventPublisher
	CSV        csvRenderer
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// RatingService manages citizen reviews and keeps provider aggregates in step.
type RatingService struct {
	ratings    ratingStore
	projects   ratedProjectReader
	reputation ratingRecomputer
	tx         txProvider
	policy     *AccessPolicy
	events     eventPublisher
	csv        csvRenderer
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewRatingService constructs a RatingService.
func NewRatingService(params RatingServiceParams) *RatingService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	policy := params.Policy
	if policy == nil {
		policy = NewAccessPolicy(nil, nil, logger)
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &RatingService{
		ratings:    params.Ratings,
		projects:   params.Projects,
		reputation: params.Reputation,
		tx:         params.Tx,
		policy:     policy,
		events:     params.Events,
		csv:        csv,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// Create records the citizen's rating of a completed project and recomputes
// the provider aggregate in the same transaction.
func (s *RatingService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRating) (*dto.RatingResponse, error) {
	scores := req.Scores()
	if !scores.InRange() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scores must be between 1 and 5")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rating payload")
	}
	project, err := s.projects.GetByID(ctx, nil, req.ProjectID)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	if !s.policy.IsOwner(project.CitizenID, actorID(actor)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the project citizen can rate it")
	}
	if project.Status != models.ProjectStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only completed projects can be rated")
	}

	rating := &models.Rating{
		ProjectID:      project.ID,
		CitizenID:      project.CitizenID,
		ProviderID:     project.ProviderID,
		Scores:         scores,
		ReviewTitle:    req.ReviewTitle,
		ReviewText:     req.ReviewText,
		WouldRecommend: req.WouldRecommend,
		IsVerified:     true,
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.ratings.Create(ctx, tx, rating); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "project has already been rated")
		}
		return nil, internalError(err, "failed to create rating")
	}
	if err = s.reputation.RecomputeRatings(ctx, tx, rating.ProviderID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit rating")
	}
	s.reputation.Invalidate(ctx, rating.ProviderID)

	publishEvent(s.events, s.policy.ProviderUserID(ctx, rating.ProviderID), models.EventRatingCreated, rating.ID, strconv.Itoa(rating.Overall), s.now().UTC())
	s.logger.Sugar().Infow("rating created", "rating_id", rating.ID, "project_id", project.ID, "provider_id", rating.ProviderID)
	return toRatingResponse(rating), nil
}

// Update lets the citizen revise a rating. The aggregate is recomputed in the same transaction.
func (s *RatingService) Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateRating) (*dto.RatingResponse, error) {
	rating, err := s.ratings.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "rating")
	}
	if !s.policy.IsOwner(rating.CitizenID, actorID(actor)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can update this rating")
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationError(err, "invalid rating payload")
	}
	applyScore(&rating.Overall, patch.OverallRating)
	applyScore(&rating.Quality, patch.QualityRating)
	applyScore(&rating.Timeliness, patch.TimelinessRating)
	applyScore(&rating.Professionalism, patch.ProfessionalismRating)
	applyScore(&rating.Value, patch.ValueRating)
	applyScore(&rating.Communication, patch.CommunicationRating)
	if !rating.Scores.InRange() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scores must be between 1 and 5")
	}
	if patch.ReviewTitle != nil {
		rating.ReviewTitle = patch.ReviewTitle
	}
	if patch.ReviewText != nil {
		rating.ReviewText = patch.ReviewText
	}
	if patch.WouldRecommend != nil {
		rating.WouldRecommend = patch.WouldRecommend
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.ratings.Update(ctx, tx, rating); err != nil {
		return nil, lookupError(err, "rating")
	}
	if err = s.reputation.RecomputeRatings(ctx, tx, rating.ProviderID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit rating")
	}
	s.reputation.Invalidate(ctx, rating.ProviderID)
	return toRatingResponse(rating), nil
}

func applyScore(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// AddProviderResponse stores the rated provider's public reply, replacing any earlier one.
func (s *RatingService) AddProviderResponse(ctx context.Context, actor *models.JWTClaims, id string, req dto.ProviderResponse) (*dto.RatingResponse, error) {
	rating, err := s.ratings.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "rating")
	}
	provider, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if provider.ID != rating.ProviderID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the rated provider can respond")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid response payload")
	}
	now := s.now().UTC()
	text := strings.TrimSpace(req.Response)
	if err := s.ratings.SetProviderResponse(ctx, rating.ID, text, now); err != nil {
		return nil, lookupError(err, "rating")
	}
	rating.ProviderResponse = &text
	rating.ResponseAt = &now
	rating.UpdatedAt = now
	return toRatingResponse(rating), nil
}

// MarkHelpful counts one more reader who found the rating useful.
func (s *RatingService) MarkHelpful(ctx context.Context, id string) error {
	if err := s.ratings.IncrementHelpful(ctx, id); err != nil {
		return lookupError(err, "rating")
	}
	return nil
}

// SetVerified toggles the verified flag. Admin only.
func (s *RatingService) SetVerified(ctx context.Context, actor *models.JWTClaims, id string, verified bool) error {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.ratings.SetVerified(ctx, id, verified); err != nil {
		return lookupError(err, "rating")
	}
	return nil
}

// SetFeatured toggles the featured flag. Admin only.
func (s *RatingService) SetFeatured(ctx context.Context, actor *models.JWTClaims, id string, featured bool) error {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.ratings.SetFeatured(ctx, id, featured); err != nil {
		return lookupError(err, "rating")
	}
	return nil
}

// Get returns one rating.
func (s *RatingService) Get(ctx context.Context, id string) (*dto.RatingResponse, error) {
	rating, err := s.ratings.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "rating")
	}
	return toRatingResponse(rating), nil
}

// ListByProvider returns a provider's ratings, newest first.
func (s *RatingService) ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]dto.RatingResponse, error) {
	ratings, err := s.ratings.ListByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, internalError(err, "failed to list ratings")
	}
	return toRatingResponses(ratings), nil
}

// ListByProject returns the ratings on a project to its participants and staff.
func (s *RatingService) ListByProject(ctx context.Context, actor *models.JWTClaims, projectID string) ([]dto.RatingResponse, error) {
	project, err := s.projects.GetByID(ctx, nil, projectID)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	userID := actorID(actor)
	if !s.policy.IsOwner(project.CitizenID, userID) &&
		!s.policy.IsProviderUser(ctx, actor, project.ProviderID) &&
		!s.policy.HasRole(ctx, actor, models.RoleAdmin, models.RoleGovernment) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view ratings of this project")
	}
	ratings, err := s.ratings.ListByProject(ctx, projectID)
	if err != nil {
		return nil, internalError(err, "failed to list ratings")
	}
	return toRatingResponses(ratings), nil
}

// ListMine returns the ratings the caller has written.
func (s *RatingService) ListMine(ctx context.Context, actor *models.JWTClaims, limit, offset int) ([]dto.RatingResponse, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleCitizen); err != nil {
		return nil, err
	}
	ratings, err := s.ratings.ListByCitizen(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, internalError(err, "failed to list ratings")
	}
	return toRatingResponses(ratings), nil
}

// Featured returns highlighted ratings.
func (s *RatingService) Featured(ctx context.Context, limit int) ([]dto.RatingResponse, error) {
	ratings, err := s.ratings.Featured(ctx, limit)
	if err != nil {
		return nil, internalError(err, "failed to list featured ratings")
	}
	return toRatingResponses(ratings), nil
}

// ExportProviderRatingsCSV renders every rating of a provider as CSV. Admins and the provider may export.
func (s *RatingService) ExportProviderRatingsCSV(ctx context.Context, actor *models.JWTClaims, providerID string) ([]byte, error) {
	if !s.policy.HasRole(ctx, actor, models.RoleAdmin) && !s.policy.IsProviderUser(ctx, actor, providerID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to export these ratings")
	}
	dataset := export.Dataset{Headers: ratingExportHeaders}
	for offset := 0; ; offset += ratingExportPageSize {
		page, err := s.ratings.ListByProvider(ctx, providerID, ratingExportPageSize, offset)
		if err != nil {
			return nil, internalError(err, "failed to list ratings")
		}
		for _, rating := range page {
			dataset.Rows = append(dataset.Rows, ratingExportRow(rating))
		}
		if len(page) < ratingExportPageSize {
			break
		}
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, internalError(err, "failed to render ratings export")
	}
	return data, nil
}

func ratingExportRow(r models.Rating) map[string]string {
	row := map[string]string{
		"rating_id":       r.ID,
		"project_id":      r.ProjectID,
		"overall":         strconv.Itoa(r.Overall),
		"quality":         strconv.Itoa(r.Quality),
		"timeliness":      strconv.Itoa(r.Timeliness),
		"professionalism": strconv.Itoa(r.Professionalism),
		"value":           strconv.Itoa(r.Value),
		"communication":   strconv.Itoa(r.Communication),
		"helpful_count":   strconv.Itoa(r.HelpfulCount),
		"created_at":      r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.WouldRecommend != nil {
		row["would_recommend"] = strconv.FormatBool(*r.WouldRecommend)
	}
	if r.ReviewTitle != nil {
		row["review_title"] = *r.ReviewTitle
	}
	return row
}

func toRatingResponse(r *models.Rating) *dto.RatingResponse {
	return &dto.RatingResponse{Rating: *r, AverageSubRating: round2(r.AverageSubRating())}
}

func toRatingResponses(ratings []models.Rating) []dto.RatingResponse {
	items := make([]dto.RatingResponse, 0, len(ratings))
	for i := range ratings {
		items = append(items, *toRatingResponse(&ratings[i]))
	}
	return items
}
