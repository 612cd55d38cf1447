package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/internal/repository"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type providerProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.ProviderProfile, error)
	GetListing(ctx context.Context, id string) (*models.ProviderListing, error)
	List(ctx context.Context, filter models.ProviderFilter) ([]models.ProviderListing, error)
	Create(ctx context.Context, profile *models.ProviderProfile) error
	UpdateDetails(ctx context.Context, params repository.UpdateProviderProfileParams) error
	SetVerified(ctx context.Context, id string, verified bool) error
	SetFeatured(ctx context.Context, id string, featured bool) error
}

type reputationInvalidator interface {
	Invalidate(ctx context.Context, providerID string)
}

// ProviderProfileServiceParams groups constructor dependencies.
type ProviderProfileServiceParams struct {
	Profiles   providerProfileStore
	Reputation reputationInvalidator
	Policy     *AccessPolicy
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// ProviderProfileService onboards providers and serves the provider directory.
// It never writes the reputation aggregate.
type ProviderProfileService struct {
	profiles   providerProfileStore
	reputation reputationInvalidator
	policy     *AccessPolicy
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProviderProfileService constructs a ProviderProfileService.
func NewProviderProfileService(params ProviderProfileServiceParams) *ProviderProfileService {
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
	return &ProviderProfileService{
		profiles:   params.Profiles,
		reputation: params.Reputation,
		policy:     policy,
		validator:  validate,
		logger:     logger,
	}
}

// Create opens a provider profile for the caller. The account role must match the provider type.
func (s *ProviderProfileService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateProviderProfile) (*models.ProviderListing, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleEngineer, models.RoleCompany); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid provider profile payload")
	}
	if !s.policy.HasRole(ctx, actor, req.ProviderType.Role()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "account role must be "+string(req.ProviderType.Role())+" to create a "+string(req.ProviderType)+" profile")
	}
	name := strings.TrimSpace(req.BusinessName)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "business name is required")
	}
	if _, err := s.profiles.GetByUserID(ctx, actor.UserID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "provider profile already exists for this user")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to check existing provider profile")
	}

	profile := &models.ProviderProfile{
		UserID:            actor.UserID,
		ProviderType:      req.ProviderType,
		BusinessName:      name,
		Description:       req.Description,
		ServicesOffered:   cleanList(req.ServicesOffered),
		Certifications:    cleanList(req.Certifications),
		CoverageAreas:     cleanList(req.CoverageAreas),
		LicenseNumber:     req.LicenseNumber,
		YearsOfExperience: req.YearsOfExperience,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "provider profile already exists for this user")
		}
		return nil, internalError(err, "failed to create provider profile")
	}
	s.logger.Sugar().Infow("provider profile created", "provider_id", profile.ID, "user_id", actor.UserID, "type", profile.ProviderType)
	return s.listing(ctx, profile.ID)
}

// Mine returns the caller's own profile.
func (s *ProviderProfileService) Mine(ctx context.Context, actor *models.JWTClaims) (*models.ProviderListing, error) {
	profile, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.listing(ctx, profile.ID)
}

// Get returns one directory entry.
func (s *ProviderProfileService) Get(ctx context.Context, id string) (*models.ProviderListing, error) {
	return s.listing(ctx, id)
}

// Update patches the descriptive fields of the caller's profile.
func (s *ProviderProfileService) Update(ctx context.Context, actor *models.JWTClaims, patch dto.UpdateProviderProfile) (*models.ProviderListing, error) {
	profile, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationError(err, "invalid provider profile payload")
	}
	params := repository.UpdateProviderProfileParams{
		ID:                profile.ID,
		Description:       patch.Description,
		LicenseNumber:     patch.LicenseNumber,
		YearsOfExperience: patch.YearsOfExperience,
	}
	// A blank business name keeps the stored one.
	if patch.BusinessName != nil && strings.TrimSpace(*patch.BusinessName) != "" {
		name := strings.TrimSpace(*patch.BusinessName)
		params.BusinessName = &name
	}
	if patch.ServicesOffered != nil {
		params.ServicesOffered = cleanList(patch.ServicesOffered)
	}
	if patch.Certifications != nil {
		params.Certifications = cleanList(patch.Certifications)
	}
	if patch.CoverageAreas != nil {
		params.CoverageAreas = cleanList(patch.CoverageAreas)
	}
	if err := s.profiles.UpdateDetails(ctx, params); err != nil {
		return nil, lookupError(err, "provider profile")
	}
	s.invalidate(ctx, profile.ID)
	return s.listing(ctx, profile.ID)
}

// Search lists providers by name or description, type and coverage area.
func (s *ProviderProfileService) Search(ctx context.Context, query dto.ProviderSearch, limit, offset int) ([]models.ProviderListing, error) {
	filter := models.ProviderFilter{
		Search:       query.Term,
		CoverageArea: query.CoverageArea,
		Limit:        limit,
		Offset:       offset,
	}
	if raw := strings.TrimSpace(query.ProviderType); raw != "" {
		providerType, err := parseProviderType(raw)
		if err != nil {
			return nil, err
		}
		filter.ProviderType = providerType
	}
	return s.list(ctx, filter)
}

// Verified lists moderated providers.
func (s *ProviderProfileService) Verified(ctx context.Context, limit, offset int) ([]models.ProviderListing, error) {
	return s.list(ctx, models.ProviderFilter{VerifiedOnly: true, Limit: limit, Offset: offset})
}

// Featured lists verified providers that staff have highlighted.
func (s *ProviderProfileService) Featured(ctx context.Context, limit int) ([]models.ProviderListing, error) {
	return s.list(ctx, models.ProviderFilter{FeaturedOnly: true, Limit: limit})
}

// ByType lists providers of one type.
func (s *ProviderProfileService) ByType(ctx context.Context, raw string, limit, offset int) ([]models.ProviderListing, error) {
	providerType, err := parseProviderType(raw)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, models.ProviderFilter{ProviderType: providerType, Limit: limit, Offset: offset})
}

// SetVerified moderates a profile. Admin only.
func (s *ProviderProfileService) SetVerified(ctx context.Context, actor *models.JWTClaims, id string, verified bool) error {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.profiles.SetVerified(ctx, id, verified); err != nil {
		return lookupError(err, "provider profile")
	}
	s.invalidate(ctx, id)
	return nil
}

// SetFeatured highlights a verified profile. Admin only.
func (s *ProviderProfileService) SetFeatured(ctx context.Context, actor *models.JWTClaims, id string, featured bool) error {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin); err != nil {
		return err
	}
	listing, err := s.listing(ctx, id)
	if err != nil {
		return err
	}
	if featured && !listing.IsVerified {
		return appErrors.Clone(appErrors.ErrInvalidState, "only verified providers can be featured")
	}
	if err := s.profiles.SetFeatured(ctx, id, featured); err != nil {
		return lookupError(err, "provider profile")
	}
	return nil
}

func (s *ProviderProfileService) listing(ctx context.Context, id string) (*models.ProviderListing, error) {
	listing, err := s.profiles.GetListing(ctx, id)
	if err != nil {
		return nil, lookupError(err, "provider profile")
	}
	return listing, nil
}

func (s *ProviderProfileService) list(ctx context.Context, filter models.ProviderFilter) ([]models.ProviderListing, error) {
	items, err := s.profiles.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list provider profiles")
	}
	if items == nil {
		items = []models.ProviderListing{}
	}
	return items, nil
}

// invalidate drops the cached reputation summary, which carries the business name and verified flag.
func (s *ProviderProfileService) invalidate(ctx context.Context, providerID string) {
	if s.reputation != nil {
		s.reputation.Invalidate(ctx, providerID)
	}
}

func parseProviderType(raw string) (models.ProviderType, error) {
	providerType := models.ProviderType(strings.ToUpper(strings.TrimSpace(raw)))
	if !providerType.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown provider type "+raw)
	}
	return providerType, nil
}

// cleanList trims entries and drops blanks and repeats, keeping order.
func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
