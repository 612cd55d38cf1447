package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type serviceRequestStore interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error)
	List(ctx context.Context, filter models.ServiceRequestFilter) ([]models.ServiceRequest, error)
	Update(ctx context.Context, req *models.ServiceRequest) error
	IncrementViews(ctx context.Context, id string) error
	TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error
	SelectProvider(ctx context.Context, exec sqlx.ExtContext, id, quoteID string) error
	RefreshQuotesCount(ctx context.Context, exec sqlx.ExtContext, id string) (int, error)
	ListExpiringSoon(ctx context.Context, now, until time.Time) ([]models.ServiceRequest, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type diagnosticReader interface {
	GetByID(ctx context.Context, id string) (*models.Diagnostic, error)
}

// RequestServiceConfig tunes request listing behaviour.
type RequestServiceConfig struct {
	ExpiringSoonWindow time.Duration
}

// RequestServiceParams groups constructor dependencies.
type RequestServiceParams struct {
	Repo        serviceRequestStore
	Diagnostics diagnosticReader
	Policy      *AccessPolicy
	Validator   *validator.Validate
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      RequestServiceConfig
}

// RequestService owns the service request lifecycle.
type RequestService struct {
	repo        serviceRequestStore
	diagnostics diagnosticReader
	policy      *AccessPolicy
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
	cfg         RequestServiceConfig
}

// NewRequestService constructs a RequestService with sane defaults.
func NewRequestService(params RequestServiceParams) *RequestService {
	cfg := params.Config
	if cfg.ExpiringSoonWindow <= 0 {
		cfg.ExpiringSoonWindow = 72 * time.Hour
	}
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
	return &RequestService{
		repo:        params.Repo,
		diagnostics: params.Diagnostics,
		policy:      policy,
		validator:   validate,
		metrics:     params.Metrics,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Create opens a new request for bids on behalf of a citizen.
func (s *RequestService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateServiceRequest) (*models.ServiceRequest, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleCitizen); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid service request payload")
	}
	now := s.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be in the future")
	}
	if req.DiagnosticID != nil {
		if err := s.checkDiagnostic(ctx, actor.UserID, *req.DiagnosticID); err != nil {
			return nil, err
		}
	}

	entity := &models.ServiceRequest{
		CitizenID:             actor.UserID,
		DiagnosticID:          req.DiagnosticID,
		ProblemTitle:          strings.TrimSpace(req.ProblemTitle),
		ProblemDescription:    strings.TrimSpace(req.ProblemDescription),
		ProblemCategory:       strings.TrimSpace(req.ProblemCategory),
		AdditionalImages:      pq.StringArray(req.AdditionalImages),
		PreferredProviderType: req.PreferredProviderType,
		PreferredServiceDate:  req.PreferredServiceDate,
		PropertyType:          req.PropertyType,
		PropertyAddress:       req.PropertyAddress,
		ContactPhone:          req.ContactPhone,
		Status:                models.RequestStatusOpen,
		ExpiresAt:             req.ExpiresAt,
	}
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, internalError(err, "failed to create service request")
	}
	s.metrics.RecordTransition("request", string(entity.Status))
	s.logger.Sugar().Infow("service request created", "request_id", entity.ID, "citizen_id", entity.CitizenID)
	return entity, nil
}

func (s *RequestService) checkDiagnostic(ctx context.Context, citizenID, diagnosticID string) error {
	if s.diagnostics == nil {
		return appErrors.Clone(appErrors.ErrInvalidReference, "diagnostic cannot be verified")
	}
	diag, err := s.diagnostics.GetByID(ctx, diagnosticID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidReference, "diagnostic does not exist")
		}
		return internalError(err, "failed to load diagnostic")
	}
	if diag.CitizenID != citizenID {
		return appErrors.Clone(appErrors.ErrInvalidReference, "diagnostic belongs to another citizen")
	}
	return nil
}

// Get returns a request and counts the read as a view.
func (s *RequestService) Get(ctx context.Context, id string) (*models.ServiceRequest, error) {
	if err := s.RecordView(ctx, id); err != nil {
		return nil, err
	}
	entity, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "service request")
	}
	return entity, nil
}

// RecordView increments the view counter.
func (s *RequestService) RecordView(ctx context.Context, id string) error {
	if err := s.repo.IncrementViews(ctx, id); err != nil {
		return lookupError(err, "service request")
	}
	return nil
}

// List returns requests matching the query.
func (s *RequestService) List(ctx context.Context, actor *models.JWTClaims, query dto.ServiceRequestQuery) ([]models.ServiceRequest, error) {
	filter := models.ServiceRequestFilter{
		CitizenID:  query.CitizenID,
		Category:   query.Category,
		ActiveOnly: query.ActiveOnly,
		Now:        s.now().UTC(),
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	if query.Mine {
		filter.CitizenID = actorID(actor)
	}
	for _, raw := range query.Status {
		status := models.RequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown request status "+raw)
		}
		filter.Status = append(filter.Status, status)
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list service requests")
	}
	return items, nil
}

// Update patches an open request owned by the actor.
func (s *RequestService) Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateServiceRequest) (*models.ServiceRequest, error) {
	entity, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "service request")
	}
	if !s.policy.IsOwner(entity.CitizenID, actorID(actor)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner can update this request")
	}
	if !entity.Status.AcceptsQuotes() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request can no longer be updated")
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationError(err, "invalid service request payload")
	}

	if patch.ProblemTitle != nil {
		entity.ProblemTitle = strings.TrimSpace(*patch.ProblemTitle)
	}
	if patch.ProblemDescription != nil {
		entity.ProblemDescription = strings.TrimSpace(*patch.ProblemDescription)
	}
	if patch.ProblemCategory != nil {
		entity.ProblemCategory = strings.TrimSpace(*patch.ProblemCategory)
	}
	if patch.AdditionalImages != nil {
		entity.AdditionalImages = pq.StringArray(patch.AdditionalImages)
	}
	if patch.PreferredProviderType != nil {
		entity.PreferredProviderType = patch.PreferredProviderType
	}
	if patch.PreferredServiceDate != nil {
		entity.PreferredServiceDate = patch.PreferredServiceDate
	}
	if patch.PropertyType != nil {
		entity.PropertyType = patch.PropertyType
	}
	if patch.PropertyAddress != nil {
		entity.PropertyAddress = patch.PropertyAddress
	}
	if patch.ContactPhone != nil {
		entity.ContactPhone = patch.ContactPhone
	}
	if patch.ExpiresAt != nil {
		if !patch.ExpiresAt.After(s.now().UTC()) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be in the future")
		}
		entity.ExpiresAt = patch.ExpiresAt
	}

	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, transitionError(err, "service request")
	}
	return entity, nil
}

// Cancel withdraws a request from bidding. Owners and admins may cancel.
func (s *RequestService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.ServiceRequest, error) {
	entity, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "service request")
	}
	if !s.policy.IsOwner(entity.CitizenID, actorID(actor)) && !s.policy.HasRole(ctx, actor, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner can cancel this request")
	}
	if !entity.Status.CanTransitionTo(models.RequestStatusCancelled) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request cannot be cancelled from status "+string(entity.Status))
	}
	if err := s.repo.TransitionStatus(ctx, nil, id, []models.RequestStatus{entity.Status}, models.RequestStatusCancelled); err != nil {
		return nil, transitionError(err, "service request")
	}
	entity.Status = models.RequestStatusCancelled
	entity.UpdatedAt = s.now().UTC()
	s.metrics.RecordTransition("request", string(entity.Status))
	s.logger.Sugar().Infow("service request cancelled", "request_id", id, "actor_id", actorID(actor))
	return entity, nil
}

// LockByID loads a request under a row lock held by the caller's transaction.
func (s *RequestService) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error) {
	request, err := s.repo.LockByID(ctx, exec, id)
	if err != nil {
		return nil, lookupError(err, "service request")
	}
	return request, nil
}

// RefreshQuotesCount recounts non-withdrawn quotes inside the caller's transaction.
func (s *RequestService) RefreshQuotesCount(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	count, err := s.repo.RefreshQuotesCount(ctx, exec, id)
	if err != nil {
		return 0, lookupError(err, "service request")
	}
	return count, nil
}

// SelectProvider closes bidding on behalf of an accepted quote.
func (s *RequestService) SelectProvider(ctx context.Context, exec sqlx.ExtContext, id, quoteID string) error {
	if err := s.repo.SelectProvider(ctx, exec, id, quoteID); err != nil {
		return transitionError(err, "service request")
	}
	s.metrics.RecordTransition("request", string(models.RequestStatusProviderSelected))
	return nil
}

// ListExpiringSoon returns open requests whose bidding closes within the window.
func (s *RequestService) ListExpiringSoon(ctx context.Context, window time.Duration) ([]models.ServiceRequest, error) {
	if window <= 0 {
		window = s.cfg.ExpiringSoonWindow
	}
	now := s.now().UTC()
	items, err := s.repo.ListExpiringSoon(ctx, now, now.Add(window))
	if err != nil {
		return nil, internalError(err, "failed to list expiring requests")
	}
	return items, nil
}

// SweepExpired marks open requests past their expiry as EXPIRED.
func (s *RequestService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireStale(ctx, now.UTC())
	if err != nil {
		return 0, internalError(err, "failed to expire service requests")
	}
	s.metrics.RecordSweep("request", count)
	return count, nil
}
