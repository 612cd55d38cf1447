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
	"github.com/noah-isme/bonyankop-api/internal/repository"
	"github.com/noah-isme/bonyankop-api/pkg/costbreakdown"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type quoteStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, quote *models.Quote) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Quote, error)
	List(ctx context.Context, filter models.QuoteFilter) ([]models.Quote, error)
	Update(ctx context.Context, quote *models.Quote) error
	TransitionStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateQuoteStatusParams) error
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type quoteRequestReader interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error)
}

type requestLifecycle interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error)
	RefreshQuotesCount(ctx context.Context, exec sqlx.ExtContext, id string) (int, error)
	SelectProvider(ctx context.Context, exec sqlx.ExtContext, id, quoteID string) error
}

type acceptedProjectStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, project *models.Project) error
	GetByQuoteID(ctx context.Context, exec sqlx.ExtContext, quoteID string) (*models.Project, error)
}

// QuoteServiceParams groups constructor dependencies.
type QuoteServiceParams struct {
	Quotes    quoteStore
	Requests  quoteRequestReader
	Lifecycle requestLifecycle
	Projects  acceptedProjectStore
	Tx        txProvider
	Policy    *AccessPolicy
	Events    eventPublisher
	Validator *validator.Validate
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// QuoteService owns the quote lifecycle including the acceptance protocol.
type QuoteService struct {
	quotes    quoteStore
	requests  quoteRequestReader
	lifecycle requestLifecycle
	projects  acceptedProjectStore
	tx        txProvider
	policy    *AccessPolicy
	events    eventPublisher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuoteService constructs a QuoteService.
func NewQuoteService(params QuoteServiceParams) *QuoteService {
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
	return &QuoteService{
		quotes:    params.Quotes,
		requests:  params.Requests,
		lifecycle: params.Lifecycle,
		projects:  params.Projects,
		tx:        params.Tx,
		policy:    policy,
		events:    params.Events,
		validator: validate,
		metrics:   params.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit records a provider's bid and refreshes the request's quote counter.
func (s *QuoteService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.CreateQuote) (*dto.QuoteResponse, error) {
	provider, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid quote payload")
	}

	encoded, err := encodeBreakdown(*req.CostBreakdown)
	if err != nil {
		return nil, err
	}
	validity := req.ValidityPeriodDays
	if validity == 0 {
		validity = models.DefaultQuoteValidityDays
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

	// The row lock serializes bids and acceptance on one request.
	request, err := s.lifecycle.LockByID(ctx, tx, req.RequestID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err = checkAcceptsQuotes(request, now); err != nil {
		return nil, err
	}

	quote := &models.Quote{
		RequestID:             request.ID,
		ProviderID:            provider.ID,
		EstimatedCost:         req.EstimatedCost,
		CostBreakdown:         encoded,
		EstimatedDurationDays: req.EstimatedDurationDays,
		TechnicalAssessment:   strings.TrimSpace(req.TechnicalAssessment),
		ProposedSolution:      strings.TrimSpace(req.ProposedSolution),
		MaterialsIncluded:     req.MaterialsIncluded,
		WarrantyPeriodMonths:  req.WarrantyPeriodMonths,
		TermsAndConditions:    req.TermsAndConditions,
		ValidityPeriodDays:    validity,
		Attachments:           pq.StringArray(req.Attachments),
		Status:                models.QuoteStatusPending,
		SubmittedAt:           now,
		ExpiresAt:             now.AddDate(0, 0, validity),
	}
	if err = s.quotes.Create(ctx, tx, quote); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "provider already has an active quote on this request")
		}
		return nil, internalError(err, "failed to create quote")
	}
	if _, err = s.lifecycle.RefreshQuotesCount(ctx, tx, request.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit quote")
	}

	s.metrics.RecordTransition("quote", string(quote.Status))
	publishEvent(s.events, request.CitizenID, models.EventQuoteSubmitted, quote.ID, string(quote.Status), now)
	s.logger.Sugar().Infow("quote submitted", "quote_id", quote.ID, "request_id", request.ID, "provider_id", provider.ID)
	return s.toResponse(quote)
}

// Update patches a pending quote owned by the acting provider.
func (s *QuoteService) Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateQuote) (*dto.QuoteResponse, error) {
	quote, err := s.quotes.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "quote")
	}
	provider, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if provider.ID != quote.ProviderID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting provider can update this quote")
	}
	now := s.now().UTC()
	if quote.Status != models.QuoteStatusPending || quote.IsExpired(now) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "quote can no longer be updated")
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationError(err, "invalid quote payload")
	}

	if patch.EstimatedCost != nil {
		quote.EstimatedCost = *patch.EstimatedCost
	}
	if patch.CostBreakdown != nil {
		encoded, err := encodeBreakdown(*patch.CostBreakdown)
		if err != nil {
			return nil, err
		}
		quote.CostBreakdown = encoded
	}
	if patch.EstimatedDurationDays != nil {
		quote.EstimatedDurationDays = *patch.EstimatedDurationDays
	}
	if patch.TechnicalAssessment != nil {
		quote.TechnicalAssessment = strings.TrimSpace(*patch.TechnicalAssessment)
	}
	if patch.ProposedSolution != nil {
		quote.ProposedSolution = strings.TrimSpace(*patch.ProposedSolution)
	}
	if patch.MaterialsIncluded != nil {
		quote.MaterialsIncluded = *patch.MaterialsIncluded
	}
	if patch.WarrantyPeriodMonths != nil {
		quote.WarrantyPeriodMonths = *patch.WarrantyPeriodMonths
	}
	if patch.TermsAndConditions != nil {
		quote.TermsAndConditions = patch.TermsAndConditions
	}
	if patch.ValidityPeriodDays != nil && *patch.ValidityPeriodDays != quote.ValidityPeriodDays {
		quote.ValidityPeriodDays = *patch.ValidityPeriodDays
		quote.ExpiresAt = now.AddDate(0, 0, quote.ValidityPeriodDays)
	}
	if patch.Attachments != nil {
		quote.Attachments = pq.StringArray(patch.Attachments)
	}

	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, transitionError(err, "quote")
	}
	return s.toResponse(quote)
}

// Withdraw retracts a pending quote and releases its slot on the request.
func (s *QuoteService) Withdraw(ctx context.Context, actor *models.JWTClaims, id string) (*dto.QuoteResponse, error) {
	quote, err := s.quotes.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "quote")
	}
	provider, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if provider.ID != quote.ProviderID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting provider can withdraw this quote")
	}
	if quote.Status != models.QuoteStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only pending quotes can be withdrawn")
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

	if _, err = s.lifecycle.LockByID(ctx, tx, quote.RequestID); err != nil {
		return nil, err
	}
	if err = s.quotes.TransitionStatus(ctx, tx, repository.UpdateQuoteStatusParams{
		ID:   quote.ID,
		From: models.QuoteStatusPending,
		To:   models.QuoteStatusWithdrawn,
	}); err != nil {
		return nil, transitionError(err, "quote")
	}
	if _, err = s.lifecycle.RefreshQuotesCount(ctx, tx, quote.RequestID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit withdrawal")
	}

	quote.Status = models.QuoteStatusWithdrawn
	quote.UpdatedAt = s.now().UTC()
	s.metrics.RecordTransition("quote", string(quote.Status))
	s.logger.Sugar().Infow("quote withdrawn", "quote_id", quote.ID, "provider_id", provider.ID)
	return s.toResponse(quote)
}

// Accept turns a pending quote into a project and closes bidding on the request.
// The quote, project and request writes commit together or not at all.
func (s *QuoteService) Accept(ctx context.Context, actor *models.JWTClaims, id string, req dto.AcceptQuote) (*dto.AcceptQuoteResponse, error) {
	quote, request, err := s.loadForDecision(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid acceptance payload")
	}
	if endsBefore(req.ScheduledStartDate, req.ScheduledEndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled end date must not precede the start date")
	}
	if _, err := s.projects.GetByQuoteID(ctx, nil, quote.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a project already exists for this quote")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to check existing project")
	}

	now := s.now().UTC()
	project := &models.Project{
		RequestID:          request.ID,
		QuoteID:            quote.ID,
		CitizenID:          request.CitizenID,
		ProviderID:         quote.ProviderID,
		ProjectTitle:       request.ProblemTitle,
		ProjectDescription: &request.ProblemDescription,
		Status:             models.ProjectStatusScheduled,
		ScheduledStartDate: req.ScheduledStartDate,
		ScheduledEndDate:   req.ScheduledEndDate,
		AgreedCost:         quote.EstimatedCost,
		PaymentStatus:      models.PaymentStatusPending,
	}
	if req.ProjectTitle != nil && strings.TrimSpace(*req.ProjectTitle) != "" {
		project.ProjectTitle = strings.TrimSpace(*req.ProjectTitle)
	}
	if req.ProjectDescription != nil {
		project.ProjectDescription = req.ProjectDescription
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

	if err = s.quotes.TransitionStatus(ctx, tx, repository.UpdateQuoteStatusParams{
		ID:         quote.ID,
		From:       models.QuoteStatusPending,
		To:         models.QuoteStatusAccepted,
		AcceptedAt: &now,
	}); err != nil {
		return nil, transitionError(err, "quote")
	}
	if err = s.projects.Create(ctx, tx, project); err != nil {
		return nil, transitionError(err, "project")
	}
	if err = s.lifecycle.SelectProvider(ctx, tx, request.ID, quote.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, internalError(err, "failed to commit acceptance")
	}

	quote.Status = models.QuoteStatusAccepted
	quote.AcceptedAt = &now
	quote.UpdatedAt = now
	s.metrics.RecordTransition("quote", string(quote.Status))
	s.metrics.RecordTransition("project", string(project.Status))
	publishEvent(s.events, s.policy.ProviderUserID(ctx, quote.ProviderID), models.EventQuoteAccepted, quote.ID, string(quote.Status), now)
	s.logger.Sugar().Infow("quote accepted", "quote_id", quote.ID, "request_id", request.ID, "project_id", project.ID)

	resp, err := s.toResponse(quote)
	if err != nil {
		return nil, err
	}
	return &dto.AcceptQuoteResponse{Quote: *resp, Project: *project}, nil
}

// Reject declines a pending quote. The request keeps collecting bids.
func (s *QuoteService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectQuote) (*dto.QuoteResponse, error) {
	quote, _, err := s.loadForDecision(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid rejection payload")
	}
	var reason *string
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		reason = &trimmed
	}
	if err := s.quotes.TransitionStatus(ctx, nil, repository.UpdateQuoteStatusParams{
		ID:              quote.ID,
		From:            models.QuoteStatusPending,
		To:              models.QuoteStatusRejected,
		RejectionReason: reason,
	}); err != nil {
		return nil, transitionError(err, "quote")
	}

	now := s.now().UTC()
	quote.Status = models.QuoteStatusRejected
	quote.RejectionReason = reason
	quote.UpdatedAt = now
	s.metrics.RecordTransition("quote", string(quote.Status))
	publishEvent(s.events, s.policy.ProviderUserID(ctx, quote.ProviderID), models.EventQuoteRejected, quote.ID, string(quote.Status), now)
	return s.toResponse(quote)
}

// checkAcceptsQuotes reports why a request cannot take a new bid, if it cannot.
func checkAcceptsQuotes(request *models.ServiceRequest, now time.Time) error {
	if !request.Status.AcceptsQuotes() {
		return appErrors.Clone(appErrors.ErrInvalidState, "request is not accepting quotes")
	}
	if request.IsPastExpiry(now) {
		return appErrors.Clone(appErrors.ErrInvalidState, "request bidding window has closed")
	}
	return nil
}

// loadForDecision fetches a quote and its request and checks the actor may decide on it.
func (s *QuoteService) loadForDecision(ctx context.Context, actor *models.JWTClaims, id string) (*models.Quote, *models.ServiceRequest, error) {
	quote, err := s.quotes.GetByID(ctx, nil, id)
	if err != nil {
		return nil, nil, lookupError(err, "quote")
	}
	request, err := s.requests.GetByID(ctx, nil, quote.RequestID)
	if err != nil {
		return nil, nil, lookupError(err, "service request")
	}
	if !s.policy.IsOwner(request.CitizenID, actorID(actor)) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the request owner can decide on quotes")
	}
	if quote.Status != models.QuoteStatusPending || quote.IsExpired(s.now().UTC()) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "quote is no longer pending")
	}
	return quote, request, nil
}

// SweepExpired marks pending quotes past their validity as EXPIRED.
func (s *QuoteService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.quotes.ExpirePending(ctx, now.UTC())
	if err != nil {
		return 0, internalError(err, "failed to expire quotes")
	}
	s.metrics.RecordSweep("quote", count)
	return count, nil
}

// Get returns a quote to the request owner, its provider or staff.
func (s *QuoteService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.QuoteResponse, error) {
	quote, err := s.quotes.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "quote")
	}
	if !s.canReadQuote(ctx, actor, quote) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this quote")
	}
	return s.toResponse(quote)
}

func (s *QuoteService) canReadQuote(ctx context.Context, actor *models.JWTClaims, quote *models.Quote) bool {
	if s.policy.HasRole(ctx, actor, models.RoleAdmin, models.RoleGovernment) {
		return true
	}
	if s.policy.IsProviderUser(ctx, actor, quote.ProviderID) {
		return true
	}
	request, err := s.requests.GetByID(ctx, nil, quote.RequestID)
	if err != nil {
		return false
	}
	return s.policy.IsOwner(request.CitizenID, actorID(actor))
}

// ListByRequest returns the bids on a request to its owner, providers and admins.
func (s *QuoteService) ListByRequest(ctx context.Context, actor *models.JWTClaims, requestID string, limit, offset int) ([]dto.QuoteResponse, error) {
	request, err := s.requests.GetByID(ctx, nil, requestID)
	if err != nil {
		return nil, lookupError(err, "service request")
	}
	if !s.policy.IsOwner(request.CitizenID, actorID(actor)) &&
		!s.policy.HasRole(ctx, actor, models.RoleAdmin, models.RoleEngineer, models.RoleCompany) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view quotes for this request")
	}
	return s.list(ctx, models.QuoteFilter{RequestID: requestID, Limit: limit, Offset: offset})
}

// ListMine returns the acting provider's quotes.
func (s *QuoteService) ListMine(ctx context.Context, actor *models.JWTClaims, statuses []string, limit, offset int) ([]dto.QuoteResponse, error) {
	provider, err := s.policy.ProviderFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter := models.QuoteFilter{ProviderID: provider.ID, Limit: limit, Offset: offset}
	for _, raw := range statuses {
		status := models.QuoteStatus(strings.ToUpper(strings.TrimSpace(raw)))
		switch status {
		case models.QuoteStatusPending, models.QuoteStatusAccepted, models.QuoteStatusRejected, models.QuoteStatusWithdrawn, models.QuoteStatusExpired:
			filter.Status = append(filter.Status, status)
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown quote status "+raw)
		}
	}
	return s.list(ctx, filter)
}

func (s *QuoteService) list(ctx context.Context, filter models.QuoteFilter) ([]dto.QuoteResponse, error) {
	quotes, err := s.quotes.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list quotes")
	}
	items := make([]dto.QuoteResponse, 0, len(quotes))
	for i := range quotes {
		resp, err := s.toResponse(&quotes[i])
		if err != nil {
			return nil, err
		}
		items = append(items, *resp)
	}
	return items, nil
}

func (s *QuoteService) toResponse(quote *models.Quote) (*dto.QuoteResponse, error) {
	breakdown, err := costbreakdown.Decode(quote.CostBreakdown)
	if err != nil {
		s.logger.Error("stored cost breakdown unreadable", zap.String("quote_id", quote.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrDataCorruption.Code, appErrors.ErrDataCorruption.Status, "quote data could not be read")
	}
	return &dto.QuoteResponse{
		Quote:         *quote,
		CostBreakdown: breakdown,
		IsExpired:     quote.IsExpired(s.now().UTC()),
	}, nil
}

func encodeBreakdown(b costbreakdown.Breakdown) (string, error) {
	if err := b.Validate(); err != nil {
		return "", validationError(err, "cost breakdown components must not be negative")
	}
	if !b.Consistent() {
		return "", appErrors.Clone(appErrors.ErrValidation, "cost breakdown total must equal the sum of its components")
	}
	encoded, err := costbreakdown.Encode(b)
	if err != nil {
		return "", internalError(err, "failed to encode cost breakdown")
	}
	return encoded, nil
}
