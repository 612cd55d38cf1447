package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/internal/repository"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type projectStore interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	TransitionStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateProjectStatusParams) error
	AppendWorkNote(ctx context.Context, id string, note models.WorkNote) error
	AttachImages(ctx context.Context, id string, phase models.ImagePhase, images []string) error
	Update(ctx context.Context, params repository.UpdateProjectParams) error
	ListOverdue(ctx context.Context, now time.Time) ([]models.Project, error)
}

type projectStatsRecomputer interface {
	RecomputeProjects(ctx context.Context, exec sqlx.ExtContext, providerID string) error
	Invalidate(ctx context.Context, providerID string)
}

type certificateEnqueuer interface {
	Enqueue(projectID string) error
}

// ProjectServiceParams groups constructor dependencies.
type ProjectServiceParams struct {
	Projects     projectStore
	Reputation   projectStatsRecomputer
	Certificates certificateEnqueuer
	Tx           txProvider
	Policy       *AccessPolicy
	Events       eventPublisher
	Validator    *validator.Validate
	Metrics      *MetricsService
	Logger       *zap.Logger
}

// ProjectService drives project execution after a quote is accepted.
type ProjectService struct {
	projects     projectStore
	reputation   projectStatsRecomputer
	certificates certificateEnqueuer
	tx           txProvider
	policy       *AccessPolicy
	events       eventPublisher
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

// NewProjectService constructs a ProjectService.
func NewProjectService(params ProjectServiceParams) *ProjectService {
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
	return &ProjectService{
		projects:     params.Projects,
		reputation:   params.Reputation,
		certificates: params.Certificates,
		tx:           params.Tx,
		policy:       policy,
		events:       params.Events,
		validator:    validate,
		metrics:      params.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// Start moves a scheduled project into execution.
func (s *ProjectService) Start(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ProjectResponse, error) {
	project, providerUserID, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only scheduled projects can be started")
	}
	now := s.now().UTC()
	if err := s.projects.TransitionStatus(ctx, nil, repository.UpdateProjectStatusParams{
		ID:              project.ID,
		From:            models.ProjectStatusScheduled,
		To:              models.ProjectStatusInProgress,
		ActualStartDate: &now,
	}); err != nil {
		return nil, transitionError(err, "project")
	}
	project.Status = models.ProjectStatusInProgress
	project.ActualStartDate = &now
	project.UpdatedAt = now
	s.announce(project, providerUserID, models.EventProjectStarted, now)
	return s.toResponse(project)
}

// Complete finishes an in-progress project, refreshes the provider's project
// statistics and queues the completion certificate.
func (s *ProjectService) Complete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ProjectResponse, error) {
	project, providerUserID, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only in-progress projects can be completed")
	}
	now := s.now().UTC()
	if err := s.finish(ctx, repository.UpdateProjectStatusParams{
		ID:                   project.ID,
		From:                 models.ProjectStatusInProgress,
		To:                   models.ProjectStatusCompleted,
		ActualCompletionDate: &now,
	}, project.ProviderID); err != nil {
		return nil, err
	}
	project.Status = models.ProjectStatusCompleted
	project.ActualCompletionDate = &now
	project.UpdatedAt = now

	if s.certificates != nil {
		if err := s.certificates.Enqueue(project.ID); err != nil {
			s.logger.Warn("failed to enqueue completion certificate", zap.String("project_id", project.ID), zap.Error(err))
		}
	}
	s.announce(project, providerUserID, models.EventProjectCompleted, now)
	return s.toResponse(project)
}

// Cancel stops a project that has not completed. Participants and admins may cancel.
func (s *ProjectService) Cancel(ctx context.Context, actor *models.JWTClaims, id string, req dto.CancelProject) (*dto.ProjectResponse, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	providerUserID := s.policy.ProviderUserID(ctx, project.ProviderID)
	if !project.IsParticipant(actorID(actor), providerUserID) && !s.policy.HasRole(ctx, actor, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to cancel this project")
	}
	if !project.Status.CanTransitionTo(models.ProjectStatusCancelled) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "project cannot be cancelled from status "+string(project.Status))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid cancellation payload")
	}
	reason := strings.TrimSpace(req.Reason)
	now := s.now().UTC()
	if err := s.finish(ctx, repository.UpdateProjectStatusParams{
		ID:                 project.ID,
		From:               project.Status,
		To:                 models.ProjectStatusCancelled,
		CancellationReason: &reason,
	}, project.ProviderID); err != nil {
		return nil, err
	}
	project.Status = models.ProjectStatusCancelled
	project.CancellationReason = &reason
	project.UpdatedAt = now
	s.announce(project, providerUserID, models.EventProjectCancelled, now)
	return s.toResponse(project)
}

// finish applies a terminal transition and recomputes provider statistics in one transaction.
func (s *ProjectService) finish(ctx context.Context, params repository.UpdateProjectStatusParams, providerID string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.projects.TransitionStatus(ctx, tx, params); err != nil {
		return transitionError(err, "project")
	}
	if s.reputation != nil {
		if err = s.reputation.RecomputeProjects(ctx, tx, providerID); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return internalError(err, "failed to commit project transition")
	}
	if s.reputation != nil {
		s.reputation.Invalidate(ctx, providerID)
	}
	return nil
}

// AppendWorkNote adds a journal entry written by the citizen or the provider.
func (s *ProjectService) AppendWorkNote(ctx context.Context, actor *models.JWTClaims, id string, req dto.AppendWorkNote) (*dto.ProjectResponse, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(actorID(actor), s.policy.ProviderUserID(ctx, project.ProviderID)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only project participants can add work notes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid work note payload")
	}
	images := req.Images
	if images == nil {
		images = []string{}
	}
	note := models.WorkNote{
		Timestamp:  s.now().UTC(),
		AuthorID:   actor.UserID,
		AuthorName: actor.FullName,
		Note:       strings.TrimSpace(req.Note),
		Images:     images,
	}
	if err := s.projects.AppendWorkNote(ctx, project.ID, note); err != nil {
		return nil, lookupError(err, "project")
	}
	return s.reload(ctx, project.ID)
}

// AttachImages adds photos to one phase of the project.
func (s *ProjectService) AttachImages(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttachImages) (*dto.ProjectResponse, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.IsProviderUser(ctx, actor, project.ProviderID) && !s.policy.HasRole(ctx, actor, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the provider can attach project images")
	}
	phase, err := models.ParseImagePhase(req.Phase)
	if err != nil {
		return nil, validationError(err, "phase must be one of before, during, after")
	}
	if len(req.Images) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one image is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid image payload")
	}
	if err := s.projects.AttachImages(ctx, project.ID, phase, req.Images); err != nil {
		return nil, lookupError(err, "project")
	}
	return s.reload(ctx, project.ID)
}

// Update patches the editable project details.
func (s *ProjectService) Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateProject) (*dto.ProjectResponse, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	isAdmin := s.policy.HasRole(ctx, actor, models.RoleAdmin)
	isCitizen := s.policy.IsOwner(project.CitizenID, actorID(actor))
	if !isAdmin && !isCitizen && !s.policy.IsProviderUser(ctx, actor, project.ProviderID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this project")
	}
	if patch.CitizenSatisfaction != nil && !isCitizen && !isAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the citizen can record satisfaction")
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationError(err, "invalid project payload")
	}

	params := repository.UpdateProjectParams{
		ID:                       project.ID,
		ProjectDescription:       patch.ProjectDescription,
		ScheduledStartDate:       patch.ScheduledStartDate,
		ScheduledEndDate:         patch.ScheduledEndDate,
		ActualCost:               patch.ActualCost,
		CostDifferenceReason:     patch.CostDifferenceReason,
		PaymentStatus:            patch.PaymentStatus,
		TechnicalReportURL:       patch.TechnicalReportURL,
		CompletionCertificateURL: patch.CompletionCertificateURL,
		WarrantyStartDate:        patch.WarrantyStartDate,
		WarrantyEndDate:          patch.WarrantyEndDate,
		CitizenSatisfaction:      patch.CitizenSatisfaction,
	}
	if patch.ProjectTitle != nil {
		title := strings.TrimSpace(*patch.ProjectTitle)
		params.ProjectTitle = &title
	}
	if endsBefore(pick(patch.ScheduledStartDate, project.ScheduledStartDate), pick(patch.ScheduledEndDate, project.ScheduledEndDate)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled end date must not precede the start date")
	}
	if endsBefore(pick(patch.WarrantyStartDate, project.WarrantyStartDate), pick(patch.WarrantyEndDate, project.WarrantyEndDate)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "warranty end date must not precede the start date")
	}

	if err := s.projects.Update(ctx, params); err != nil {
		return nil, lookupError(err, "project")
	}
	return s.reload(ctx, project.ID)
}

func pick(patched, stored *time.Time) *time.Time {
	if patched != nil {
		return patched
	}
	return stored
}

// Get returns a project to its participants and staff.
func (s *ProjectService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ProjectResponse, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.HasRole(ctx, actor, models.RoleAdmin, models.RoleGovernment) &&
		!project.IsParticipant(actorID(actor), s.policy.ProviderUserID(ctx, project.ProviderID)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this project")
	}
	return s.toResponse(project)
}

// List returns projects visible to the actor. Citizens and providers only see their own.
func (s *ProjectService) List(ctx context.Context, actor *models.JWTClaims, query dto.ProjectQuery) ([]dto.ProjectResponse, error) {
	filter := models.ProjectFilter{ActiveOnly: query.ActiveOnly, Limit: query.Limit, Offset: query.Offset}
	for _, raw := range query.Status {
		status := models.ProjectStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown project status "+raw)
		}
		filter.Status = append(filter.Status, status)
	}
	switch {
	case s.policy.HasRole(ctx, actor, models.RoleAdmin, models.RoleGovernment):
	case s.policy.HasRole(ctx, actor, models.RoleEngineer, models.RoleCompany):
		provider, err := s.policy.ProviderFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		filter.ProviderID = provider.ID
	default:
		if actorID(actor) == "" {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
		}
		filter.CitizenID = actor.UserID
	}
	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list projects")
	}
	return s.toResponses(projects)
}

// ListOverdue returns in-progress projects past their scheduled end.
func (s *ProjectService) ListOverdue(ctx context.Context, actor *models.JWTClaims) ([]dto.ProjectResponse, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	projects, err := s.projects.ListOverdue(ctx, s.now().UTC())
	if err != nil {
		return nil, internalError(err, "failed to list overdue projects")
	}
	return s.toResponses(projects)
}

func (s *ProjectService) load(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	return project, nil
}

func (s *ProjectService) reload(ctx context.Context, id string) (*dto.ProjectResponse, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(project)
}

// loadForProvider fetches a project and checks the actor is its provider.
func (s *ProjectService) loadForProvider(ctx context.Context, actor *models.JWTClaims, id string) (*models.Project, string, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	providerUserID := s.policy.ProviderUserID(ctx, project.ProviderID)
	if !s.policy.IsOwner(providerUserID, actorID(actor)) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "only the assigned provider can perform this action")
	}
	return project, providerUserID, nil
}

func (s *ProjectService) announce(project *models.Project, providerUserID, eventType string, at time.Time) {
	s.metrics.RecordTransition("project", string(project.Status))
	publishEvent(s.events, project.CitizenID, eventType, project.ID, string(project.Status), at)
	publishEvent(s.events, providerUserID, eventType, project.ID, string(project.Status), at)
	s.logger.Sugar().Infow("project status changed", "project_id", project.ID, "status", project.Status)
}

func (s *ProjectService) toResponses(projects []models.Project) ([]dto.ProjectResponse, error) {
	items := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		resp, err := s.toResponse(&projects[i])
		if err != nil {
			return nil, err
		}
		items = append(items, *resp)
	}
	return items, nil
}

func (s *ProjectService) toResponse(project *models.Project) (*dto.ProjectResponse, error) {
	notes, err := project.Notes()
	if err != nil {
		s.logger.Error("stored work notes unreadable", zap.String("project_id", project.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrDataCorruption.Code, appErrors.ErrDataCorruption.Status, "project data could not be read")
	}
	return &dto.ProjectResponse{
		Project:      *project,
		WorkNotes:    notes,
		DurationDays: project.Duration(),
		IsOverdue:    project.IsOverdue(s.now().UTC()),
	}, nil
}

func endsBefore(start, end *time.Time) bool {
	return start != nil && end != nil && end.Before(*start)
}
