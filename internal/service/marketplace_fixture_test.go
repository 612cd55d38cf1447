package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/internal/repository"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

// marketplace is an in-memory stand-in for the lifecycle tables. Conditional
// writes honour the same status guards as the SQL repositories.
type marketplace struct {
	mu          sync.Mutex
	seq         int
	requests    map[string]*models.ServiceRequest
	quotes      map[string]*models.Quote
	projects    map[string]*models.Project
	ratings     map[string]*models.Rating
	profiles    map[string]*models.ProviderProfile
	diagnostics map[string]*models.Diagnostic
	fail        map[string]error
}

func newMarketplace() *marketplace {
	return &marketplace{
		requests:    map[string]*models.ServiceRequest{},
		quotes:      map[string]*models.Quote{},
		projects:    map[string]*models.Project{},
		ratings:     map[string]*models.Rating{},
		profiles:    map[string]*models.ProviderProfile{},
		diagnostics: map[string]*models.Diagnostic{},
		fail:        map[string]error{},
	}
}

func (m *marketplace) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *marketplace) failure(op string) error {
	return m.fail[op]
}

// --- service requests ---

type fakeRequestStore struct{ m *marketplace }

func (s fakeRequestStore) Create(_ context.Context, req *models.ServiceRequest) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req.ID = s.m.nextID("req")
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	copied := *req
	s.m.requests[req.ID] = &copied
	return nil
}

func (s fakeRequestStore) GetByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.ServiceRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (s fakeRequestStore) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error) {
	return s.GetByID(ctx, exec, id)
}

func (s fakeRequestStore) List(_ context.Context, filter models.ServiceRequestFilter) ([]models.ServiceRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.ServiceRequest, 0)
	for _, req := range s.m.requests {
		if filter.CitizenID != "" && req.CitizenID != filter.CitizenID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, req.Status) {
			continue
		}
		items = append(items, *req)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func containsStatus(statuses []models.RequestStatus, status models.RequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s fakeRequestStore) Update(_ context.Context, req *models.ServiceRequest) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	stored, ok := s.m.requests[req.ID]
	if !ok || !stored.Status.AcceptsQuotes() {
		return sql.ErrNoRows
	}
	copied := *req
	copied.Status = stored.Status
	copied.QuotesCount = stored.QuotesCount
	s.m.requests[req.ID] = &copied
	return nil
}

func (s fakeRequestStore) IncrementViews(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.ViewsCount++
	return nil
}

func (s fakeRequestStore) TransitionStatus(_ context.Context, _ sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[id]
	if !ok || !containsStatus(from, req.Status) {
		return sql.ErrNoRows
	}
	req.Status = next
	return nil
}

func (s fakeRequestStore) SelectProvider(_ context.Context, _ sqlx.ExtContext, id, quoteID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("select_provider"); err != nil {
		return err
	}
	req, ok := s.m.requests[id]
	if !ok || !req.Status.AcceptsQuotes() {
		return sql.ErrNoRows
	}
	req.Status = models.RequestStatusProviderSelected
	req.SelectedQuoteID = &quoteID
	return nil
}

func (s fakeRequestStore) RefreshQuotesCount(_ context.Context, _ sqlx.ExtContext, id string) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	count := 0
	for _, q := range s.m.quotes {
		if q.RequestID == id && q.Status != models.QuoteStatusWithdrawn {
			count++
		}
	}
	req.QuotesCount = count
	if req.Status == models.RequestStatusOpen && count > 0 {
		req.Status = models.RequestStatusQuotesReceived
	}
	return count, nil
}

func (s fakeRequestStore) ListExpiringSoon(_ context.Context, now, until time.Time) ([]models.ServiceRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.ServiceRequest, 0)
	for _, req := range s.m.requests {
		if req.Status.AcceptsQuotes() && req.ExpiresAt != nil && req.ExpiresAt.After(now) && !req.ExpiresAt.After(until) {
			items = append(items, *req)
		}
	}
	return items, nil
}

func (s fakeRequestStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var count int64
	for _, req := range s.m.requests {
		if req.Status.AcceptsQuotes() && req.ExpiresAt != nil && req.ExpiresAt.Before(now) {
			req.Status = models.RequestStatusExpired
			count++
		}
	}
	return count, nil
}

// --- quotes ---

type fakeQuoteStore struct{ m *marketplace }

func (s fakeQuoteStore) Create(_ context.Context, _ sqlx.ExtContext, quote *models.Quote) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.quotes {
		if existing.RequestID == quote.RequestID && existing.ProviderID == quote.ProviderID && existing.Status != models.QuoteStatusWithdrawn {
			return repository.ErrDuplicate
		}
	}
	quote.ID = s.m.nextID("quote")
	quote.UpdatedAt = quote.SubmittedAt
	copied := *quote
	s.m.quotes[quote.ID] = &copied
	return nil
}

func (s fakeQuoteStore) GetByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Quote, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	quote, ok := s.m.quotes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *quote
	return &copied, nil
}

func (s fakeQuoteStore) List(_ context.Context, filter models.QuoteFilter) ([]models.Quote, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Quote, 0)
	for _, q := range s.m.quotes {
		if filter.RequestID != "" && q.RequestID != filter.RequestID {
			continue
		}
		if filter.ProviderID != "" && q.ProviderID != filter.ProviderID {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, status := range filter.Status {
				found = found || status == q.Status
			}
			if !found {
				continue
			}
		}
		items = append(items, *q)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s fakeQuoteStore) Update(_ context.Context, quote *models.Quote) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	stored, ok := s.m.quotes[quote.ID]
	if !ok || stored.Status != models.QuoteStatusPending {
		return sql.ErrNoRows
	}
	copied := *quote
	s.m.quotes[quote.ID] = &copied
	return nil
}

func (s fakeQuoteStore) TransitionStatus(_ context.Context, _ sqlx.ExtContext, params repository.UpdateQuoteStatusParams) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("quote_transition"); err != nil {
		return err
	}
	quote, ok := s.m.quotes[params.ID]
	if !ok || quote.Status != params.From {
		return sql.ErrNoRows
	}
	quote.Status = params.To
	if params.AcceptedAt != nil {
		quote.AcceptedAt = params.AcceptedAt
	}
	if params.RejectionReason != nil {
		quote.RejectionReason = params.RejectionReason
	}
	return nil
}

func (s fakeQuoteStore) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var count int64
	for _, q := range s.m.quotes {
		if q.Status == models.QuoteStatusPending && q.ExpiresAt.Before(now) {
			q.Status = models.QuoteStatusExpired
			count++
		}
	}
	return count, nil
}

// --- projects ---

type fakeProjectStore struct{ m *marketplace }

func (s fakeProjectStore) Create(_ context.Context, _ sqlx.ExtContext, project *models.Project) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("project_create"); err != nil {
		return err
	}
	for _, existing := range s.m.projects {
		if existing.QuoteID == project.QuoteID {
			return repository.ErrDuplicate
		}
	}
	project.ID = s.m.nextID("project")
	project.CreatedAt = time.Now().UTC()
	project.UpdatedAt = project.CreatedAt
	copied := *project
	s.m.projects[project.ID] = &copied
	return nil
}

func (s fakeProjectStore) GetByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	project, ok := s.m.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *project
	return &copied, nil
}

func (s fakeProjectStore) GetByQuoteID(_ context.Context, _ sqlx.ExtContext, quoteID string) (*models.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, project := range s.m.projects {
		if project.QuoteID == quoteID {
			copied := *project
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s fakeProjectStore) List(_ context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Project, 0)
	for _, p := range s.m.projects {
		if filter.CitizenID != "" && p.CitizenID != filter.CitizenID {
			continue
		}
		if filter.ProviderID != "" && p.ProviderID != filter.ProviderID {
			continue
		}
		items = append(items, *p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s fakeProjectStore) TransitionStatus(_ context.Context, _ sqlx.ExtContext, params repository.UpdateProjectStatusParams) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	project, ok := s.m.projects[params.ID]
	if !ok || project.Status != params.From {
		return sql.ErrNoRows
	}
	project.Status = params.To
	if params.ActualStartDate != nil {
		project.ActualStartDate = params.ActualStartDate
	}
	if params.ActualCompletionDate != nil {
		project.ActualCompletionDate = params.ActualCompletionDate
	}
	if params.CancellationReason != nil {
		project.CancellationReason = params.CancellationReason
	}
	return nil
}

func (s fakeProjectStore) AppendWorkNote(_ context.Context, id string, note models.WorkNote) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	project, ok := s.m.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	notes, err := project.Notes()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(append(notes, note))
	if err != nil {
		return err
	}
	project.WorkNotes = encoded
	return nil
}

func (s fakeProjectStore) AttachImages(_ context.Context, id string, phase models.ImagePhase, images []string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	project, ok := s.m.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	switch phase {
	case models.ImagePhaseBefore:
		project.BeforeImages = append(project.BeforeImages, images...)
	case models.ImagePhaseDuring:
		project.DuringImages = append(project.DuringImages, images...)
	case models.ImagePhaseAfter:
		project.AfterImages = append(project.AfterImages, images...)
	}
	return nil
}

func (s fakeProjectStore) Update(_ context.Context, params repository.UpdateProjectParams) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	stored, ok := s.m.projects[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	copied := *stored
	if params.ProjectTitle != nil {
		copied.ProjectTitle = *params.ProjectTitle
	}
	if params.ProjectDescription != nil {
		copied.ProjectDescription = params.ProjectDescription
	}
	if params.ScheduledStartDate != nil {
		copied.ScheduledStartDate = params.ScheduledStartDate
	}
	if params.ScheduledEndDate != nil {
		copied.ScheduledEndDate = params.ScheduledEndDate
	}
	if params.ActualCost != nil {
		copied.ActualCost = params.ActualCost
	}
	if params.CostDifferenceReason != nil {
		copied.CostDifferenceReason = params.CostDifferenceReason
	}
	if params.PaymentStatus != nil {
		copied.PaymentStatus = *params.PaymentStatus
	}
	if params.TechnicalReportURL != nil {
		copied.TechnicalReportURL = params.TechnicalReportURL
	}
	if params.CompletionCertificateURL != nil {
		copied.CompletionCertificateURL = params.CompletionCertificateURL
	}
	if params.WarrantyStartDate != nil {
		copied.WarrantyStartDate = params.WarrantyStartDate
	}
	if params.WarrantyEndDate != nil {
		copied.WarrantyEndDate = params.WarrantyEndDate
	}
	if params.CitizenSatisfaction != nil {
		copied.CitizenSatisfaction = params.CitizenSatisfaction
	}
	s.m.projects[params.ID] = &copied
	return nil
}

func (s fakeProjectStore) ListOverdue(_ context.Context, now time.Time) ([]models.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Project, 0)
	for _, p := range s.m.projects {
		if p.IsOverdue(now) {
			items = append(items, *p)
		}
	}
	return items, nil
}

func (s fakeProjectStore) StatsByProvider(_ context.Context, _ sqlx.ExtContext, providerID string) (models.ProviderProjectStats, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var stats models.ProviderProjectStats
	for _, p := range s.m.projects {
		if p.ProviderID != providerID {
			continue
		}
		switch p.Status {
		case models.ProjectStatusCancelled:
			stats.Cancelled++
		case models.ProjectStatusCompleted:
			stats.Completed++
			stats.Total++
		default:
			stats.Total++
		}
	}
	return stats, nil
}

func (s fakeProjectStore) SetCertificateURL(_ context.Context, id, url string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	project, ok := s.m.projects[id]
	if !ok || project.CompletionCertificateURL != nil {
		return false, nil
	}
	project.CompletionCertificateURL = &url
	return true, nil
}

// --- ratings ---

type fakeRatingStore struct{ m *marketplace }

func (s fakeRatingStore) Create(_ context.Context, _ sqlx.ExtContext, rating *models.Rating) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.ratings {
		if existing.ProjectID == rating.ProjectID && existing.CitizenID == rating.CitizenID {
			return repository.ErrDuplicate
		}
	}
	rating.ID = s.m.nextID("rating")
	rating.CreatedAt = time.Now().UTC()
	rating.UpdatedAt = rating.CreatedAt
	copied := *rating
	s.m.ratings[rating.ID] = &copied
	return nil
}

func (s fakeRatingStore) GetByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Rating, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rating, ok := s.m.ratings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *rating
	return &copied, nil
}

func (s fakeRatingStore) ListByProvider(_ context.Context, providerID string, limit, offset int) ([]models.Rating, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Rating, 0)
	for _, r := range s.m.ratings {
		if r.ProviderID == providerID {
			items = append(items, *r)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if offset >= len(items) {
		return []models.Rating{}, nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s fakeRatingStore) ListByProject(_ context.Context, projectID string) ([]models.Rating, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Rating, 0)
	for _, r := range s.m.ratings {
		if r.ProjectID == projectID {
			items = append(items, *r)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s fakeRatingStore) ListByCitizen(_ context.Context, citizenID string, _, _ int) ([]models.Rating, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Rating, 0)
	for _, r := range s.m.ratings {
		if r.CitizenID == citizenID {
			items = append(items, *r)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s fakeRatingStore) Featured(_ context.Context, limit int) ([]models.Rating, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	items := make([]models.Rating, 0)
	for _, r := range s.m.ratings {
		if r.IsFeatured {
			items = append(items, *r)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s fakeRatingStore) Update(_ context.Context, _ sqlx.ExtContext, rating *models.Rating) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.ratings[rating.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *rating
	s.m.ratings[rating.ID] = &copied
	return nil
}

func (s fakeRatingStore) SetProviderResponse(_ context.Context, id, response string, at time.Time) error {
	return s.mutate(id, func(r *models.Rating) {
		r.ProviderResponse = &response
		r.ResponseAt = &at
	})
}

func (s fakeRatingStore) IncrementHelpful(_ context.Context, id string) error {
	return s.mutate(id, func(r *models.Rating) { r.HelpfulCount++ })
}

func (s fakeRatingStore) SetVerified(_ context.Context, id string, verified bool) error {
	return s.mutate(id, func(r *models.Rating) { r.IsVerified = verified })
}

func (s fakeRatingStore) SetFeatured(_ context.Context, id string, featured bool) error {
	return s.mutate(id, func(r *models.Rating) { r.IsFeatured = featured })
}

func (s fakeRatingStore) mutate(id string, fn func(*models.Rating)) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rating, ok := s.m.ratings[id]
	if !ok {
		return sql.ErrNoRows
	}
	fn(rating)
	return nil
}

func (s fakeRatingStore) AggregateForProvider(_ context.Context, _ sqlx.ExtContext, providerID string) (models.RatingAggregate, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var agg models.RatingAggregate
	sum := 0
	for _, r := range s.m.ratings {
		if r.ProviderID == providerID {
			sum += r.Overall
			agg.Count++
		}
	}
	if agg.Count > 0 {
		agg.Average = float64(sum) / float64(agg.Count)
	}
	return agg, nil
}

// --- provider profiles ---

type fakeProfileStore struct{ m *marketplace }

func (s fakeProfileStore) GetByID(_ context.Context, id string) (*models.ProviderProfile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	profile, ok := s.m.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *profile
	return &copied, nil
}

func (s fakeProfileStore) GetByUserID(_ context.Context, userID string) (*models.ProviderProfile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, profile := range s.m.profiles {
		if profile.UserID == userID {
			copied := *profile
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s fakeProfileStore) LockByID(ctx context.Context, _ sqlx.ExtContext, id string) (*models.ProviderProfile, error) {
	return s.GetByID(ctx, id)
}

func (s fakeProfileStore) UpdateRatingStats(_ context.Context, _ sqlx.ExtContext, id string, average float64, total int) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	profile, ok := s.m.profiles[id]
	if !ok {
		return sql.ErrNoRows
	}
	profile.AverageRating = average
	profile.TotalRatings = total
	return nil
}

func (s fakeProfileStore) UpdateProjectStats(_ context.Context, _ sqlx.ExtContext, id string, totalProjects int, completionRate float64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	profile, ok := s.m.profiles[id]
	if !ok {
		return sql.ErrNoRows
	}
	profile.TotalProjects = totalProjects
	profile.CompletionRate = completionRate
	return nil
}

// --- diagnostics ---

type fakeDiagnosticStore struct{ m *marketplace }

func (s fakeDiagnosticStore) Create(_ context.Context, diag *models.Diagnostic) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	diag.ID = s.m.nextID("diag")
	diag.CreatedAt = time.Now().UTC()
	copied := *diag
	s.m.diagnostics[diag.ID] = &copied
	return nil
}

func (s fakeDiagnosticStore) GetByID(_ context.Context, id string) (*models.Diagnostic, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	diag, ok := s.m.diagnostics[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *diag
	return &copied, nil
}

func (s fakeDiagnosticStore) List(_ context.Context, filter models.DiagnosticFilter) ([]models.Diagnostic, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.Diagnostic
	for _, diag := range s.m.diagnostics {
		if filter.CitizenID != "" && diag.CitizenID != filter.CitizenID {
			continue
		}
		if filter.RiskLevel != "" && diag.RiskLevel != filter.RiskLevel {
			continue
		}
		if filter.Category != "" && diag.ProblemCategory != filter.Category {
			continue
		}
		out = append(out, *diag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s fakeDiagnosticStore) Statistics(_ context.Context) (*models.DiagnosticStatistics, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	stats := &models.DiagnosticStatistics{ByRiskLevel: map[string]int{}, ByCategory: map[string]int{}}
	var confidence float64
	for _, diag := range s.m.diagnostics {
		stats.Total++
		stats.ByRiskLevel[string(diag.RiskLevel)]++
		stats.ByCategory[diag.ProblemCategory]++
		if diag.RiskLevel == models.RiskHigh || diag.RiskLevel == models.RiskCritical {
			stats.HighRisk++
		}
		confidence += diag.ConfidenceScore
	}
	if stats.Total > 0 {
		stats.AverageConfidence = confidence / float64(stats.Total)
	}
	return stats, nil
}

// --- collaborators ---

type publishedEvent struct {
	UserID string
	Event  models.LifecycleEvent
}

type eventRecorder struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *eventRecorder) Publish(userID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, _ := payload.(models.LifecycleEvent)
	r.events = append(r.events, publishedEvent{UserID: userID, Event: event})
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event.Type+"->"+e.UserID)
	}
	return out
}

type certificateQueueStub struct {
	mu       sync.Mutex
	projects []string
	err      error
}

func (c *certificateQueueStub) Enqueue(projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.projects = append(c.projects, projectID)
	return nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
		c.deletes = append(c.deletes, key)
	}
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// --- fixture ---

var fixtureNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type lifecycleFixture struct {
	store        *marketplace
	mock         sqlmock.Sqlmock
	cache        *memoryCache
	events       *eventRecorder
	certificates *certificateQueueStub
	policy       *AccessPolicy

	requests   *RequestService
	quotes     *QuoteService
	projects   *ProjectService
	ratings    *RatingService
	reputation *ReputationService

	citizen  *models.JWTClaims
	other    *models.JWTClaims
	admin    *models.JWTClaims
	engineer *models.JWTClaims
	company  *models.JWTClaims
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := newMarketplace()
	store.profiles["prov-eng"] = &models.ProviderProfile{ID: "prov-eng", UserID: "user-eng", ProviderType: models.ProviderTypeEngineer, BusinessName: "Eng Solo"}
	store.profiles["prov-co"] = &models.ProviderProfile{ID: "prov-co", UserID: "user-co", ProviderType: models.ProviderTypeCompany, BusinessName: "Fix Co"}

	tx, mock := newTxProviderMock(t)
	cacheRepo := newMemoryCache()
	events := &eventRecorder{}
	certs := &certificateQueueStub{}
	profiles := fakeProfileStore{m: store}
	projects := fakeProjectStore{m: store}
	ratings := fakeRatingStore{m: store}
	policy := NewAccessPolicy(nil, profiles, nil)

	requestSvc := NewRequestService(RequestServiceParams{
		Repo:        fakeRequestStore{m: store},
		Diagnostics: fakeDiagnosticStore{m: store},
		Policy:      policy,
	})
	reputationSvc := NewReputationService(ReputationServiceParams{
		Profiles: profiles,
		Ratings:  ratings,
		Projects: projects,
		Tx:       tx,
		Cache:    NewCacheService(cacheRepo, nil, time.Minute, nil),
	})
	quoteSvc := NewQuoteService(QuoteServiceParams{
		Quotes:    fakeQuoteStore{m: store},
		Requests:  fakeRequestStore{m: store},
		Lifecycle: requestSvc,
		Projects:  projects,
		Tx:        tx,
		Policy:    policy,
		Events:    events,
	})
	projectSvc := NewProjectService(ProjectServiceParams{
		Projects:     projects,
		Reputation:   reputationSvc,
		Certificates: certs,
		Tx:           tx,
		Policy:       policy,
		Events:       events,
	})
	ratingSvc := NewRatingService(RatingServiceParams{
		Ratings:    ratings,
		Projects:   projects,
		Reputation: reputationSvc,
		Tx:         tx,
		Policy:     policy,
		Events:     events,
	})

	clock := func() time.Time { return fixtureNow }
	requestSvc.now = clock
	quoteSvc.now = clock
	projectSvc.now = clock
	ratingSvc.now = clock
	reputationSvc.now = clock

	return &lifecycleFixture{
		store:        store,
		mock:         mock,
		cache:        cacheRepo,
		events:       events,
		certificates: certs,
		policy:       policy,
		requests:     requestSvc,
		quotes:       quoteSvc,
		projects:     projectSvc,
		ratings:      ratingSvc,
		reputation:   reputationSvc,
		citizen:      &models.JWTClaims{UserID: "user-cit", Role: models.RoleCitizen, FullName: "Cit Izen"},
		other:        &models.JWTClaims{UserID: "user-other", Role: models.RoleCitizen},
		admin:        &models.JWTClaims{UserID: "user-admin", Role: models.RoleAdmin},
		engineer:     &models.JWTClaims{UserID: "user-eng", Role: models.RoleEngineer, FullName: "Eng Solo"},
		company:      &models.JWTClaims{UserID: "user-co", Role: models.RoleCompany},
	}
}

func (f *lifecycleFixture) seedRequest(status models.RequestStatus, expiresAt *time.Time) *models.ServiceRequest {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	req := &models.ServiceRequest{
		ID:                 f.store.nextID("req"),
		CitizenID:          f.citizen.UserID,
		ProblemTitle:       "Leaking pipe",
		ProblemDescription: "Water under the kitchen sink",
		ProblemCategory:    "PLUMBING",
		Status:             status,
		ExpiresAt:          expiresAt,
	}
	f.store.requests[req.ID] = req
	copied := *req
	return &copied
}

func (f *lifecycleFixture) seedProject(status models.ProjectStatus, providerID string) *models.Project {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	project := &models.Project{
		ID:            f.store.nextID("project"),
		RequestID:     "req-x",
		QuoteID:       f.store.nextID("quote"),
		CitizenID:     f.citizen.UserID,
		ProviderID:    providerID,
		ProjectTitle:  "Fix pipe",
		Status:        status,
		AgreedCost:    500,
		PaymentStatus: models.PaymentStatusPending,
	}
	f.store.projects[project.ID] = project
	copied := *project
	return &copied
}

func (f *lifecycleFixture) request(id string) models.ServiceRequest {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return *f.store.requests[id]
}

func (f *lifecycleFixture) quote(id string) models.Quote {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return *f.store.quotes[id]
}

func (f *lifecycleFixture) project(id string) models.Project {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return *f.store.projects[id]
}

func (f *lifecycleFixture) profile(id string) models.ProviderProfile {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return *f.store.profiles[id]
}

func (f *lifecycleFixture) expectTx(commit bool) {
	f.mock.ExpectBegin()
	if commit {
		f.mock.ExpectCommit()
	} else {
		f.mock.ExpectRollback()
	}
}

func requireAppError(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, want.Code, appErr.Code, "message: %s", appErr.Message)
}
