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

const serviceRequestColumns = `id, citizen_id, diagnostic_id, problem_title, problem_description, problem_category,
       additional_images, preferred_provider_type, preferred_service_date, property_type, property_address,
       contact_phone, status, selected_quote_id, quotes_count, views_count, expires_at, created_at, updated_at`

// ServiceRequestRepository persists citizen service requests.
type ServiceRequestRepository struct {
	db *sqlx.DB
}

// NewServiceRequestRepository constructs the repository.
func NewServiceRequestRepository(db *sqlx.DB) *ServiceRequestRepository {
	return &ServiceRequestRepository{db: db}
}

func (r *ServiceRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request in OPEN status with zeroed counters.
func (r *ServiceRequestRepository) Create(ctx context.Context, req *models.ServiceRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusOpen
	}
	if req.AdditionalImages == nil {
		req.AdditionalImages = pq.StringArray{}
	}
	req.QuotesCount = 0
	req.ViewsCount = 0
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	const query = `INSERT INTO service_requests
	(id, citizen_id, diagnostic_id, problem_title, problem_description, problem_category, additional_images,
	 preferred_provider_type, preferred_service_date, property_type, property_address, contact_phone, status,
	 selected_quote_id, quotes_count, views_count, expires_at, created_at, updated_at)
	VALUES (:id, :citizen_id, :diagnostic_id, :problem_title, :problem_description, :problem_category, :additional_images,
	 :preferred_provider_type, :preferred_service_date, :property_type, :property_address, :contact_phone, :status,
	 :selected_quote_id, :quotes_count, :views_count, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create service request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *ServiceRequestRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error) {
	query := `SELECT ` + serviceRequestColumns + ` FROM service_requests WHERE id = $1`
	var req models.ServiceRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get service request: %w", err)
	}
	return &req, nil
}

// LockByID reads a request and holds its row lock until exec commits.
// Quote writers take it first so the status check and the recount see committed bids.
func (r *ServiceRequestRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ServiceRequest, error) {
	query := `SELECT ` + serviceRequestColumns + ` FROM service_requests WHERE id = $1 FOR UPDATE`
	var req models.ServiceRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock service request: %w", err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *ServiceRequestRepository) List(ctx context.Context, filter models.ServiceRequestFilter) ([]models.ServiceRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + serviceRequestColumns + ` FROM service_requests`)

	conditions := make([]string, 0, 4)
	if filter.CitizenID != "" {
		args = append(args, filter.CitizenID)
		conditions = append(conditions, fmt.Sprintf("citizen_id = $%d", len(args)))
	}
	statuses := filter.Status
	if filter.ActiveOnly && len(statuses) == 0 {
		statuses = []models.RequestStatus{models.RequestStatusOpen, models.RequestStatusQuotesReceived}
	}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("problem_category = $%d", len(args)))
	}
	if filter.ActiveOnly {
		now := filter.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		args = append(args, now)
		conditions = append(conditions, fmt.Sprintf("(expires_at IS NULL OR expires_at > $%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit, offset := clampLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ServiceRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	return requests, nil
}

// Update writes the mutable request fields while the request is still open for bids.
func (r *ServiceRequestRepository) Update(ctx context.Context, req *models.ServiceRequest) error {
	req.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE service_requests SET problem_title = :problem_title, problem_description = :problem_description,
	problem_category = :problem_category, additional_images = :additional_images, preferred_provider_type = :preferred_provider_type,
	preferred_service_date = :preferred_service_date, property_type = :property_type, property_address = :property_address,
	contact_phone = :contact_phone, expires_at = :expires_at, updated_at = :updated_at
	WHERE id = :id AND status IN ('%s','%s')`, models.RequestStatusOpen, models.RequestStatusQuotesReceived)
	result, err := r.db.NamedExecContext(ctx, query, req)
	if err != nil {
		return fmt.Errorf("update service request: %w", err)
	}
	return expectAffected(result, "update service request")
}

// IncrementViews bumps the view counter atomically.
func (r *ServiceRequestRepository) IncrementViews(ctx context.Context, id string) error {
	const query = `UPDATE service_requests SET views_count = views_count + 1 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment service request views: %w", err)
	}
	return expectAffected(result, "increment service request views")
}

// TransitionStatus moves a request to next only if its current status is one of from.
func (r *ServiceRequestRepository) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("transition service request: no source status")
	}
	args := []interface{}{id, next, time.Now().UTC()}
	placeholders := make([]string, len(from))
	for i, status := range from {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE service_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status IN (%s)`, strings.Join(placeholders, ","))
	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition service request: %w", err)
	}
	return expectAffected(result, "transition service request")
}

// SelectProvider closes bidding by pointing the request at the accepted quote.
func (r *ServiceRequestRepository) SelectProvider(ctx context.Context, exec sqlx.ExtContext, id, quoteID string) error {
	query := fmt.Sprintf(`UPDATE service_requests SET status = '%s', selected_quote_id = $2, updated_at = $3
	WHERE id = $1 AND status IN ('%s','%s')`, models.RequestStatusProviderSelected, models.RequestStatusOpen, models.RequestStatusQuotesReceived)
	result, err := r.exec(exec).ExecContext(ctx, query, id, quoteID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("select provider: %w", err)
	}
	return expectAffected(result, "select provider")
}

// RefreshQuotesCount recounts non-withdrawn quotes and promotes OPEN to
// QUOTES_RECEIVED once the first bid exists. Returns the stored count.
func (r *ServiceRequestRepository) RefreshQuotesCount(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	query := fmt.Sprintf(`UPDATE service_requests SET
	quotes_count = sub.cnt,
	status = CASE WHEN service_requests.status = '%s' AND sub.cnt > 0 THEN '%s' ELSE service_requests.status END,
	updated_at = $2
FROM (SELECT COUNT(*) AS cnt FROM quotes WHERE request_id = $1 AND status <> '%s') AS sub
WHERE service_requests.id = $1
RETURNING service_requests.quotes_count`, models.RequestStatusOpen, models.RequestStatusQuotesReceived, models.QuoteStatusWithdrawn)
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, id, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("refresh quotes count: %w", err)
	}
	return count, nil
}

// ListExpiringSoon returns open requests whose bidding closes between now and until.
func (r *ServiceRequestRepository) ListExpiringSoon(ctx context.Context, now, until time.Time) ([]models.ServiceRequest, error) {
	query := fmt.Sprintf(`SELECT `+serviceRequestColumns+` FROM service_requests
	WHERE status IN ('%s','%s') AND expires_at IS NOT NULL AND expires_at > $1 AND expires_at <= $2
	ORDER BY expires_at ASC`, models.RequestStatusOpen, models.RequestStatusQuotesReceived)
	var requests []models.ServiceRequest
	if err := r.db.SelectContext(ctx, &requests, query, now, until); err != nil {
		return nil, fmt.Errorf("list expiring service requests: %w", err)
	}
	return requests, nil
}

// ExpireStale marks every open request past its expiry as EXPIRED.
func (r *ServiceRequestRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE service_requests SET status = '%s', updated_at = $1
	WHERE status IN ('%s','%s') AND expires_at IS NOT NULL AND expires_at < $1`,
		models.RequestStatusExpired, models.RequestStatusOpen, models.RequestStatusQuotesReceived)
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire service requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire service requests rows affected: %w", err)
	}
	return affected, nil
}
