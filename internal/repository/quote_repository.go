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

const quoteColumns = `id, request_id, provider_id, estimated_cost, cost_breakdown, estimated_duration_days,
       technical_assessment, proposed_solution, materials_included, warranty_period_months, terms_and_conditions,
       validity_period_days, attachments, status, rejection_reason, submitted_at, expires_at, accepted_at, updated_at`

// QuoteRepository persists provider quotes.
type QuoteRepository struct {
	db *sqlx.DB
}

// NewQuoteRepository constructs the repository.
func NewQuoteRepository(db *sqlx.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a PENDING quote. A second active quote from the same provider
// on the same request yields ErrDuplicate.
func (r *QuoteRepository) Create(ctx context.Context, exec sqlx.ExtContext, quote *models.Quote) error {
	if quote.ID == "" {
		quote.ID = uuid.NewString()
	}
	if quote.Status == "" {
		quote.Status = models.QuoteStatusPending
	}
	if quote.Attachments == nil {
		quote.Attachments = pq.StringArray{}
	}
	now := time.Now().UTC()
	if quote.SubmittedAt.IsZero() {
		quote.SubmittedAt = now
	}
	quote.UpdatedAt = now

	const query = `INSERT INTO quotes
	(id, request_id, provider_id, estimated_cost, cost_breakdown, estimated_duration_days, technical_assessment,
	 proposed_solution, materials_included, warranty_period_months, terms_and_conditions, validity_period_days,
	 attachments, status, rejection_reason, submitted_at, expires_at, accepted_at, updated_at)
	VALUES (:id, :request_id, :provider_id, :estimated_cost, :cost_breakdown, :estimated_duration_days, :technical_assessment,
	 :proposed_solution, :materials_included, :warranty_period_months, :terms_and_conditions, :validity_period_days,
	 :attachments, :status, :rejection_reason, :submitted_at, :expires_at, :accepted_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, quote); err != nil {
		if translateWriteError(err) == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}

// GetByID fetches a quote by identifier.
func (r *QuoteRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	var quote models.Quote
	if err := sqlx.GetContext(ctx, r.exec(exec), &quote, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return &quote, nil
}

// List returns quotes matching the filter, newest first.
func (r *QuoteRepository) List(ctx context.Context, filter models.QuoteFilter) ([]models.Quote, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + quoteColumns + ` FROM quotes`)

	conditions := make([]string, 0, 3)
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if filter.ProviderID != "" {
		args = append(args, filter.ProviderID)
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit, offset := clampLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var quotes []models.Quote
	if err := r.db.SelectContext(ctx, &quotes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

// Update writes the editable quote fields while the quote is still PENDING.
func (r *QuoteRepository) Update(ctx context.Context, quote *models.Quote) error {
	quote.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE quotes SET estimated_cost = :estimated_cost, cost_breakdown = :cost_breakdown,
	estimated_duration_days = :estimated_duration_days, technical_assessment = :technical_assessment,
	proposed_solution = :proposed_solution, materials_included = :materials_included,
	warranty_period_months = :warranty_period_months, terms_and_conditions = :terms_and_conditions,
	validity_period_days = :validity_period_days, attachments = :attachments, expires_at = :expires_at,
	updated_at = :updated_at
	WHERE id = :id AND status = '%s'`, models.QuoteStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, quote)
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}
	return expectAffected(result, "update quote")
}

// UpdateQuoteStatusParams describes a guarded status change.
type UpdateQuoteStatusParams struct {
	ID              string
	From            models.QuoteStatus
	To              models.QuoteStatus
	AcceptedAt      *time.Time
	RejectionReason *string
}

// TransitionStatus applies a status change only if the quote is still in From.
func (r *QuoteRepository) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateQuoteStatusParams) error {
	setParts := []string{"status = :to", "updated_at = :updated_at"}
	if params.AcceptedAt != nil {
		setParts = append(setParts, "accepted_at = :accepted_at")
	}
	if params.RejectionReason != nil {
		setParts = append(setParts, "rejection_reason = :rejection_reason")
	}
	query := fmt.Sprintf("UPDATE quotes SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":               params.ID,
		"from":             params.From,
		"to":               params.To,
		"updated_at":       time.Now().UTC(),
		"accepted_at":      params.AcceptedAt,
		"rejection_reason": params.RejectionReason,
	})
	if err != nil {
		return fmt.Errorf("transition quote: %w", err)
	}
	return expectAffected(result, "transition quote")
}

// ExpirePending marks every pending quote past its validity as EXPIRED.
func (r *QuoteRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE quotes SET status = '%s', updated_at = $1 WHERE status = '%s' AND expires_at < $1`,
		models.QuoteStatusExpired, models.QuoteStatusPending)
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire quotes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire quotes rows affected: %w", err)
	}
	return affected, nil
}
