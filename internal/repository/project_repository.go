package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

const projectColumns = `id, request_id, quote_id, citizen_id, provider_id, project_title, project_description, status,
       scheduled_start_date, actual_start_date, scheduled_end_date, actual_completion_date, agreed_cost, actual_cost,
       cost_difference_reason, payment_status, work_notes, before_images, during_images, after_images,
       technical_report_url, completion_certificate_url, warranty_start_date, warranty_end_date,
       citizen_satisfaction, cancellation_reason, created_at, updated_at`

// ProjectRepository persists project execution records.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a SCHEDULED project. A second project for the same quote yields ErrDuplicate.
func (r *ProjectRepository) Create(ctx context.Context, exec sqlx.ExtContext, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.ProjectStatusScheduled
	}
	if project.PaymentStatus == "" {
		project.PaymentStatus = models.PaymentStatusPending
	}
	if len(project.WorkNotes) == 0 {
		project.WorkNotes = types.JSONText(`[]`)
	}
	if project.BeforeImages == nil {
		project.BeforeImages = pq.StringArray{}
	}
	if project.DuringImages == nil {
		project.DuringImages = pq.StringArray{}
	}
	if project.AfterImages == nil {
		project.AfterImages = pq.StringArray{}
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	const query = `INSERT INTO projects
	(id, request_id, quote_id, citizen_id, provider_id, project_title, project_description, status,
	 scheduled_start_date, scheduled_end_date, agreed_cost, payment_status, work_notes,
	 before_images, during_images, after_images, created_at, updated_at)
	VALUES (:id, :request_id, :quote_id, :citizen_id, :provider_id, :project_title, :project_description, :status,
	 :scheduled_start_date, :scheduled_end_date, :agreed_cost, :payment_status, :work_notes,
	 :before_images, :during_images, :after_images, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, project); err != nil {
		if translateWriteError(err) == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetByID fetches a project by identifier.
func (r *ProjectRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Project, error) {
	return r.getOne(ctx, exec, "id", id)
}

// GetByQuoteID fetches the project created from a quote.
func (r *ProjectRepository) GetByQuoteID(ctx context.Context, exec sqlx.ExtContext, quoteID string) (*models.Project, error) {
	return r.getOne(ctx, exec, "quote_id", quoteID)
}

func (r *ProjectRepository) getOne(ctx context.Context, exec sqlx.ExtContext, column, value string) (*models.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE %s = $1`, projectColumns, column)
	var project models.Project
	if err := sqlx.GetContext(ctx, r.exec(exec), &project, query, value); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get project by %s: %w", column, err)
	}
	return &project, nil
}

// List returns projects matching the filter, newest first.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + projectColumns + ` FROM projects`)

	conditions := make([]string, 0, 3)
	if filter.CitizenID != "" {
		args = append(args, filter.CitizenID)
		conditions = append(conditions, fmt.Sprintf("citizen_id = $%d", len(args)))
	}
	if filter.ProviderID != "" {
		args = append(args, filter.ProviderID)
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	statuses := filter.Status
	if filter.ActiveOnly && len(statuses) == 0 {
		statuses = []models.ProjectStatus{models.ProjectStatusScheduled, models.ProjectStatusInProgress}
	}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit, offset := clampLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectStatusParams describes a guarded status change.
type UpdateProjectStatusParams struct {
	ID                   string
	From                 models.ProjectStatus
	To                   models.ProjectStatus
	ActualStartDate      *time.Time
	ActualCompletionDate *time.Time
	CancellationReason   *string
}

// TransitionStatus applies a status change only if the project is still in From.
func (r *ProjectRepository) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateProjectStatusParams) error {
	setParts := []string{"status = :to", "updated_at = :updated_at"}
	if params.ActualStartDate != nil {
		setParts = append(setParts, "actual_start_date = :actual_start_date")
	}
	if params.ActualCompletionDate != nil {
		setParts = append(setParts, "actual_completion_date = :actual_completion_date")
	}
	if params.CancellationReason != nil {
		setParts = append(setParts, "cancellation_reason = :cancellation_reason")
	}
	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":                     params.ID,
		"from":                   params.From,
		"to":                     params.To,
		"updated_at":             time.Now().UTC(),
		"actual_start_date":      params.ActualStartDate,
		"actual_completion_date": params.ActualCompletionDate,
		"cancellation_reason":    params.CancellationReason,
	})
	if err != nil {
		return fmt.Errorf("transition project: %w", err)
	}
	return expectAffected(result, "transition project")
}

// AppendWorkNote appends one entry to the work-note journal in a single statement.
func (r *ProjectRepository) AppendWorkNote(ctx context.Context, id string, note models.WorkNote) error {
	payload, err := json.Marshal([]models.WorkNote{note})
	if err != nil {
		return fmt.Errorf("encode work note: %w", err)
	}
	const query = `UPDATE projects SET work_notes = COALESCE(work_notes, '[]'::jsonb) || $2::jsonb, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append work note: %w", err)
	}
	return expectAffected(result, "append work note")
}

// AttachImages concatenates images onto the phase's collection in a single statement.
func (r *ProjectRepository) AttachImages(ctx context.Context, id string, phase models.ImagePhase, images []string) error {
	if _, err := models.ParseImagePhase(string(phase)); err != nil {
		return err
	}
	column := phase.Column()
	query := fmt.Sprintf(`UPDATE projects SET %s = array_cat(COALESCE(%s, '{}'::text[]), $2::text[]), updated_at = $3 WHERE id = $1`, column, column)
	result, err := r.db.ExecContext(ctx, query, id, pq.StringArray(images), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("attach project images: %w", err)
	}
	return expectAffected(result, "attach project images")
}

// UpdateProjectParams carries a partial project patch. Nil fields keep their stored value.
type UpdateProjectParams struct {
	ID                       string
	ProjectTitle             *string
	ProjectDescription       *string
	ScheduledStartDate       *time.Time
	ScheduledEndDate         *time.Time
	ActualCost               *float64
	CostDifferenceReason     *string
	PaymentStatus            *models.PaymentStatus
	TechnicalReportURL       *string
	CompletionCertificateURL *string
	WarrantyStartDate        *time.Time
	WarrantyEndDate          *time.Time
	CitizenSatisfaction      *string
}

// Update writes only the columns present in the patch, so concurrent writers of
// other columns such as the certificate URL are not overwritten.
func (r *ProjectRepository) Update(ctx context.Context, params UpdateProjectParams) error {
	args := map[string]interface{}{
		"id":         params.ID,
		"updated_at": time.Now().UTC(),
	}
	setParts := []string{"updated_at = :updated_at"}
	set := func(column string, value interface{}, present bool) {
		if !present {
			return
		}
		setParts = append(setParts, column+" = :"+column)
		args[column] = value
	}
	set("project_title", params.ProjectTitle, params.ProjectTitle != nil)
	set("project_description", params.ProjectDescription, params.ProjectDescription != nil)
	set("scheduled_start_date", params.ScheduledStartDate, params.ScheduledStartDate != nil)
	set("scheduled_end_date", params.ScheduledEndDate, params.ScheduledEndDate != nil)
	set("actual_cost", params.ActualCost, params.ActualCost != nil)
	set("cost_difference_reason", params.CostDifferenceReason, params.CostDifferenceReason != nil)
	set("payment_status", params.PaymentStatus, params.PaymentStatus != nil)
	set("technical_report_url", params.TechnicalReportURL, params.TechnicalReportURL != nil)
	set("completion_certificate_url", params.CompletionCertificateURL, params.CompletionCertificateURL != nil)
	set("warranty_start_date", params.WarrantyStartDate, params.WarrantyStartDate != nil)
	set("warranty_end_date", params.WarrantyEndDate, params.WarrantyEndDate != nil)
	set("citizen_satisfaction", params.CitizenSatisfaction, params.CitizenSatisfaction != nil)

	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.db, query, args)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return expectAffected(result, "update project")
}

// StatsByProvider counts project outcomes for a provider.
func (r *ProjectRepository) StatsByProvider(ctx context.Context, exec sqlx.ExtContext, providerID string) (models.ProviderProjectStats, error) {
	query := fmt.Sprintf(`SELECT
	COUNT(*) FILTER (WHERE status <> '%[1]s') AS total,
	COUNT(*) FILTER (WHERE status = '%[2]s') AS completed,
	COUNT(*) FILTER (WHERE status = '%[1]s') AS cancelled
FROM projects WHERE provider_id = $1`, models.ProjectStatusCancelled, models.ProjectStatusCompleted)
	var stats models.ProviderProjectStats
	if err := sqlx.GetContext(ctx, r.exec(exec), &stats, query, providerID); err != nil {
		return stats, fmt.Errorf("project stats by provider: %w", err)
	}
	return stats, nil
}

// ListOverdue returns in-progress projects whose scheduled end has passed.
func (r *ProjectRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.Project, error) {
	query := fmt.Sprintf(`SELECT `+projectColumns+` FROM projects
	WHERE status = '%s' AND scheduled_end_date IS NOT NULL AND scheduled_end_date < $1
	ORDER BY scheduled_end_date ASC`, models.ProjectStatusInProgress)
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, now); err != nil {
		return nil, fmt.Errorf("list overdue projects: %w", err)
	}
	return projects, nil
}

// SetCertificateURL stores the completion certificate location unless one is already set.
// It reports whether the row was written.
func (r *ProjectRepository) SetCertificateURL(ctx context.Context, id, url string) (bool, error) {
	const query = `UPDATE projects SET completion_certificate_url = $2, updated_at = $3 WHERE id = $1 AND completion_certificate_url IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, url, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set certificate url: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set certificate url rows affected: %w", err)
	}
	return affected > 0, nil
}
