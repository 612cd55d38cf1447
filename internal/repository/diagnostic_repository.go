package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

const diagnosticColumns = `id, citizen_id, image_url, metadata, risk_level, problem_category, problem_subcategory,
	detected_cause, ai_prediction, recommended_action, confidence_score, is_diy_possible, estimated_cost_min,
	estimated_cost_max, urgency_level, created_at`

// DiagnosticRepository persists image diagnostics.
type DiagnosticRepository struct {
	db *sqlx.DB
}

// NewDiagnosticRepository constructs the repository.
func NewDiagnosticRepository(db *sqlx.DB) *DiagnosticRepository {
	return &DiagnosticRepository{db: db}
}

// Create inserts a diagnostic.
func (r *DiagnosticRepository) Create(ctx context.Context, diag *models.Diagnostic) error {
	if diag.ID == "" {
		diag.ID = uuid.NewString()
	}
	if len(diag.Metadata) == 0 {
		diag.Metadata = types.JSONText(`{}`)
	}
	if diag.CreatedAt.IsZero() {
		diag.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO diagnostics
	(id, citizen_id, image_url, metadata, risk_level, problem_category, problem_subcategory, detected_cause,
	 ai_prediction, recommended_action, confidence_score, is_diy_possible, estimated_cost_min, estimated_cost_max,
	 urgency_level, created_at)
	VALUES (:id, :citizen_id, :image_url, :metadata, :risk_level, :problem_category, :problem_subcategory, :detected_cause,
	 :ai_prediction, :recommended_action, :confidence_score, :is_diy_possible, :estimated_cost_min, :estimated_cost_max,
	 :urgency_level, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, diag); err != nil {
		return fmt.Errorf("create diagnostic: %w", err)
	}
	return nil
}

// GetByID fetches a diagnostic by identifier.
func (r *DiagnosticRepository) GetByID(ctx context.Context, id string) (*models.Diagnostic, error) {
	const query = `SELECT ` + diagnosticColumns + ` FROM diagnostics WHERE id = $1`
	var diag models.Diagnostic
	if err := r.db.GetContext(ctx, &diag, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get diagnostic: %w", err)
	}
	return &diag, nil
}

// List returns diagnostics matching the filter, newest first.
func (r *DiagnosticRepository) List(ctx context.Context, filter models.DiagnosticFilter) ([]models.Diagnostic, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.CitizenID != "" {
		args = append(args, filter.CitizenID)
		conditions = append(conditions, fmt.Sprintf("citizen_id = $%d", len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, filter.RiskLevel)
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("problem_category = $%d", len(args)))
	}

	query := `SELECT ` + diagnosticColumns + ` FROM diagnostics`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit, offset := clampLimit(filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	var diags []models.Diagnostic
	if err := r.db.SelectContext(ctx, &diags, query, args...); err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	return diags, nil
}

type diagnosticBucket struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// Statistics aggregates every stored diagnostic by risk level and category.
func (r *DiagnosticRepository) Statistics(ctx context.Context) (*models.DiagnosticStatistics, error) {
	var totals struct {
		Total             int     `db:"total"`
		HighRisk          int     `db:"high_risk"`
		AverageConfidence float64 `db:"average_confidence"`
	}
	const totalsQuery = `SELECT COUNT(*) AS total,
	COUNT(*) FILTER (WHERE risk_level IN ('HIGH', 'CRITICAL')) AS high_risk,
	COALESCE(AVG(confidence_score), 0) AS average_confidence
	FROM diagnostics`
	if err := r.db.GetContext(ctx, &totals, totalsQuery); err != nil {
		return nil, fmt.Errorf("diagnostic totals: %w", err)
	}

	stats := &models.DiagnosticStatistics{
		Total:             totals.Total,
		HighRisk:          totals.HighRisk,
		AverageConfidence: totals.AverageConfidence,
	}
	var err error
	if stats.ByRiskLevel, err = r.buckets(ctx, "risk_level"); err != nil {
		return nil, err
	}
	if stats.ByCategory, err = r.buckets(ctx, "problem_category"); err != nil {
		return nil, err
	}
	return stats, nil
}

// buckets counts diagnostics grouped by column, which must be a trusted column name.
func (r *DiagnosticRepository) buckets(ctx context.Context, column string) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT %[1]s AS key, COUNT(*) AS count FROM diagnostics GROUP BY %[1]s`, column)
	var rows []diagnosticBucket
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("diagnostic counts by %s: %w", column, err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}
