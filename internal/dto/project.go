package dto

import (
	"time"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

// UpdateProject patches project details. Status is driven only by lifecycle actions.
type UpdateProject struct {
	ProjectTitle             *string               `json:"project_title" validate:"omitempty,min=1,max=200"`
	ProjectDescription       *string               `json:"project_description" validate:"omitempty,max=2000"`
	ScheduledStartDate       *time.Time            `json:"scheduled_start_date"`
	ScheduledEndDate         *time.Time            `json:"scheduled_end_date"`
	ActualCost               *float64              `json:"actual_cost" validate:"omitempty,gte=0"`
	CostDifferenceReason     *string               `json:"cost_difference_reason" validate:"omitempty,max=1000"`
	PaymentStatus            *models.PaymentStatus `json:"payment_status" validate:"omitempty,oneof=PENDING PARTIAL PAID REFUNDED"`
	TechnicalReportURL       *string               `json:"technical_report_url" validate:"omitempty,max=500"`
	CompletionCertificateURL *string               `json:"completion_certificate_url" validate:"omitempty,max=500"`
	WarrantyStartDate        *time.Time            `json:"warranty_start_date"`
	WarrantyEndDate          *time.Time            `json:"warranty_end_date"`
	CitizenSatisfaction      *string               `json:"citizen_satisfaction" validate:"omitempty,max=1000"`
}

// CancelProject carries the cancellation reason.
type CancelProject struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// AppendWorkNote adds an entry to the project journal.
type AppendWorkNote struct {
	Note   string   `json:"note" validate:"required,max=2000"`
	Images []string `json:"images" validate:"omitempty,dive,required"`
}

// AttachImages adds photos to one of the project phases.
type AttachImages struct {
	Phase  string   `json:"phase" validate:"required"`
	Images []string `json:"images" validate:"required,min=1,dive,required"`
}

// ProjectQuery holds list filters bound from the query string.
type ProjectQuery struct {
	Status     []string `form:"status"`
	ActiveOnly bool     `form:"active_only"`
	Limit      int      `form:"limit"`
	Offset     int      `form:"offset"`
}

// ProjectResponse exposes a project with its decoded journal and derived fields.
type ProjectResponse struct {
	models.Project
	WorkNotes    []models.WorkNote `json:"work_notes"`
	DurationDays *int              `json:"duration_days,omitempty"`
	IsOverdue    bool              `json:"is_overdue"`
}
