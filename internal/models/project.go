package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// ProjectStatus tracks project execution.
type ProjectStatus string

const (
	ProjectStatusScheduled  ProjectStatus = "SCHEDULED"
	ProjectStatusInProgress ProjectStatus = "IN_PROGRESS"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
	ProjectStatusCancelled  ProjectStatus = "CANCELLED"
)

var projectTransitions = map[ProjectStatus]map[ProjectStatus]struct{}{
	ProjectStatusScheduled: {
		ProjectStatusInProgress: {},
		ProjectStatusCancelled:  {},
	},
	ProjectStatusInProgress: {
		ProjectStatusCompleted: {},
		ProjectStatusCancelled: {},
	},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	_, ok := projectTransitions[s][next]
	return ok
}

// Valid reports whether the status is known.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusScheduled, ProjectStatusInProgress, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentStatus tracks settlement of the agreed cost.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPartial  PaymentStatus = "PARTIAL"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Valid reports whether the payment status is known.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// ImagePhase names one of the project photo collections.
type ImagePhase string

const (
	ImagePhaseBefore ImagePhase = "before"
	ImagePhaseDuring ImagePhase = "during"
	ImagePhaseAfter  ImagePhase = "after"
)

// ParseImagePhase matches a phase name case-insensitively.
func ParseImagePhase(raw string) (ImagePhase, error) {
	switch ImagePhase(strings.ToLower(strings.TrimSpace(raw))) {
	case ImagePhaseBefore:
		return ImagePhaseBefore, nil
	case ImagePhaseDuring:
		return ImagePhaseDuring, nil
	case ImagePhaseAfter:
		return ImagePhaseAfter, nil
	default:
		return "", fmt.Errorf("unknown image phase %q", raw)
	}
}

// Column returns the images column backing the phase.
func (p ImagePhase) Column() string {
	return string(p) + "_images"
}

// WorkNote is one entry of the project journal.
type WorkNote struct {
	Timestamp  time.Time `json:"timestamp"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Note       string    `json:"note"`
	Images     []string  `json:"images"`
}

// Project is the execution record created from one accepted quote.
type Project struct {
	ID                       string         `db:"id" json:"id"`
	RequestID                string         `db:"request_id" json:"request_id"`
	QuoteID                  string         `db:"quote_id" json:"quote_id"`
	CitizenID                string         `db:"citizen_id" json:"citizen_id"`
	ProviderID               string         `db:"provider_id" json:"provider_id"`
	ProjectTitle             string         `db:"project_title" json:"project_title"`
	ProjectDescription       *string        `db:"project_description" json:"project_description,omitempty"`
	Status                   ProjectStatus  `db:"status" json:"status"`
	ScheduledStartDate       *time.Time     `db:"scheduled_start_date" json:"scheduled_start_date,omitempty"`
	ActualStartDate          *time.Time     `db:"actual_start_date" json:"actual_start_date,omitempty"`
	ScheduledEndDate         *time.Time     `db:"scheduled_end_date" json:"scheduled_end_date,omitempty"`
	ActualCompletionDate     *time.Time     `db:"actual_completion_date" json:"actual_completion_date,omitempty"`
	AgreedCost               float64        `db:"agreed_cost" json:"agreed_cost"`
	ActualCost               *float64       `db:"actual_cost" json:"actual_cost,omitempty"`
	CostDifferenceReason     *string        `db:"cost_difference_reason" json:"cost_difference_reason,omitempty"`
	PaymentStatus            PaymentStatus  `db:"payment_status" json:"payment_status"`
	WorkNotes                types.JSONText `db:"work_notes" json:"-"`
	BeforeImages             pq.StringArray `db:"before_images" json:"before_images"`
	DuringImages             pq.StringArray `db:"during_images" json:"during_images"`
	AfterImages              pq.StringArray `db:"after_images" json:"after_images"`
	TechnicalReportURL       *string        `db:"technical_report_url" json:"technical_report_url,omitempty"`
	CompletionCertificateURL *string        `db:"completion_certificate_url" json:"completion_certificate_url,omitempty"`
	WarrantyStartDate        *time.Time     `db:"warranty_start_date" json:"warranty_start_date,omitempty"`
	WarrantyEndDate          *time.Time     `db:"warranty_end_date" json:"warranty_end_date,omitempty"`
	CitizenSatisfaction      *string        `db:"citizen_satisfaction" json:"citizen_satisfaction,omitempty"`
	CancellationReason       *string        `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt                time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at" json:"updated_at"`
}

// Notes decodes the work-note journal in append order.
func (p *Project) Notes() ([]WorkNote, error) {
	if len(p.WorkNotes) == 0 {
		return []WorkNote{}, nil
	}
	var notes []WorkNote
	if err := json.Unmarshal(p.WorkNotes, &notes); err != nil {
		return nil, fmt.Errorf("decode work notes: %w", err)
	}
	if notes == nil {
		notes = []WorkNote{}
	}
	return notes, nil
}

// Duration returns whole days between actual start and completion, or nil.
func (p *Project) Duration() *int {
	if p.ActualStartDate == nil || p.ActualCompletionDate == nil {
		return nil
	}
	days := int(p.ActualCompletionDate.Sub(*p.ActualStartDate).Hours() / 24)
	return &days
}

// IsOverdue reports whether an in-progress project ran past its scheduled end.
func (p *Project) IsOverdue(now time.Time) bool {
	return p.Status == ProjectStatusInProgress && p.ScheduledEndDate != nil && now.After(*p.ScheduledEndDate)
}

// IsParticipant reports whether the user is the project citizen or the provider's user.
func (p *Project) IsParticipant(userID, providerUserID string) bool {
	return userID != "" && (p.CitizenID == userID || providerUserID == userID)
}

// ProjectFilter captures list criteria.
type ProjectFilter struct {
	CitizenID  string
	ProviderID string
	Status     []ProjectStatus
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ProviderProjectStats aggregates project outcomes for a provider.
type ProviderProjectStats struct {
	Total     int `db:"total"`
	Completed int `db:"completed"`
	Cancelled int `db:"cancelled"`
}
