package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RiskLevel grades the hazard of a diagnosed problem.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Valid reports whether the risk level is known.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// UrgencyLevel grades how soon the problem needs attention.
type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "LOW"
	UrgencyMedium    UrgencyLevel = "MEDIUM"
	UrgencyHigh      UrgencyLevel = "HIGH"
	UrgencyEmergency UrgencyLevel = "EMERGENCY"
)

// Valid reports whether the urgency level is known.
func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return true
	default:
		return false
	}
}

// DiagnosticResult is what an analyzer concludes from one image.
type DiagnosticResult struct {
	RiskLevel          RiskLevel    `json:"risk_level"`
	ProblemCategory    string       `json:"problem_category"`
	ProblemSubcategory string       `json:"problem_subcategory"`
	DetectedCause      string       `json:"detected_cause"`
	Prediction         string       `json:"ai_prediction"`
	RecommendedAction  string       `json:"recommended_action"`
	ConfidenceScore    float64      `json:"confidence_score"`
	IsDIYPossible      bool         `json:"is_diy_possible"`
	EstimatedCostMin   float64      `json:"estimated_cost_min"`
	EstimatedCostMax   float64      `json:"estimated_cost_max"`
	UrgencyLevel       UrgencyLevel `json:"urgency_level"`
}

// Diagnostic is a persisted analysis owned by the citizen who requested it.
type Diagnostic struct {
	ID                 string         `db:"id" json:"id"`
	CitizenID          string         `db:"citizen_id" json:"citizen_id"`
	ImageURL           string         `db:"image_url" json:"image_url"`
	Metadata           types.JSONText `db:"metadata" json:"metadata"`
	RiskLevel          RiskLevel      `db:"risk_level" json:"risk_level"`
	ProblemCategory    string         `db:"problem_category" json:"problem_category"`
	ProblemSubcategory string         `db:"problem_subcategory" json:"problem_subcategory"`
	DetectedCause      string         `db:"detected_cause" json:"detected_cause"`
	Prediction         string         `db:"ai_prediction" json:"ai_prediction"`
	RecommendedAction  string         `db:"recommended_action" json:"recommended_action"`
	ConfidenceScore    float64        `db:"confidence_score" json:"confidence_score"`
	IsDIYPossible      bool           `db:"is_diy_possible" json:"is_diy_possible"`
	EstimatedCostMin   float64        `db:"estimated_cost_min" json:"estimated_cost_min"`
	EstimatedCostMax   float64        `db:"estimated_cost_max" json:"estimated_cost_max"`
	UrgencyLevel       UrgencyLevel   `db:"urgency_level" json:"urgency_level"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// DiagnosticFilter narrows diagnostic listings. Empty fields match everything.
type DiagnosticFilter struct {
	CitizenID string
	RiskLevel RiskLevel
	Category  string
	Limit     int
	Offset    int
}

// DiagnosticStatistics aggregates the stored diagnostics for staff dashboards.
type DiagnosticStatistics struct {
	Total             int            `json:"total"`
	HighRisk          int            `json:"high_risk"`
	AverageConfidence float64        `json:"average_confidence"`
	ByRiskLevel       map[string]int `json:"by_risk_level"`
	ByCategory        map[string]int `json:"by_category"`
}
