package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

// Analyzer inspects a problem image and its hints.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string, metadata map[string]string) (*models.DiagnosticResult, error)
}

type diagnosticStore interface {
	Create(ctx context.Context, diag *models.Diagnostic) error
	GetByID(ctx context.Context, id string) (*models.Diagnostic, error)
	List(ctx context.Context, filter models.DiagnosticFilter) ([]models.Diagnostic, error)
	Statistics(ctx context.Context) (*models.DiagnosticStatistics, error)
}

type categoryProfile struct {
	keywords    []string
	subcategory string
	cause       string
	prediction  string
	action      string
	costMin     float64
	costMax     float64
}

var diagnosticCategories = map[string]categoryProfile{
	"PLUMBING": {
		keywords:    []string{"leak", "pipe", "drip", "water", "drain"},
		subcategory: "Pipe Leak",
		cause:       "Corrosion or loose fitting in a visible pipe connection",
		prediction:  "Water damage may spread to surrounding materials and mold can form within days",
		action:      "Shut off the water supply and have a licensed plumber repair the affected section",
		costMin:     200,
		costMax:     800,
	},
	"ELECTRICAL": {
		keywords:    []string{"wire", "spark", "socket", "outlet", "breaker"},
		subcategory: "Wiring Issue",
		cause:       "Exposed or damaged wiring",
		prediction:  "Fire and shock hazard, possible short circuit",
		action:      "Turn off power at the breaker and contact a licensed electrician",
		costMin:     300,
		costMax:     1200,
	},
	"STRUCTURAL": {
		keywords:    []string{"crack", "foundation", "beam", "settlement"},
		subcategory: "Foundation Crack",
		cause:       "Settlement or soil movement",
		prediction:  "Structural integrity may degrade and water can infiltrate",
		action:      "Monitor the crack and consult a structural engineer",
		costMin:     800,
		costMax:     3000,
	},
	"HVAC": {
		keywords:    []string{"hvac", "heating", "cooling", "ventilation", "boiler"},
		subcategory: "System Malfunction",
		cause:       "Component wear reducing efficiency",
		prediction:  "Higher energy use and eventual system failure",
		action:      "Schedule an HVAC technician for inspection and service",
		costMin:     300,
		costMax:     1500,
	},
	"ROOFING": {
		keywords:    []string{"roof", "shingle", "gutter", "attic"},
		subcategory: "Shingle Damage",
		cause:       "Missing or damaged shingles",
		prediction:  "Water can leak into the attic and living space",
		action:      "Inspect the attic for stains and contact a roofing contractor",
		costMin:     500,
		costMax:     2500,
	},
}

var generalProfile = categoryProfile{
	subcategory: "General Issue",
	cause:       "Maintenance required based on visual inspection",
	prediction:  "May lead to more costly repairs if not addressed",
	action:      "Contact a qualified professional for a detailed assessment",
	costMin:     200,
	costMax:     1000,
}

var (
	criticalHints = []string{"spark", "gas", "collapse", "fire", "smoke"}
	highHints     = []string{"flood", "burst", "exposed", "sagging"}
)

// KeywordAnalyzer classifies problems from metadata hints. It never inspects image pixels.
type KeywordAnalyzer struct{}

// NewKeywordAnalyzer returns the heuristic analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{}
}

// Analyze matches metadata values against category keywords.
func (a *KeywordAnalyzer) Analyze(ctx context.Context, imageURL string, metadata map[string]string) (*models.DiagnosticResult, error) {
	text := hintText(metadata)

	category, profile, matches := "GENERAL", generalProfile, 0
	names := make([]string, 0, len(diagnosticCategories))
	for name := range diagnosticCategories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		candidate := diagnosticCategories[name]
		count := 0
		for _, kw := range candidate.keywords {
			if strings.Contains(text, kw) {
				count++
			}
		}
		if count > matches {
			category, profile, matches = name, candidate, count
		}
	}

	risk, urgency := models.RiskLow, models.UrgencyLow
	switch {
	case containsAny(text, criticalHints):
		risk, urgency = models.RiskCritical, models.UrgencyEmergency
	case containsAny(text, highHints):
		risk, urgency = models.RiskHigh, models.UrgencyHigh
	case matches > 0:
		risk, urgency = models.RiskMedium, models.UrgencyMedium
	}

	costMin, costMax := profile.costMin, profile.costMax
	if risk == models.RiskHigh || risk == models.RiskCritical {
		costMin, costMax = costMin*2.5, costMax*2.5
	}
	confidence := 50.0
	if matches > 0 {
		confidence = 70 + float64(matches)*5
		if confidence > 95 {
			confidence = 95
		}
	}

	return &models.DiagnosticResult{
		RiskLevel:          risk,
		ProblemCategory:    category,
		ProblemSubcategory: profile.subcategory,
		DetectedCause:      profile.cause,
		Prediction:         profile.prediction,
		RecommendedAction:  profile.action,
		ConfidenceScore:    confidence,
		IsDIYPossible:      risk == models.RiskLow,
		EstimatedCostMin:   costMin,
		EstimatedCostMax:   costMax,
		UrgencyLevel:       urgency,
	}, nil
}

func hintText(metadata map[string]string) string {
	parts := make([]string, 0, len(metadata))
	for _, v := range metadata {
		parts = append(parts, strings.ToLower(v))
	}
	return strings.Join(parts, " ")
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// DiagnosticService runs the analyzer and stores the result for the citizen.
type DiagnosticService struct {
	repo      diagnosticStore
	analyzer  Analyzer
	policy    *AccessPolicy
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewDiagnosticService constructs a DiagnosticService. A nil analyzer falls back to KeywordAnalyzer.
func NewDiagnosticService(repo diagnosticStore, analyzer Analyzer, policy *AccessPolicy, validate *validator.Validate, logger *zap.Logger) *DiagnosticService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if analyzer == nil {
		analyzer = NewKeywordAnalyzer()
	}
	if policy == nil {
		policy = NewAccessPolicy(nil, nil, logger)
	}
	return &DiagnosticService{repo: repo, analyzer: analyzer, policy: policy, validator: validate, logger: logger, now: time.Now}
}

// Analyze diagnoses an image for a citizen and persists the outcome.
func (s *DiagnosticService) Analyze(ctx context.Context, actor *models.JWTClaims, req dto.AnalyzeDiagnostic) (*models.Diagnostic, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleCitizen); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid diagnostic payload")
	}
	start := s.now()
	result, err := s.analyzer.Analyze(ctx, req.ImageURL, req.Metadata)
	if err != nil {
		return nil, internalError(err, "failed to analyze image")
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return nil, internalError(err, "failed to encode metadata")
	}

	diag := &models.Diagnostic{
		CitizenID:          actor.UserID,
		ImageURL:           req.ImageURL,
		Metadata:           rawMetadata,
		RiskLevel:          result.RiskLevel,
		ProblemCategory:    result.ProblemCategory,
		ProblemSubcategory: result.ProblemSubcategory,
		DetectedCause:      result.DetectedCause,
		Prediction:         result.Prediction,
		RecommendedAction:  result.RecommendedAction,
		ConfidenceScore:    result.ConfidenceScore,
		IsDIYPossible:      result.IsDIYPossible,
		EstimatedCostMin:   result.EstimatedCostMin,
		EstimatedCostMax:   result.EstimatedCostMax,
		UrgencyLevel:       result.UrgencyLevel,
	}
	if err := s.repo.Create(ctx, diag); err != nil {
		return nil, internalError(err, "failed to store diagnostic")
	}
	s.logger.Sugar().Infow("diagnostic stored",
		"diagnostic_id", diag.ID,
		"category", diag.ProblemCategory,
		"risk", diag.RiskLevel,
		"elapsed_ms", s.now().Sub(start).Milliseconds(),
	)
	return diag, nil
}

// Get returns a diagnostic to its owner or staff.
func (s *DiagnosticService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Diagnostic, error) {
	diag, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "diagnostic")
	}
	if !s.policy.IsOwner(diag.CitizenID, actorID(actor)) && !s.policy.HasRole(ctx, actor, models.RoleAdmin, models.RoleGovernment) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this diagnostic")
	}
	return diag, nil
}

// Mine lists the caller's diagnostics, newest first.
func (s *DiagnosticService) Mine(ctx context.Context, actor *models.JWTClaims, limit, offset int) ([]models.Diagnostic, error) {
	if actor == nil || actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return s.list(ctx, models.DiagnosticFilter{CitizenID: actor.UserID, Limit: limit, Offset: offset})
}

// ByRisk lists diagnostics at one risk level, optionally within one category. Staff only.
func (s *DiagnosticService) ByRisk(ctx context.Context, actor *models.JWTClaims, level, category string, limit, offset int) ([]models.Diagnostic, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin, models.RoleGovernment); err != nil {
		return nil, err
	}
	risk := models.RiskLevel(strings.ToUpper(strings.TrimSpace(level)))
	if !risk.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown risk level "+level)
	}
	return s.list(ctx, models.DiagnosticFilter{
		RiskLevel: risk,
		Category:  strings.ToUpper(strings.TrimSpace(category)),
		Limit:     limit,
		Offset:    offset,
	})
}

// Statistics summarises all diagnostics. Staff only.
func (s *DiagnosticService) Statistics(ctx context.Context, actor *models.JWTClaims) (*models.DiagnosticStatistics, error) {
	if err := s.policy.RequireRole(ctx, actor, models.RoleAdmin, models.RoleGovernment); err != nil {
		return nil, err
	}
	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, internalError(err, "failed to compute diagnostic statistics")
	}
	stats.AverageConfidence = round2(stats.AverageConfidence)
	return stats, nil
}

func (s *DiagnosticService) list(ctx context.Context, filter models.DiagnosticFilter) ([]models.Diagnostic, error) {
	diags, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list diagnostics")
	}
	if diags == nil {
		diags = []models.Diagnostic{}
	}
	return diags, nil
}
