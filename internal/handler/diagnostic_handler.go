package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type diagnosticService interface {
	Analyze(ctx context.Context, actor *models.JWTClaims, req dto.AnalyzeDiagnostic) (*models.Diagnostic, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Diagnostic, error)
	Mine(ctx context.Context, actor *models.JWTClaims, limit, offset int) ([]models.Diagnostic, error)
	ByRisk(ctx context.Context, actor *models.JWTClaims, level, category string, limit, offset int) ([]models.Diagnostic, error)
	Statistics(ctx context.Context, actor *models.JWTClaims) (*models.DiagnosticStatistics, error)
}

// DiagnosticHandler exposes image diagnosis endpoints.
type DiagnosticHandler struct {
	service diagnosticService
}

// NewDiagnosticHandler builds a new handler.
func NewDiagnosticHandler(service diagnosticService) *DiagnosticHandler {
	return &DiagnosticHandler{service: service}
}

// Analyze godoc
// @Summary Diagnose a problem photo
// @Tags Diagnostics
// @Accept json
// @Produce json
// @Param payload body dto.AnalyzeDiagnostic true "Image and hints"
// @Success 201 {object} response.Envelope
// @Router /diagnostics [post]
func (h *DiagnosticHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeDiagnostic
	if err := bindJSON(c, &req, "invalid diagnostic payload"); err != nil {
		response.Error(c, err)
		return
	}
	diag, err := h.service.Analyze(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, diag)
}

// Get godoc
// @Summary Get a diagnostic
// @Tags Diagnostics
// @Produce json
// @Param id path string true "Diagnostic ID"
// @Success 200 {object} response.Envelope
// @Router /diagnostics/{id} [get]
func (h *DiagnosticHandler) Get(c *gin.Context) {
	diag, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, diag, nil)
}

// Mine godoc
// @Summary List the caller's diagnostics
// @Tags Diagnostics
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /diagnostics/mine [get]
func (h *DiagnosticHandler) Mine(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.Mine(c.Request.Context(), claimsFromContext(c), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// ByRisk godoc
// @Summary List diagnostics at one risk level
// @Tags Diagnostics
// @Produce json
// @Param level path string true "LOW, MEDIUM, HIGH or CRITICAL"
// @Param category query string false "Problem category"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /diagnostics/by-risk/{level} [get]
func (h *DiagnosticHandler) ByRisk(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.ByRisk(c.Request.Context(), claimsFromContext(c), c.Param("level"), c.Query("category"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// Statistics godoc
// @Summary Diagnostic counts by risk level and category
// @Tags Diagnostics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /diagnostics/statistics [get]
func (h *DiagnosticHandler) Statistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
