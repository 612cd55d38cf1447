package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/middleware"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type reputationReader interface {
	Summary(ctx context.Context, providerID string) (*models.ReputationSummary, bool, error)
}

type providerRatingService interface {
	ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]dto.RatingResponse, error)
	ExportProviderRatingsCSV(ctx context.Context, actor *models.JWTClaims, providerID string) ([]byte, error)
}

// ProviderHandler exposes the public provider views.
type ProviderHandler struct {
	reputation reputationReader
	ratings    providerRatingService
}

// NewProviderHandler builds a new handler.
func NewProviderHandler(reputation reputationReader, ratings providerRatingService) *ProviderHandler {
	return &ProviderHandler{reputation: reputation, ratings: ratings}
}

// Reputation godoc
// @Summary Provider reputation summary
// @Tags Providers
// @Produce json
// @Param id path string true "Provider profile ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /providers/{id}/reputation [get]
func (h *ProviderHandler) Reputation(c *gin.Context) {
	summary, cached, err := h.reputation.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, summary, nil, middleware.Meta(c))
}

// Ratings godoc
// @Summary List a provider's ratings
// @Tags Providers
// @Produce json
// @Param id path string true "Provider profile ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/ratings [get]
func (h *ProviderHandler) Ratings(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.ratings.ListByProvider(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// ExportRatings godoc
// @Summary Export a provider's ratings as CSV
// @Tags Providers
// @Produce text/csv
// @Param id path string true "Provider profile ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /providers/{id}/ratings/export [get]
func (h *ProviderHandler) ExportRatings(c *gin.Context) {
	providerID := c.Param("id")
	data, err := h.ratings.ExportProviderRatingsCSV(c.Request.Context(), claimsFromContext(c), providerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "ratings-"+providerID+".csv"))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
