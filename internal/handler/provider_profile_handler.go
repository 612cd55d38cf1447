package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type providerProfileService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateProviderProfile) (*models.ProviderListing, error)
	Mine(ctx context.Context, actor *models.JWTClaims) (*models.ProviderListing, error)
	Get(ctx context.Context, id string) (*models.ProviderListing, error)
	Update(ctx context.Context, actor *models.JWTClaims, patch dto.UpdateProviderProfile) (*models.ProviderListing, error)
	Search(ctx context.Context, query dto.ProviderSearch, limit, offset int) ([]models.ProviderListing, error)
	Verified(ctx context.Context, limit, offset int) ([]models.ProviderListing, error)
	Featured(ctx context.Context, limit int) ([]models.ProviderListing, error)
	ByType(ctx context.Context, raw string, limit, offset int) ([]models.ProviderListing, error)
	SetVerified(ctx context.Context, actor *models.JWTClaims, id string, verified bool) error
	SetFeatured(ctx context.Context, actor *models.JWTClaims, id string, featured bool) error
}

// ProviderProfileHandler exposes provider onboarding and the provider directory.
type ProviderProfileHandler struct {
	service providerProfileService
}

// NewProviderProfileHandler builds a new handler.
func NewProviderProfileHandler(service providerProfileService) *ProviderProfileHandler {
	return &ProviderProfileHandler{service: service}
}

// Create godoc
// @Summary Create the caller's provider profile
// @Tags Providers
// @Accept json
// @Produce json
// @Param payload body dto.CreateProviderProfile true "Profile payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /providers [post]
func (h *ProviderProfileHandler) Create(c *gin.Context) {
	var req dto.CreateProviderProfile
	if err := bindJSON(c, &req, "invalid provider profile payload"); err != nil {
		response.Error(c, err)
		return
	}
	profile, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// Mine godoc
// @Summary Get the caller's provider profile
// @Tags Providers
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /providers/me [get]
func (h *ProviderProfileHandler) Mine(c *gin.Context) {
	profile, err := h.service.Mine(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMine godoc
// @Summary Edit the caller's provider profile
// @Tags Providers
// @Accept json
// @Produce json
// @Param payload body dto.UpdateProviderProfile true "Patch"
// @Success 200 {object} response.Envelope
// @Router /providers/me [put]
func (h *ProviderProfileHandler) UpdateMine(c *gin.Context) {
	var patch dto.UpdateProviderProfile
	if err := bindJSON(c, &patch, "invalid provider profile payload"); err != nil {
		response.Error(c, err)
		return
	}
	profile, err := h.service.Update(c.Request.Context(), claimsFromContext(c), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Get godoc
// @Summary Get a provider profile
// @Tags Providers
// @Produce json
// @Param id path string true "Provider profile ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /providers/{id} [get]
func (h *ProviderProfileHandler) Get(c *gin.Context) {
	profile, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Search godoc
// @Summary Search the provider directory
// @Tags Providers
// @Produce json
// @Param q query string false "Name or description"
// @Param provider_type query string false "ENGINEER or COMPANY"
// @Param coverage_area query string false "Coverage area"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /providers/search [get]
func (h *ProviderProfileHandler) Search(c *gin.Context) {
	var query dto.ProviderSearch
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid search query"))
		return
	}
	limit, offset := pageParams(c)
	items, err := h.service.Search(c.Request.Context(), query, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// Verified godoc
// @Summary List verified providers
// @Tags Providers
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /providers/verified [get]
func (h *ProviderProfileHandler) Verified(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.Verified(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// Featured godoc
// @Summary List featured providers
// @Tags Providers
// @Produce json
// @Param limit query int false "Maximum items"
// @Success 200 {object} response.Envelope
// @Router /providers/featured [get]
func (h *ProviderProfileHandler) Featured(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 || limit > maxPageLimit {
		limit = 10
	}
	items, err := h.service.Featured(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ByType godoc
// @Summary List providers of one type
// @Tags Providers
// @Produce json
// @Param type path string true "ENGINEER or COMPANY"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /providers/by-type/{type} [get]
func (h *ProviderProfileHandler) ByType(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.ByType(c.Request.Context(), c.Param("type"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// Verify godoc
// @Summary Set the provider verified flag
// @Tags Providers
// @Accept json
// @Param id path string true "Provider profile ID"
// @Param payload body dto.ToggleFlag true "Flag"
// @Success 204
// @Router /providers/{id}/verify [post]
func (h *ProviderProfileHandler) Verify(c *gin.Context) {
	h.toggle(c, h.service.SetVerified)
}

// Feature godoc
// @Summary Set the provider featured flag
// @Tags Providers
// @Accept json
// @Param id path string true "Provider profile ID"
// @Param payload body dto.ToggleFlag true "Flag"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /providers/{id}/feature [post]
func (h *ProviderProfileHandler) Feature(c *gin.Context) {
	h.toggle(c, h.service.SetFeatured)
}

func (h *ProviderProfileHandler) toggle(c *gin.Context, set func(context.Context, *models.JWTClaims, string, bool) error) {
	var req dto.ToggleFlag
	if err := bindJSON(c, &req, "invalid flag payload"); err != nil {
		response.Error(c, err)
		return
	}
	if err := set(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Value); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
