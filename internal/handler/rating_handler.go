package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type ratingService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRating) (*dto.RatingResponse, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateRating) (*dto.RatingResponse, error)
	AddProviderResponse(ctx context.Context, actor *models.JWTClaims, id string, req dto.ProviderResponse) (*dto.RatingResponse, error)
	MarkHelpful(ctx context.Context, id string) error
	SetVerified(ctx context.Context, actor *models.JWTClaims, id string, verified bool) error
	SetFeatured(ctx context.Context, actor *models.JWTClaims, id string, featured bool) error
	Get(ctx context.Context, id string) (*dto.RatingResponse, error)
	Featured(ctx context.Context, limit int) ([]dto.RatingResponse, error)
	ListByProject(ctx context.Context, actor *models.JWTClaims, projectID string) ([]dto.RatingResponse, error)
	ListMine(ctx context.Context, actor *models.JWTClaims, limit, offset int) ([]dto.RatingResponse, error)
}

// RatingHandler exposes rating endpoints.
type RatingHandler struct {
	service ratingService
}

// NewRatingHandler builds a new handler.
func NewRatingHandler(service ratingService) *RatingHandler {
	return &RatingHandler{service: service}
}

// Create godoc
// @Summary Rate a completed project
// @Tags Ratings
// @Accept json
// @Produce json
// @Param payload body dto.CreateRating true "Rating payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ratings [post]
func (h *RatingHandler) Create(c *gin.Context) {
	var req dto.CreateRating
	if err := bindJSON(c, &req, "invalid rating payload"); err != nil {
		response.Error(c, err)
		return
	}
	rating, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rating)
}

// Featured godoc
// @Summary List featured ratings
// @Tags Ratings
// @Produce json
// @Param limit query int false "Maximum items"
// @Success 200 {object} response.Envelope
// @Router /ratings/featured [get]
func (h *RatingHandler) Featured(c *gin.Context) {
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

// ByProject godoc
// @Summary List the ratings of a project
// @Tags Ratings
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /ratings/project/{id} [get]
func (h *RatingHandler) ByProject(c *gin.Context) {
	items, err := h.service.ListByProject(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Mine godoc
// @Summary List the caller's ratings
// @Tags Ratings
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /ratings/mine [get]
func (h *RatingHandler) Mine(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// Get godoc
// @Summary Get a rating
// @Tags Ratings
// @Produce json
// @Param id path string true "Rating ID"
// @Success 200 {object} response.Envelope
// @Router /ratings/{id} [get]
func (h *RatingHandler) Get(c *gin.Context) {
	rating, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Update godoc
// @Summary Edit the caller's rating
// @Tags Ratings
// @Accept json
// @Produce json
// @Param id path string true "Rating ID"
// @Param payload body dto.UpdateRating true "Patch"
// @Success 200 {object} response.Envelope
// @Router /ratings/{id} [put]
func (h *RatingHandler) Update(c *gin.Context) {
	var patch dto.UpdateRating
	if err := bindJSON(c, &patch, "invalid rating payload"); err != nil {
		response.Error(c, err)
		return
	}
	rating, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Respond godoc
// @Summary Reply to a rating as the rated provider
// @Tags Ratings
// @Accept json
// @Produce json
// @Param id path string true "Rating ID"
// @Param payload body dto.ProviderResponse true "Reply"
// @Success 200 {object} response.Envelope
// @Router /ratings/{id}/response [post]
func (h *RatingHandler) Respond(c *gin.Context) {
	var req dto.ProviderResponse
	if err := bindJSON(c, &req, "invalid response payload"); err != nil {
		response.Error(c, err)
		return
	}
	rating, err := h.service.AddProviderResponse(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Helpful godoc
// @Summary Mark a rating as helpful
// @Tags Ratings
// @Param id path string true "Rating ID"
// @Success 204
// @Router /ratings/{id}/helpful [post]
func (h *RatingHandler) Helpful(c *gin.Context) {
	if err := h.service.MarkHelpful(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Verify godoc
// @Summary Set the verified flag
// @Tags Ratings
// @Accept json
// @Param id path string true "Rating ID"
// @Param payload body dto.ToggleFlag true "Flag"
// @Success 204
// @Router /ratings/{id}/verify [post]
func (h *RatingHandler) Verify(c *gin.Context) {
	h.toggle(c, h.service.SetVerified)
}

// Feature godoc
// @Summary Set the featured flag
// @Tags Ratings
// @Accept json
// @Param id path string true "Rating ID"
// @Param payload body dto.ToggleFlag true "Flag"
// @Success 204
// @Router /ratings/{id}/feature [post]
func (h *RatingHandler) Feature(c *gin.Context) {
	h.toggle(c, h.service.SetFeatured)
}

func (h *RatingHandler) toggle(c *gin.Context, set func(context.Context, *models.JWTClaims, string, bool) error) {
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
