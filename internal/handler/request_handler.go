package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateServiceRequest) (*models.ServiceRequest, error)
	Get(ctx context.Context, id string) (*models.ServiceRequest, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.ServiceRequestQuery) ([]models.ServiceRequest, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateServiceRequest) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.ServiceRequest, error)
	ListExpiringSoon(ctx context.Context, window time.Duration) ([]models.ServiceRequest, error)
}

// RequestHandler exposes service request endpoints.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler builds a new handler.
func NewRequestHandler(service requestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// Create godoc
// @Summary Open a service request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateServiceRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateServiceRequest
	if err := bindJSON(c, &req, "invalid service request payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List service requests
// @Tags Requests
// @Produce json
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param category query string false "Category"
// @Param active_only query bool false "Only open and unexpired"
// @Param mine query bool false "Only the caller's requests"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.ServiceRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	query.Limit, query.Offset = pageParams(c)
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), query.Limit, query.Offset)
}

// Expiring godoc
// @Summary List requests whose bidding closes soon
// @Tags Requests
// @Produce json
// @Param within query string false "Window as a Go duration, e.g. 24h"
// @Success 200 {object} response.Envelope
// @Router /requests/expiring [get]
func (h *RequestHandler) Expiring(c *gin.Context) {
	var window time.Duration
	if raw := c.Query("within"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "within must be a positive duration"))
			return
		}
		window = parsed
	}
	items, err := h.service.ListExpiringSoon(c.Request.Context(), window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a service request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update an open service request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateServiceRequest true "Patch"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	var patch dto.UpdateServiceRequest
	if err := bindJSON(c, &patch, "invalid service request payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Cancel godoc
// @Summary Cancel a service request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	item, err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
