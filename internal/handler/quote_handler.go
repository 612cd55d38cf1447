package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type quoteService interface {
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.CreateQuote) (*dto.QuoteResponse, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateQuote) (*dto.QuoteResponse, error)
	Withdraw(ctx context.Context, actor *models.JWTClaims, id string) (*dto.QuoteResponse, error)
	Accept(ctx context.Context, actor *models.JWTClaims, id string, req dto.AcceptQuote) (*dto.AcceptQuoteResponse, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectQuote) (*dto.QuoteResponse, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.QuoteResponse, error)
	ListByRequest(ctx context.Context, actor *models.JWTClaims, requestID string, limit, offset int) ([]dto.QuoteResponse, error)
	ListMine(ctx context.Context, actor *models.JWTClaims, statuses []string, limit, offset int) ([]dto.QuoteResponse, error)
}

// QuoteHandler exposes quote endpoints.
type QuoteHandler struct {
	service quoteService
}

// NewQuoteHandler builds a new handler.
func NewQuoteHandler(service quoteService) *QuoteHandler {
	return &QuoteHandler{service: service}
}

// Submit godoc
// @Summary Submit a quote for a service request
// @Tags Quotes
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuote true "Quote payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quotes [post]
func (h *QuoteHandler) Submit(c *gin.Context) {
	var req dto.CreateQuote
	if err := bindJSON(c, &req, "invalid quote payload"); err != nil {
		response.Error(c, err)
		return
	}
	quote, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quote)
}

// ListMine godoc
// @Summary List the caller's quotes
// @Tags Quotes
// @Produce json
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /quotes/mine [get]
func (h *QuoteHandler) ListMine(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c), c.QueryArray("status"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// ListByRequest godoc
// @Summary List quotes on a service request
// @Tags Quotes
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id}/quotes [get]
func (h *QuoteHandler) ListByRequest(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.service.ListByRequest(c.Request.Context(), claimsFromContext(c), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), limit, offset)
}

// Get godoc
// @Summary Get a quote
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /quotes/{id} [get]
func (h *QuoteHandler) Get(c *gin.Context) {
	quote, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Update godoc
// @Summary Update a pending quote
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param payload body dto.UpdateQuote true "Patch"
// @Success 200 {object} response.Envelope
// @Router /quotes/{id} [put]
func (h *QuoteHandler) Update(c *gin.Context) {
	var patch dto.UpdateQuote
	if err := bindJSON(c, &patch, "invalid quote payload"); err != nil {
		response.Error(c, err)
		return
	}
	quote, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Withdraw godoc
// @Summary Withdraw a pending quote
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Success 200 {object} response.Envelope
// @Router /quotes/{id}/withdraw [post]
func (h *QuoteHandler) Withdraw(c *gin.Context) {
	quote, err := h.service.Withdraw(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Accept godoc
// @Summary Accept a quote and open the project
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param payload body dto.AcceptQuote false "Project details"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quotes/{id}/accept [post]
func (h *QuoteHandler) Accept(c *gin.Context) {
	var req dto.AcceptQuote
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req, "invalid acceptance payload"); err != nil {
			response.Error(c, err)
			return
		}
	}
	res, err := h.service.Accept(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Reject godoc
// @Summary Reject a quote
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param payload body dto.RejectQuote false "Reason"
// @Success 200 {object} response.Envelope
// @Router /quotes/{id}/reject [post]
func (h *QuoteHandler) Reject(c *gin.Context) {
	var req dto.RejectQuote
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req, "invalid rejection payload"); err != nil {
			response.Error(c, err)
			return
		}
	}
	quote, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}
