package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type socketHub interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// RealtimeHandler upgrades authenticated clients to the lifecycle event socket.
type RealtimeHandler struct {
	hub    socketHub
	tokens tokenValidator
}

// NewRealtimeHandler builds a new handler.
func NewRealtimeHandler(hub socketHub, tokens tokenValidator) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, tokens: tokens}
}

// Connect godoc
// @Summary Subscribe to lifecycle events over a websocket
// @Description Browsers cannot set headers on the handshake, so the token may be passed as ?token=.
// @Tags Realtime
// @Param token query string false "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *RealtimeHandler) Connect(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil && h.tokens != nil {
		if token := c.Query("token"); token != "" {
			validated, err := h.tokens.ValidateToken(token)
			if err != nil {
				response.Error(c, err)
				return
			}
			claims = validated
		}
	}
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	// Serve writes its own handshake error response.
	_ = h.hub.Serve(c.Writer, c.Request, claims.UserID)
}
