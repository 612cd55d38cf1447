package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type hubStub struct {
	users []string
}

func (h *hubStub) Serve(w http.ResponseWriter, _ *http.Request, userID string) error {
	h.users = append(h.users, userID)
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

type tokenValidatorStub struct{}

func (tokenValidatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token == "valid" {
		return &models.JWTClaims{UserID: "user-ws", Role: models.RoleCitizen}, nil
	}
	return nil, appErrors.Wrap(errors.New("bad signature"), appErrors.ErrUnauthorized.Code, http.StatusUnauthorized, "invalid token")
}

func TestRealtimeHandlerConnect(t *testing.T) {
	hub := &hubStub{}
	h := NewRealtimeHandler(hub, tokenValidatorStub{})

	w := serve(t, http.MethodGet, "/ws", "/ws", nil, nil, h.Connect)
	requireStatus(t, w, http.StatusUnauthorized)

	w = serve(t, http.MethodGet, "/ws", "/ws?token=forged", nil, nil, h.Connect)
	requireStatus(t, w, http.StatusUnauthorized)
	assert.Empty(t, hub.users)

	serve(t, http.MethodGet, "/ws", "/ws?token=valid", nil, nil, h.Connect)
	serve(t, http.MethodGet, "/ws", "/ws", nil, citizenClaims, h.Connect)
	assert.Equal(t, []string{"user-ws", "user-cit"}, hub.users)
}
