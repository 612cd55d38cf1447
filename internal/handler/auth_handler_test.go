package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type authServiceStub struct {
	last       models.LoginRequest
	identities map[string]models.Identity
}

func (s *authServiceStub) Login(_ context.Context, req models.LoginRequest) (*models.Session, error) {
	s.last = req
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.Session{AccessToken: "token", TokenType: "Bearer", Identity: models.Identity{ID: "user-cit", Email: req.Email}}, nil
}

func (s *authServiceStub) Identify(_ context.Context, userID string) (*models.Identity, error) {
	identity, ok := s.identities[userID]
	if !ok {
		return nil, appErrors.ErrInactiveAccount
	}
	return &identity, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	stub := &authServiceStub{}
	h := NewAuthHandler(stub)

	w := serve(t, http.MethodPost, "/auth/login", "/auth/login", `{"email":`, nil, h.Login)
	requireStatus(t, w, http.StatusBadRequest)

	w = serve(t, http.MethodPost, "/auth/login", "/auth/login", map[string]string{"email": "a@example.com", "password": "nope"}, nil, h.Login)
	requireStatus(t, w, http.StatusUnauthorized)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decode(t, w).Error.Code)

	w = serve(t, http.MethodPost, "/auth/login", "/auth/login", map[string]string{"email": "a@example.com", "password": "secret"}, nil, h.Login)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	data := string(decode(t, w).Data)
	assert.Contains(t, data, `"access_token":"token"`)
	assert.Contains(t, data, `"token_type":"Bearer"`)
	assert.NotEmpty(t, stub.last.IP)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&authServiceStub{identities: map[string]models.Identity{
		"user-eng": {ID: "user-eng", Email: "eng@example.com", FullName: "Budi", Role: models.RoleEngineer, ProviderProfileID: "prov-eng"},
	}})

	w := serve(t, http.MethodGet, "/auth/me", "/auth/me", nil, nil, h.Me)
	requireStatus(t, w, http.StatusUnauthorized)

	w = serve(t, http.MethodGet, "/auth/me", "/auth/me", nil, engineerClaims, h.Me)
	requireStatus(t, w, http.StatusOK)
	env := decode(t, w)
	require.Nil(t, env.Error)
	assert.JSONEq(t, `{"id":"user-eng","email":"eng@example.com","full_name":"Budi","role":"ENGINEER","provider_profile_id":"prov-eng"}`, string(env.Data))

	w = serve(t, http.MethodGet, "/auth/me", "/auth/me", nil, citizenClaims, h.Me)
	requireStatus(t, w, http.StatusForbidden)
}
