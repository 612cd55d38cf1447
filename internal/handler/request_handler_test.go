package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type requestServiceStub struct {
	createErr  error
	lastQuery  dto.ServiceRequestQuery
	lastWindow time.Duration
	lastPatch  dto.UpdateServiceRequest
	canceled   string
}

func (s *requestServiceStub) Create(_ context.Context, actor *models.JWTClaims, req dto.CreateServiceRequest) (*models.ServiceRequest, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &models.ServiceRequest{ID: "req-1", CitizenID: actor.UserID, ProblemTitle: req.ProblemTitle, Status: models.RequestStatusOpen}, nil
}

func (s *requestServiceStub) Get(_ context.Context, id string) (*models.ServiceRequest, error) {
	return &models.ServiceRequest{ID: id}, nil
}

func (s *requestServiceStub) List(_ context.Context, _ *models.JWTClaims, query dto.ServiceRequestQuery) ([]models.ServiceRequest, error) {
	s.lastQuery = query
	return []models.ServiceRequest{{ID: "a"}, {ID: "b"}}, nil
}

func (s *requestServiceStub) Update(_ context.Context, _ *models.JWTClaims, id string, patch dto.UpdateServiceRequest) (*models.ServiceRequest, error) {
	s.lastPatch = patch
	return &models.ServiceRequest{ID: id}, nil
}

func (s *requestServiceStub) Cancel(_ context.Context, _ *models.JWTClaims, id string) (*models.ServiceRequest, error) {
	s.canceled = id
	return &models.ServiceRequest{ID: id, Status: models.RequestStatusCancelled}, nil
}

func (s *requestServiceStub) ListExpiringSoon(_ context.Context, window time.Duration) ([]models.ServiceRequest, error) {
	s.lastWindow = window
	return nil, nil
}

func TestRequestHandlerCreate(t *testing.T) {
	h := NewRequestHandler(&requestServiceStub{})
	w := serve(t, http.MethodPost, "/requests", "/requests", map[string]string{"problem_title": "Leak"}, citizenClaims, h.Create)
	requireStatus(t, w, http.StatusCreated)
	assert.Contains(t, string(decode(t, w).Data), `"citizen_id":"user-cit"`)

	h = NewRequestHandler(&requestServiceStub{createErr: appErrors.Clone(appErrors.ErrForbidden, "only citizens can open requests")})
	w = serve(t, http.MethodPost, "/requests", "/requests", map[string]string{"problem_title": "Leak"}, engineerClaims, h.Create)
	requireStatus(t, w, http.StatusForbidden)
}

func TestRequestHandlerListBindsFilters(t *testing.T) {
	stub := &requestServiceStub{}
	h := NewRequestHandler(stub)

	w := serve(t, http.MethodGet, "/requests", "/requests?status=open&status=quotes_received&category=PLUMBING&mine=true&limit=2", nil, citizenClaims, h.List)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, []string{"open", "quotes_received"}, stub.lastQuery.Status)
	assert.Equal(t, "PLUMBING", stub.lastQuery.Category)
	assert.True(t, stub.lastQuery.Mine)
	assert.Equal(t, 2, stub.lastQuery.Limit)
	assert.EqualValues(t, 2, decode(t, w).Meta["count"])

	w = serve(t, http.MethodGet, "/requests", "/requests?mine=maybe", nil, citizenClaims, h.List)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestRequestHandlerExpiringWindow(t *testing.T) {
	stub := &requestServiceStub{}
	h := NewRequestHandler(stub)

	w := serve(t, http.MethodGet, "/requests/expiring", "/requests/expiring?within=6h", nil, citizenClaims, h.Expiring)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 6*time.Hour, stub.lastWindow)

	w = serve(t, http.MethodGet, "/requests/expiring", "/requests/expiring", nil, citizenClaims, h.Expiring)
	requireStatus(t, w, http.StatusOK)
	assert.Zero(t, stub.lastWindow)

	w = serve(t, http.MethodGet, "/requests/expiring", "/requests/expiring?within=-1h", nil, citizenClaims, h.Expiring)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestRequestHandlerUpdateAndCancel(t *testing.T) {
	stub := &requestServiceStub{}
	h := NewRequestHandler(stub)

	w := serve(t, http.MethodPut, "/requests/:id", "/requests/req-4", map[string]string{"problem_title": "Bigger leak"}, citizenClaims, h.Update)
	requireStatus(t, w, http.StatusOK)
	if assert.NotNil(t, stub.lastPatch.ProblemTitle) {
		assert.Equal(t, "Bigger leak", *stub.lastPatch.ProblemTitle)
	}

	w = serve(t, http.MethodPost, "/requests/:id/cancel", "/requests/req-4/cancel", nil, citizenClaims, h.Cancel)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "req-4", stub.canceled)
}
