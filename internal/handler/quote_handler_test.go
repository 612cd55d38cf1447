package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type quoteServiceStub struct {
	submitErr   error
	acceptErr   error
	lastActor   *models.JWTClaims
	lastID      string
	lastAccept  dto.AcceptQuote
	lastReject  dto.RejectQuote
	lastStatus  []string
	lastLimit   int
	lastOffset  int
	submitCalls int
}

func (s *quoteServiceStub) Submit(_ context.Context, actor *models.JWTClaims, req dto.CreateQuote) (*dto.QuoteResponse, error) {
	s.submitCalls++
	s.lastActor = actor
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &dto.QuoteResponse{Quote: models.Quote{ID: "quote-1", RequestID: req.RequestID, Status: models.QuoteStatusPending}}, nil
}

func (s *quoteServiceStub) Update(_ context.Context, _ *models.JWTClaims, id string, _ dto.UpdateQuote) (*dto.QuoteResponse, error) {
	s.lastID = id
	return &dto.QuoteResponse{Quote: models.Quote{ID: id}}, nil
}

func (s *quoteServiceStub) Withdraw(_ context.Context, _ *models.JWTClaims, id string) (*dto.QuoteResponse, error) {
	s.lastID = id
	return &dto.QuoteResponse{Quote: models.Quote{ID: id, Status: models.QuoteStatusWithdrawn}}, nil
}

func (s *quoteServiceStub) Accept(_ context.Context, actor *models.JWTClaims, id string, req dto.AcceptQuote) (*dto.AcceptQuoteResponse, error) {
	s.lastActor = actor
	s.lastID = id
	s.lastAccept = req
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return &dto.AcceptQuoteResponse{
		Quote:   dto.QuoteResponse{Quote: models.Quote{ID: id, Status: models.QuoteStatusAccepted}},
		Project: models.Project{ID: "project-1", QuoteID: id, Status: models.ProjectStatusScheduled},
	}, nil
}

func (s *quoteServiceStub) Reject(_ context.Context, _ *models.JWTClaims, id string, req dto.RejectQuote) (*dto.QuoteResponse, error) {
	s.lastID = id
	s.lastReject = req
	return &dto.QuoteResponse{Quote: models.Quote{ID: id, Status: models.QuoteStatusRejected}}, nil
}

func (s *quoteServiceStub) Get(_ context.Context, _ *models.JWTClaims, id string) (*dto.QuoteResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "quote not found")
}

func (s *quoteServiceStub) ListByRequest(_ context.Context, _ *models.JWTClaims, requestID string, limit, offset int) ([]dto.QuoteResponse, error) {
	s.lastID = requestID
	s.lastLimit, s.lastOffset = limit, offset
	return []dto.QuoteResponse{{Quote: models.Quote{ID: "quote-1"}}}, nil
}

func (s *quoteServiceStub) ListMine(_ context.Context, _ *models.JWTClaims, statuses []string, limit, offset int) ([]dto.QuoteResponse, error) {
	s.lastStatus = statuses
	s.lastLimit, s.lastOffset = limit, offset
	return nil, nil
}

func TestQuoteHandlerSubmit(t *testing.T) {
	stub := &quoteServiceStub{}
	h := NewQuoteHandler(stub)

	w := serve(t, http.MethodPost, "/quotes", "/quotes", map[string]interface{}{"request_id": "req-1"}, engineerClaims, h.Submit)
	requireStatus(t, w, http.StatusCreated)
	assert.Equal(t, engineerClaims, stub.lastActor)

	w = serve(t, http.MethodPost, "/quotes", "/quotes", `{"request_id":`, engineerClaims, h.Submit)
	requireStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
	assert.Equal(t, 1, stub.submitCalls)
}

func TestQuoteHandlerSubmitConflict(t *testing.T) {
	stub := &quoteServiceStub{submitErr: appErrors.Clone(appErrors.ErrConflict, "provider already has an active quote")}
	h := NewQuoteHandler(stub)

	w := serve(t, http.MethodPost, "/quotes", "/quotes", map[string]interface{}{"request_id": "req-1"}, engineerClaims, h.Submit)
	requireStatus(t, w, http.StatusConflict)
	env := decode(t, w)
	assert.Equal(t, appErrors.ErrConflict.Code, env.Error.Code)
}

func TestQuoteHandlerAccept(t *testing.T) {
	stub := &quoteServiceStub{}
	h := NewQuoteHandler(stub)

	w := serve(t, http.MethodPost, "/quotes/:id/accept", "/quotes/quote-7/accept", nil, citizenClaims, h.Accept)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "quote-7", stub.lastID)
	assert.Nil(t, stub.lastAccept.ProjectTitle)

	var res dto.AcceptQuoteResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, "project-1", res.Project.ID)
	assert.Equal(t, models.QuoteStatusAccepted, res.Quote.Status)

	w = serve(t, http.MethodPost, "/quotes/:id/accept", "/quotes/quote-7/accept", map[string]string{"project_title": "Kitchen"}, citizenClaims, h.Accept)
	requireStatus(t, w, http.StatusOK)
	require.NotNil(t, stub.lastAccept.ProjectTitle)
	assert.Equal(t, "Kitchen", *stub.lastAccept.ProjectTitle)
}

func TestQuoteHandlerAcceptLostRace(t *testing.T) {
	stub := &quoteServiceStub{acceptErr: appErrors.Clone(appErrors.ErrInvalidState, "request is no longer accepting quotes")}
	h := NewQuoteHandler(stub)

	w := serve(t, http.MethodPost, "/quotes/:id/accept", "/quotes/quote-7/accept", nil, citizenClaims, h.Accept)
	requireStatus(t, w, http.StatusConflict)
	assert.Equal(t, appErrors.ErrInvalidState.Code, decode(t, w).Error.Code)
}

func TestQuoteHandlerRejectAndWithdraw(t *testing.T) {
	stub := &quoteServiceStub{}
	h := NewQuoteHandler(stub)

	w := serve(t, http.MethodPost, "/quotes/:id/reject", "/quotes/q-2/reject", map[string]string{"reason": "too slow"}, citizenClaims, h.Reject)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "too slow", stub.lastReject.Reason)

	w = serve(t, http.MethodPost, "/quotes/:id/withdraw", "/quotes/q-3/withdraw", nil, engineerClaims, h.Withdraw)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "q-3", stub.lastID)
}

func TestQuoteHandlerListsClampPaging(t *testing.T) {
	stub := &quoteServiceStub{}
	h := NewQuoteHandler(stub)

	w := serve(t, http.MethodGet, "/quotes/mine", "/quotes/mine?status=pending&status=accepted&limit=500&offset=-2", nil, engineerClaims, h.ListMine)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, []string{"pending", "accepted"}, stub.lastStatus)
	assert.Equal(t, maxPageLimit, stub.lastLimit)
	assert.Zero(t, stub.lastOffset)

	w = serve(t, http.MethodGet, "/requests/:id/quotes", "/requests/req-9/quotes?limit=5&offset=10", nil, citizenClaims, h.ListByRequest)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "req-9", stub.lastID)
	env := decode(t, w)
	assert.EqualValues(t, 5, env.Meta["limit"])
	assert.EqualValues(t, 10, env.Meta["offset"])
	assert.EqualValues(t, 1, env.Meta["count"])
}

func TestQuoteHandlerGetNotFound(t *testing.T) {
	h := NewQuoteHandler(&quoteServiceStub{})
	w := serve(t, http.MethodGet, "/quotes/:id", "/quotes/missing", nil, adminClaims, h.Get)
	requireStatus(t, w, http.StatusNotFound)
}
