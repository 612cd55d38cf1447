package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/internal/repository"
	"github.com/noah-isme/bonyankop-api/pkg/costbreakdown"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

// newSQLQuoteService wires QuoteService to the real repositories over one mock database.
func newSQLQuoteService(t *testing.T) (*QuoteService, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")

	store := newMarketplace()
	store.profiles["prov-eng"] = &models.ProviderProfile{ID: "prov-eng", UserID: "user-eng", ProviderType: models.ProviderTypeEngineer}
	policy := NewAccessPolicy(nil, fakeProfileStore{m: store}, nil)

	requestRepo := repository.NewServiceRequestRepository(db)
	svc := NewQuoteService(QuoteServiceParams{
		Quotes:    repository.NewQuoteRepository(db),
		Requests:  requestRepo,
		Lifecycle: NewRequestService(RequestServiceParams{Repo: requestRepo, Policy: policy}),
		Projects:  repository.NewProjectRepository(db),
		Tx:        db,
		Policy:    policy,
	})
	svc.now = func() time.Time { return fixtureNow }
	return svc, mock
}

func requestRow(id string, status models.RequestStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "citizen_id", "problem_title", "problem_description", "status", "quotes_count"}).
		AddRow(id, "user-cit", "Leaking pipe", "Water under the kitchen sink", string(status), 1)
}

func quoteRow(t *testing.T, id, requestID string) *sqlmock.Rows {
	t.Helper()
	encoded, err := costbreakdown.Encode(*sampleBreakdown())
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"id", "request_id", "provider_id", "estimated_cost", "cost_breakdown", "status", "submitted_at", "expires_at"}).
		AddRow(id, requestID, "prov-eng", 500.0, encoded, string(models.QuoteStatusPending), fixtureNow.AddDate(0, 0, -1), fixtureNow.AddDate(0, 0, 29))
}

var (
	lockRequestSQL    = `(?s)SELECT .+ FROM service_requests WHERE id = \$1 FOR UPDATE`
	refreshCountSQL   = `UPDATE service_requests SET\s+quotes_count = sub.cnt`
	selectProviderSQL = `UPDATE service_requests SET status = 'PROVIDER_SELECTED'`
)

func TestQuoteServiceSubmitLocksRequestBeforeInsertAndRecount(t *testing.T) {
	svc, mock := newSQLQuoteService(t)
	engineer := &models.JWTClaims{UserID: "user-eng", Role: models.RoleEngineer}

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestSQL).WithArgs("req-1").WillReturnRows(requestRow("req-1", models.RequestStatusQuotesReceived))
	mock.ExpectExec(`INSERT INTO quotes`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(refreshCountSQL).WillReturnRows(sqlmock.NewRows([]string{"quotes_count"}).AddRow(2))
	mock.ExpectCommit()

	resp, err := svc.Submit(context.Background(), engineer, quotePayload("req-1"))
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, models.QuoteStatusPending, resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteServiceSubmitRechecksStatusOnLockedRow(t *testing.T) {
	svc, mock := newSQLQuoteService(t)
	engineer := &models.JWTClaims{UserID: "user-eng", Role: models.RoleEngineer}

	// An acceptance committed while this submission waited on the lock.
	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestSQL).WithArgs("req-1").WillReturnRows(requestRow("req-1", models.RequestStatusProviderSelected))
	mock.ExpectRollback()

	_, err := svc.Submit(context.Background(), engineer, quotePayload("req-1"))
	requireAppError(t, err, appErrors.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteServiceWithdrawLocksRequestBeforeRecount(t *testing.T) {
	svc, mock := newSQLQuoteService(t)
	engineer := &models.JWTClaims{UserID: "user-eng", Role: models.RoleEngineer}

	mock.ExpectQuery(`(?s)SELECT .+ FROM quotes WHERE id = \$1`).WithArgs("quote-1").WillReturnRows(quoteRow(t, "quote-1", "req-1"))
	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestSQL).WithArgs("req-1").WillReturnRows(requestRow("req-1", models.RequestStatusQuotesReceived))
	mock.ExpectExec(`UPDATE quotes SET status = \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(refreshCountSQL).WillReturnRows(sqlmock.NewRows([]string{"quotes_count"}).AddRow(0))
	mock.ExpectCommit()

	resp, err := svc.Withdraw(context.Background(), engineer, "quote-1")
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusWithdrawn, resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteServiceAcceptRollsBackWhenRequestAlreadyClosed(t *testing.T) {
	svc, mock := newSQLQuoteService(t)
	citizen := &models.JWTClaims{UserID: "user-cit", Role: models.RoleCitizen}

	mock.ExpectQuery(`(?s)SELECT .+ FROM quotes WHERE id = \$1`).WithArgs("quote-1").WillReturnRows(quoteRow(t, "quote-1", "req-1"))
	mock.ExpectQuery(`(?s)SELECT .+ FROM service_requests WHERE id = \$1`).WithArgs("req-1").WillReturnRows(requestRow("req-1", models.RequestStatusQuotesReceived))
	mock.ExpectQuery(`(?s)SELECT .+ FROM projects WHERE quote_id = \$1`).WithArgs("quote-1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE quotes SET status = \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO projects`).WillReturnResult(sqlmock.NewResult(0, 1))
	// Another quote on the same request won the race, so the request CAS misses.
	mock.ExpectExec(selectProviderSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Accept(context.Background(), citizen, "quote-1", dto.AcceptQuote{})
	requireAppError(t, err, appErrors.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteServiceAcceptRejectsInvertedSchedule(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(models.RequestStatusQuotesReceived, nil)
	quote := f.seedQuote(t, req.ID, "prov-eng", models.QuoteStatusPending)

	start := fixtureNow.AddDate(0, 0, 7)
	end := start.AddDate(0, 0, -2)
	_, err := f.quotes.Accept(ctx, f.citizen, quote.ID, dto.AcceptQuote{ScheduledStartDate: &start, ScheduledEndDate: &end})
	requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, models.QuoteStatusPending, f.quote(quote.ID).Status)
	assert.Empty(t, f.store.projects)
	// No transaction was opened.
	assert.NoError(t, f.mock.ExpectationsWereMet())

	f.expectTx(true)
	sameDay := start
	resp, err := f.quotes.Accept(ctx, f.citizen, quote.ID, dto.AcceptQuote{ScheduledStartDate: &start, ScheduledEndDate: &sameDay})
	require.NoError(t, err)
	assert.Equal(t, start, *resp.Project.ScheduledEndDate)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
