package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

func newServiceRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestServiceRequestRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newServiceRequestRepoMock(t)
	defer cleanup()
	repo := NewServiceRequestRepository(db)

	mock.ExpectExec("INSERT INTO service_requests").WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.ServiceRequest{CitizenID: "citizen-1", ProblemTitle: "Leaking pipe", ProblemCategory: "PLUMBING", QuotesCount: 7}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.RequestStatusOpen, req.Status)
	assert.Zero(t, req.QuotesCount)
	assert.Zero(t, req.ViewsCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceRequestRepositoryListActiveOnly(t *testing.T) {
	db, mock, cleanup := newServiceRequestRepoMock(t)
	defer cleanup()
	repo := NewServiceRequestRepository(db)

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM service_requests WHERE status IN ($1,$2) AND problem_category = $3 AND (expires_at IS NULL OR expires_at > $4) ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("OPEN", "QUOTES_RECEIVED", "PLUMBING", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("req-1", "OPEN"))

	list, err := repo.List(context.Background(), models.ServiceRequestFilter{Category: "PLUMBING", ActiveOnly: true, Now: now})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "req-1", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceRequestRepositoryTransitionStatusCASMiss(t *testing.T) {
	db, mock, cleanup := newServiceRequestRepoMock(t)
	defer cleanup()
	repo := NewServiceRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status IN ($4,$5)")).
		WithArgs("req-1", "CANCELLED", sqlmock.AnyArg(), "OPEN", "QUOTES_RECEIVED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), nil, "req-1",
		[]models.RequestStatus{models.RequestStatusOpen, models.RequestStatusQuotesReceived}, models.RequestStatusCancelled)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceRequestRepositoryRefreshQuotesCount(t *testing.T) {
	db, mock, cleanup := newServiceRequestRepoMock(t)
	defer cleanup()
	repo := NewServiceRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM (SELECT COUNT(*) AS cnt FROM quotes WHERE request_id = $1 AND status <> 'WITHDRAWN') AS sub")).
		WithArgs("req-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"quotes_count"}).AddRow(2))

	count, err := repo.RefreshQuotesCount(context.Background(), nil, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceRequestRepositoryExpireStaleIsIdempotent(t *testing.T) {
	db, mock, cleanup := newServiceRequestRepoMock(t)
	defer cleanup()
	repo := NewServiceRequestRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET status = 'EXPIRED'")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET status = 'EXPIRED'")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	second, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first)
	assert.Zero(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}
