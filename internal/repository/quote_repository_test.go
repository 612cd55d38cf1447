package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

func newQuoteRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestQuoteRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()
	repo := NewQuoteRepository(db)

	mock.ExpectExec("INSERT INTO quotes").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_quotes_request_provider_active"})

	err := repo.Create(context.Background(), nil, &models.Quote{RequestID: "req-1", ProviderID: "prov-1", EstimatedCost: 100})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()
	repo := NewQuoteRepository(db)

	mock.ExpectExec("INSERT INTO quotes").WillReturnResult(sqlmock.NewResult(1, 1))

	quote := &models.Quote{RequestID: "req-1", ProviderID: "prov-1"}
	require.NoError(t, repo.Create(context.Background(), nil, quote))
	assert.NotEmpty(t, quote.ID)
	assert.Equal(t, models.QuoteStatusPending, quote.Status)
	assert.False(t, quote.SubmittedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryTransitionStatusAccept(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()
	repo := NewQuoteRepository(db)

	acceptedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE quotes SET status = ?, updated_at = ?, accepted_at = ? WHERE id = ? AND status = ?")).
		WithArgs("ACCEPTED", sqlmock.AnyArg(), acceptedAt, "q-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), nil, UpdateQuoteStatusParams{
		ID:         "q-1",
		From:       models.QuoteStatusPending,
		To:         models.QuoteStatusAccepted,
		AcceptedAt: &acceptedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryTransitionStatusLostRace(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()
	repo := NewQuoteRepository(db)

	mock.ExpectExec("UPDATE quotes SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), nil, UpdateQuoteStatusParams{
		ID:   "q-1",
		From: models.QuoteStatusPending,
		To:   models.QuoteStatusWithdrawn,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryExpirePending(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()
	repo := NewQuoteRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE quotes SET status = 'EXPIRED', updated_at = $1 WHERE status = 'PENDING' AND expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.ExpirePending(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryListByProvider(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()
	repo := NewQuoteRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quotes WHERE provider_id = $1 AND status IN ($2) ORDER BY submitted_at DESC LIMIT 10 OFFSET 5")).
		WithArgs("prov-1", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "status"}).AddRow("q-1", "prov-1", "PENDING"))

	list, err := repo.List(context.Background(), models.QuoteFilter{
		ProviderID: "prov-1",
		Status:     []models.QuoteStatus{models.QuoteStatusPending},
		Limit:      10,
		Offset:     5,
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
