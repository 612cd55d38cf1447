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

func newProjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProjectRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec("INSERT INTO projects").WillReturnResult(sqlmock.NewResult(1, 1))

	project := &models.Project{RequestID: "req-1", QuoteID: "q-1", CitizenID: "c-1", ProviderID: "p-1", AgreedCost: 500}
	require.NoError(t, repo.Create(context.Background(), nil, project))
	assert.Equal(t, models.ProjectStatusScheduled, project.Status)
	assert.Equal(t, models.PaymentStatusPending, project.PaymentStatus)
	assert.JSONEq(t, `[]`, string(project.WorkNotes))
	assert.NotNil(t, project.AfterImages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryCreateDuplicateQuote(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec("INSERT INTO projects").WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_projects_quote"})

	err := repo.Create(context.Background(), nil, &models.Project{QuoteID: "q-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryAppendWorkNote(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET work_notes = COALESCE(work_notes, '[]'::jsonb) || $2::jsonb")).
		WithArgs("proj-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendWorkNote(context.Background(), "proj-1", models.WorkNote{
		Timestamp:  time.Now().UTC(),
		AuthorID:   "u-1",
		AuthorName: "Budi",
		Note:       "Replaced the valve",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryAttachImages(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET after_images = array_cat(COALESCE(after_images, '{}'::text[]), $2::text[])")).
		WithArgs("proj-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AttachImages(context.Background(), "proj-1", models.ImagePhaseAfter, []string{"a.jpg"}))
	assert.Error(t, repo.AttachImages(context.Background(), "proj-1", models.ImagePhase("sideways"), []string{"a.jpg"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryStatsByProvider(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE status <> 'CANCELLED') AS total")).
		WithArgs("prov-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "cancelled"}).AddRow(4, 3, 1))

	stats, err := repo.StatsByProvider(context.Background(), nil, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderProjectStats{Total: 4, Completed: 3, Cancelled: 1}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositorySetCertificateURLOnlyOnce(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND completion_certificate_url IS NULL")).
		WithArgs("proj-1", "https://files/cert.pdf", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND completion_certificate_url IS NULL")).
		WithArgs("proj-1", "https://files/other.pdf", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	written, err := repo.SetCertificateURL(context.Background(), "proj-1", "https://files/cert.pdf")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.SetCertificateURL(context.Background(), "proj-1", "https://files/other.pdf")
	require.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryUpdateWritesOnlyPatchedColumns(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	satisfaction := "very happy"
	mock.ExpectExec("^" + regexp.QuoteMeta("UPDATE projects SET updated_at = ?, citizen_satisfaction = ? WHERE id = ?") + "$").
		WithArgs(sqlmock.AnyArg(), "very happy", "proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), UpdateProjectParams{ID: "proj-1", CitizenSatisfaction: &satisfaction})
	require.NoError(t, err)

	paid := models.PaymentStatusPaid
	url := "https://files/report.pdf"
	mock.ExpectExec("^" + regexp.QuoteMeta("UPDATE projects SET updated_at = ?, payment_status = ?, technical_report_url = ? WHERE id = ?") + "$").
		WithArgs(sqlmock.AnyArg(), "PAID", url, "proj-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), UpdateProjectParams{ID: "proj-2", PaymentStatus: &paid, TechnicalReportURL: &url})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
