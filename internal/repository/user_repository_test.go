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

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var userRowColumns = []string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at", "provider_profile_id"}

func TestUserRepositoryFindByEmailJoinsProviderProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN provider_profiles p ON p.user_id = u.id WHERE LOWER(u.email) = LOWER($1)")).
		WithArgs("Eng@Example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-eng", "eng@example.com", "hash", "Budi", string(models.RoleEngineer), true, nil, now, now, "prov-1"))

	user, err := repo.FindByEmail(context.Background(), "Eng@Example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleEngineer, user.Role)
	require.NotNil(t, user.ProviderProfileID)
	assert.Equal(t, "prov-1", user.Identity().ProviderProfileID)
	assert.Nil(t, user.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDCitizenHasNoProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.id = $1")).
		WithArgs("u-cit").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-cit", "cit@example.com", "hash", "Siti", string(models.RoleCitizen), true, now, now, now, nil))

	user, err := repo.FindByID(context.Background(), "u-cit")
	require.NoError(t, err)
	assert.Nil(t, user.ProviderProfileID)
	assert.Empty(t, user.Identity().ProviderProfileID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryTouchLogin(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $2")).
		WithArgs("u-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $2")).
		WithArgs("ghost", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.TouchLogin(context.Background(), "u-1", at))
	assert.ErrorIs(t, repo.TouchLogin(context.Background(), "ghost", at), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs (id, actor_id, actor_role")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "u1"
	entry := &models.AuditEntry{ActorID: &actor, Action: models.AuditActionQuoteAccept, Resource: "quote", StatusCode: 200}
	require.NoError(t, repo.Record(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
