package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/internal/repository"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type eventPublisher interface {
	Publish(userID string, payload interface{})
}

func publishEvent(pub eventPublisher, userID, eventType, entityID, status string, at time.Time) {
	if pub == nil || userID == "" {
		return
	}
	pub.Publish(userID, models.LifecycleEvent{
		Type:       eventType,
		EntityID:   entityID,
		Status:     status,
		OccurredAt: at,
	})
}

// lookupError maps a repository read failure for one entity.
func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return internalError(err, "failed to load "+entity)
}

// transitionError maps a failed conditional write. A missed CAS means another writer moved the entity first.
func transitionError(err error, entity string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrInvalidState, entity+" status changed concurrently")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, entity+" already exists")
	default:
		return internalError(err, "failed to update "+entity)
	}
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func actorID(actor *models.JWTClaims) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}

func internalError(err error, message string) error {
	return appErrors.Internal(err, message)
}
