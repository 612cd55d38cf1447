package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type roleResolver interface {
	RoleOf(ctx context.Context, userID string) (models.UserRole, error)
}

type providerProfileReader interface {
	GetByID(ctx context.Context, id string) (*models.ProviderProfile, error)
	GetByUserID(ctx context.Context, userID string) (*models.ProviderProfile, error)
}

// AccessPolicy evaluates ownership and role predicates before lifecycle mutations.
type AccessPolicy struct {
	roles     roleResolver
	providers providerProfileReader
	logger    *zap.Logger
}

// NewAccessPolicy constructs an AccessPolicy. A nil role resolver makes the token role authoritative.
func NewAccessPolicy(roles roleResolver, providers providerProfileReader, logger *zap.Logger) *AccessPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessPolicy{roles: roles, providers: providers, logger: logger}
}

// IsOwner reports whether userID owns the entity.
func (p *AccessPolicy) IsOwner(ownerID, userID string) bool {
	return ownerID != "" && ownerID == userID
}

// HasRole reports whether the actor currently holds one of the roles.
func (p *AccessPolicy) HasRole(ctx context.Context, actor *models.JWTClaims, roles ...models.UserRole) bool {
	role, ok := p.roleOf(ctx, actor)
	if !ok {
		return false
	}
	for _, allowed := range roles {
		if role == allowed {
			return true
		}
	}
	return false
}

// RequireRole returns Forbidden unless the actor holds one of the roles.
func (p *AccessPolicy) RequireRole(ctx context.Context, actor *models.JWTClaims, roles ...models.UserRole) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !p.HasRole(ctx, actor, roles...) {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role")
	}
	return nil
}

// ProviderFor resolves the provider profile the actor acts as.
func (p *AccessPolicy) ProviderFor(ctx context.Context, actor *models.JWTClaims) (*models.ProviderProfile, error) {
	if err := p.RequireRole(ctx, actor, models.RoleEngineer, models.RoleCompany); err != nil {
		return nil, err
	}
	if p.providers == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "provider profile required")
	}
	profile, err := p.providers.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "provider profile required")
		}
		return nil, internalError(err, "failed to load provider profile")
	}
	return profile, nil
}

// ProviderUserID returns the user account behind a provider profile, or "" when unknown.
func (p *AccessPolicy) ProviderUserID(ctx context.Context, providerID string) string {
	if p.providers == nil || providerID == "" {
		return ""
	}
	profile, err := p.providers.GetByID(ctx, providerID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			p.logger.Warn("failed to resolve provider user", zap.String("provider_id", providerID), zap.Error(err))
		}
		return ""
	}
	return profile.UserID
}

// IsProviderUser reports whether the actor is the user behind providerID.
func (p *AccessPolicy) IsProviderUser(ctx context.Context, actor *models.JWTClaims, providerID string) bool {
	if actor == nil || actor.UserID == "" {
		return false
	}
	return p.IsOwner(p.ProviderUserID(ctx, providerID), actor.UserID)
}

func (p *AccessPolicy) roleOf(ctx context.Context, actor *models.JWTClaims) (models.UserRole, bool) {
	if actor == nil || actor.UserID == "" {
		return "", false
	}
	if p.roles == nil {
		return actor.Role, actor.Role != ""
	}
	role, err := p.roles.RoleOf(ctx, actor.UserID)
	if err != nil {
		p.logger.Debug("role resolution denied", zap.String("user_id", actor.UserID), zap.Error(err))
		return "", false
	}
	return role, true
}
