package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type identityStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// AuthConfig holds the token signing settings.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	Audience          []string
}

// AuthServiceParams collects the AuthService dependencies. Audit is optional.
type AuthServiceParams struct {
	Users     identityStore
	Audit     auditRecorder
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    AuthConfig
}

// AuthService logs marketplace users in and validates their access tokens.
type AuthService struct {
	users     identityStore
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(params AuthServiceParams) *AuthService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Config.AccessTokenExpiry <= 0 {
		params.Config.AccessTokenExpiry = 15 * time.Minute
	}
	return &AuthService{
		users:     params.Users,
		audit:     params.Audit,
		validator: params.Validator,
		logger:    params.Logger,
		config:    params.Config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the password and issues an HS256 access token. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, internalError(err, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	issuedAt := s.now()
	token, expiresAt, err := s.sign(user, issuedAt)
	if err != nil {
		return nil, internalError(err, "failed to sign access token")
	}

	if err := s.users.TouchLogin(ctx, user.ID, issuedAt); err != nil {
		s.logger.Warn("touch login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.recordLogin(ctx, user, req)

	return &models.Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Identity:    user.Identity(),
	}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, user *models.User, req models.LoginRequest) {
	if s.audit == nil {
		return
	}
	userID := user.ID
	err := s.audit.Record(ctx, &models.AuditEntry{
		ActorID:    &userID,
		ActorRole:  string(user.Role),
		Action:     models.AuditActionLogin,
		Resource:   "user",
		ResourceID: &userID,
		Route:      "POST /auth/login",
		StatusCode: 200,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		s.logger.Warn("login audit failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// ValidateToken parses an access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Identify returns the stored identity of an active user.
func (s *AuthService) Identify(ctx context.Context, userID string) (*models.Identity, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	identity := user.Identity()
	return &identity, nil
}

// RoleOf returns the stored role of an active user.
func (s *AuthService) RoleOf(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user not found")
		}
		return nil, internalError(err, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	return user, nil
}

func (s *AuthService) sign(user *models.User, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	identity := user.Identity()
	claims := &models.JWTClaims{
		UserID:            identity.ID,
		Role:              identity.Role,
		Email:             identity.Email,
		FullName:          identity.FullName,
		ProviderProfileID: identity.ProviderProfileID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
