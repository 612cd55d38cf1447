package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest carries the credentials posted to /auth/login. IP and
// UserAgent are filled from the HTTP request for the audit trail.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// Session is returned after a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Identity    Identity  `json:"user"`
}

// Identity is the caller as the marketplace sees it. ProviderProfileID is
// set only for engineers and companies that own a provider profile.
type Identity struct {
	ID                string   `json:"id"`
	Email             string   `json:"email"`
	FullName          string   `json:"full_name"`
	Role              UserRole `json:"role"`
	ProviderProfileID string   `json:"provider_profile_id,omitempty"`
}

// JWTClaims is the access token payload.
type JWTClaims struct {
	UserID            string   `json:"user_id"`
	Role              UserRole `json:"role"`
	Email             string   `json:"email"`
	FullName          string   `json:"full_name"`
	ProviderProfileID string   `json:"provider_profile_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity projects the token claims.
func (c *JWTClaims) Identity() Identity {
	return Identity{
		ID:                c.UserID,
		Email:             c.Email,
		FullName:          c.FullName,
		Role:              c.Role,
		ProviderProfileID: c.ProviderProfileID,
	}
}
