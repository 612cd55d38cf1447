package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleGovernment UserRole = "GOVERNMENT"
	RoleCitizen    UserRole = "CITIZEN"
	RoleEngineer   UserRole = "ENGINEER"
	RoleCompany    UserRole = "COMPANY"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleGovernment, RoleCitizen, RoleEngineer, RoleCompany:
		return true
	default:
		return false
	}
}

// IsProvider reports whether the role submits quotes and executes projects.
func (r UserRole) IsProvider() bool {
	return r == RoleEngineer || r == RoleCompany
}

// User is a row of the users table joined with the id of the provider
// profile the user owns, if any.
type User struct {
	ID                string     `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	FullName          string     `db:"full_name" json:"full_name"`
	Role              UserRole   `db:"role" json:"role"`
	Active            bool       `db:"active" json:"active"`
	LastLogin         *time.Time `db:"last_login" json:"last_login,omitempty"`
	ProviderProfileID *string    `db:"provider_profile_id" json:"provider_profile_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Identity projects the user onto the response shape.
func (u *User) Identity() Identity {
	id := Identity{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
	if u.ProviderProfileID != nil {
		id.ProviderProfileID = *u.ProviderProfileID
	}
	return id
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
