package model

import "time"

// Roles a user may hold. Role checks elsewhere compare against these
// values only.
const (
	RoleAdmin    = "admin"
	RoleSubadmin = "subadmin"
	RoleUser     = "user"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleSubadmin || r == RoleUser
}

// User represents an application user record as stored in the
// `users` table. Users are never hard-deleted; blocking is the only way
// to take an account out of service.
//
// Fields:
//  ID                  – primary key identifier of the user.
//  Email               – unique, lower-cased email address.
//  PasswordHash        – bcrypt hashed password.
//  Role                – admin, subadmin or user.
//  ReferralCode        – unique code other users register with.
//  ReferredBy          – id of the referring user (weak reference).
//  IsBlocked           – blocked accounts cannot log in or refresh.
//  ResetTokenHash      – SHA-256 of an outstanding password reset token.
//  ResetTokenExpiresAt – expiry of that reset token.
//  LastLoginAt         – timestamp of the last successful login.
type User struct {
	ID                  uint64     // users.id
	Email               string     // users.email
	PasswordHash        string     // users.password_hash
	Role                string     // users.role
	ReferralCode        string     // users.referral_code
	ReferredBy          *uint64    // users.referred_by (nullable)
	IsBlocked           bool       // users.is_blocked
	ResetTokenHash      *string    // users.reset_token_hash (nullable)
	ResetTokenExpiresAt *time.Time // users.reset_token_expires_at (nullable)
	LastLoginAt         *time.Time // users.last_login_at (nullable)
	CreatedAt           time.Time  // users.created_at
	UpdatedAt           time.Time  // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Each row
// is one outstanding session. The raw token is never stored, only a keyed
// hash of it, and the row is deleted when the token is redeemed.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}
