package auth

import (
	"strings"
	"time"
)

// Role is a closed set of account roles. Authorization sites enumerate the
// roles they accept; there is no ordering between roles.
type Role string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleEditor:
		return RoleEditor, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a stored account. Accounts are never deleted by this package;
// deactivation flips Status to disabled.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the verified subject carried by an access token.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// RefreshToken is one persisted member of a rotation family. The raw token
// value is never stored, only a one-way hash of it.
type RefreshToken struct {
	TokenHash      string
	UserID         string
	FamilyID       string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	RotatedAt      *time.Time
	ReplacedByHash *string
	RevokedAt      *time.Time
}

// Active reports whether the record has been neither rotated nor revoked.
// Expiry is checked separately so it can surface as its own error.
func (t *RefreshToken) Active() bool {
	return t.RotatedAt == nil && t.RevokedAt == nil
}

// TokenPair is what login, register and refresh hand back to the caller.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
