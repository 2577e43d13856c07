package auth

import (
	"context"
	"time"
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateRole(ctx context.Context, id string, role Role) (*User, error)
}

// RefreshTokenStore persists rotation families. Implementations back the
// mutating calls with the database's transactional guarantees; MarkRotated in
// particular must be a single conditional update, not a read-then-write.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// MarkRotated flips an active record to rotated and links its successor.
	// It reports false when a concurrent rotation or revocation won the race.
	MarkRotated(ctx context.Context, tokenHash, replacedByHash string, at time.Time) (bool, error)

	// RevokeFamily revokes every not-yet-revoked member of a family and
	// returns how many records it touched.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
}
