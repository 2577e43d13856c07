package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"forkful.app/internal/auth"
)

var _ auth.RefreshTokenStore = (*RefreshTokenStore)(nil)

// RefreshTokenStore persists rotation families in the refresh_tokens table.
type RefreshTokenStore struct {
	db *sql.DB
}

func (s *RefreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(token_hash, user_id, family_id, issued_at, expires_at)
		 values($1,$2,$3,$4,$5)`,
		tok.TokenHash, tok.UserID, tok.FamilyID, tok.IssuedAt, tok.ExpiresAt,
	)
	return err
}

func (s *RefreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select token_hash, user_id, family_id, issued_at, expires_at, rotated_at, replaced_by_hash, revoked_at
		 from refresh_tokens where token_hash=$1`, tokenHash)
	var t auth.RefreshToken
	if err := row.Scan(&t.TokenHash, &t.UserID, &t.FamilyID, &t.IssuedAt, &t.ExpiresAt,
		&t.RotatedAt, &t.ReplacedByHash, &t.RevokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// MarkRotated retires an active record and links its successor. The guard in
// the where clause makes the rotation a compare-and-swap: of N concurrent
// refreshes with the same token, exactly one sees RowsAffected == 1.
func (s *RefreshTokenStore) MarkRotated(ctx context.Context, tokenHash, replacedByHash string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens
		 set rotated_at=$3, replaced_by_hash=$2
		 where token_hash=$1 and rotated_at is null and revoked_at is null`,
		tokenHash, replacedByHash, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RefreshTokenStore) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2 where family_id=$1 and revoked_at is null`,
		familyID, at,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
