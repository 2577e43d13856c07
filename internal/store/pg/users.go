package pg

import (
	"context"
	"database/sql"
	"errors"

	"forkful.app/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore persists accounts in the users table.
type UserStore struct {
	db *sql.DB
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, role, status, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.Status, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *UserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, status, created_at, updated_at
		 from users where id=$1`, id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, status, created_at, updated_at
		 from users where email=$1`, email))
}

func (s *UserStore) UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`update users set role=$2, updated_at=now() where id=$1
		 returning id, email, password_hash, role, status, created_at, updated_at`,
		id, string(role)))
}

func (s *UserStore) scanOne(row *sql.Row) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
