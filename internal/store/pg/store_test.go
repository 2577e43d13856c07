package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"forkful.app/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestUserStoreCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into users").
		WithArgs("u1", "cook@example.com", "hash", "user", "active", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := store.Users().Create(context.Background(), &auth.User{
		ID:           "u1",
		Email:        "cook@example.com",
		PasswordHash: "hash",
		Role:         auth.RoleUser,
		Status:       auth.UserStatusActive,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserStoreFindByEmail(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "status", "created_at", "updated_at"}).
		AddRow("u1", "cook@example.com", "hash", "editor", "active", now, now)
	mock.ExpectQuery("select id, email, password_hash, role, status, created_at, updated_at.*from users where email").
		WithArgs("cook@example.com").
		WillReturnRows(rows)

	u, err := store.Users().FindByEmail(context.Background(), "cook@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "u1" || u.Role != auth.RoleEditor {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("select id, email, password_hash, role, status, created_at, updated_at.*from users where email").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Users().FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserStoreUpdateRole(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "status", "created_at", "updated_at"}).
		AddRow("u1", "cook@example.com", "hash", "editor", "active", now, now)
	mock.ExpectQuery("update users set role").
		WithArgs("u1", "editor").
		WillReturnRows(rows)

	u, err := store.Users().UpdateRole(context.Background(), "u1", auth.RoleEditor)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if u.Role != auth.RoleEditor {
		t.Fatalf("unexpected role: %s", u.Role)
	}

	mock.ExpectQuery("update users set role").
		WithArgs("missing", "admin").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Users().UpdateRole(context.Background(), "missing", auth.RoleAdmin); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshTokenStoreFindByHash(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"token_hash", "user_id", "family_id", "issued_at", "expires_at", "rotated_at", "replaced_by_hash", "revoked_at"}).
		AddRow("h1", "u1", "f1", now, now.Add(time.Hour), nil, nil, nil)
	mock.ExpectQuery("select token_hash, user_id, family_id, issued_at, expires_at, rotated_at, replaced_by_hash, revoked_at.*from refresh_tokens").
		WithArgs("h1").
		WillReturnRows(rows)

	tok, err := store.RefreshTokens().FindByHash(context.Background(), "h1")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if !tok.Active() {
		t.Fatalf("expected active token, got %+v", tok)
	}

	mock.ExpectQuery("select token_hash, user_id, family_id").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.RefreshTokens().FindByHash(context.Background(), "unknown"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshTokenStoreMarkRotatedIsConditional(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now()

	mock.ExpectExec("update refresh_tokens").
		WithArgs("h1", "h2", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := store.RefreshTokens().MarkRotated(context.Background(), "h1", "h2", at)
	if err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if !ok {
		t.Fatal("expected rotation to win")
	}

	// Second caller finds the guard already taken.
	mock.ExpectExec("update refresh_tokens").
		WithArgs("h1", "h3", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = store.RefreshTokens().MarkRotated(context.Background(), "h1", "h3", at)
	if err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if ok {
		t.Fatal("expected rotation to lose the race")
	}
}

func TestRefreshTokenStoreRevokeFamily(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now()

	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("f1", at).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RefreshTokens().RevokeFamily(context.Background(), "f1", at)
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked rows, got %d", n)
	}
}

func TestRateLimitStoreIncrement(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	notBefore := now.Add(-15 * time.Minute)

	mock.ExpectQuery("insert into rate_limit_windows").
		WithArgs("1.2.3.4|cook@example.com", "login", now, notBefore, 5).
		WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}).AddRow(3))
	ok, err := store.RateLimits().Increment(context.Background(), "1.2.3.4|cook@example.com", "login", now, notBefore, 5)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if !ok {
		t.Fatal("expected attempt to be admitted")
	}

	// A refused conditional upsert returns no row; that is the limit signal,
	// not an error.
	mock.ExpectQuery("insert into rate_limit_windows").
		WithArgs("1.2.3.4|cook@example.com", "login", now, notBefore, 5).
		WillReturnError(sql.ErrNoRows)
	ok, err = store.RateLimits().Increment(context.Background(), "1.2.3.4|cook@example.com", "login", now, notBefore, 5)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if ok {
		t.Fatal("expected attempt to be refused at the limit")
	}
}

func TestRateLimitStoreDeleteExpired(t *testing.T) {
	store, mock := newMock(t)
	cutoff := time.Now().Add(-25 * time.Hour)

	mock.ExpectExec("delete from rate_limit_windows").
		WithArgs("login", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.RateLimits().DeleteExpired(context.Background(), "login", cutoff)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 deleted rows, got %d", n)
	}
}
