package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store bundles the PostgreSQL-backed persistence for the auth core: users,
// refresh-token families and rate-limit windows.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests and cmd wiring.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness pings and migrations.
func (s *Store) DB() *sql.DB { return s.db }

// Users returns the UserStore implementation.
func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

// RefreshTokens returns the RefreshTokenStore implementation.
func (s *Store) RefreshTokens() *RefreshTokenStore { return &RefreshTokenStore{db: s.db} }

// RateLimits returns the rate-limit window store implementation.
func (s *Store) RateLimits() *RateLimitStore { return &RateLimitStore{db: s.db} }

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
