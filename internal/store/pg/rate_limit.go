package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"forkful.app/internal/ratelimit"
)

var _ ratelimit.Store = (*RateLimitStore)(nil)

// RateLimitStore persists attempt windows in the rate_limit_windows table.
type RateLimitStore struct {
	db *sql.DB
}

// Increment is the single-statement check-then-act the limiter relies on:
// the upsert creates or resets the window, the where clause refuses to bump a
// live window that already holds limit attempts, and a refused update yields
// no row. Concurrent callers serialize on the row lock, so two requests can
// never both squeeze through the last slot.
func (s *RateLimitStore) Increment(ctx context.Context, subjectKey, action string, windowStart, notBefore time.Time, limit int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`insert into rate_limit_windows(subject_key, action, window_start, attempt_count)
		 values($1,$2,$3,1)
		 on conflict (subject_key, action) do update
		 set attempt_count = case when rate_limit_windows.window_start < $4 then 1
		                          else rate_limit_windows.attempt_count + 1 end,
		     window_start  = case when rate_limit_windows.window_start < $4 then $3
		                          else rate_limit_windows.window_start end
		 where rate_limit_windows.window_start < $4
		    or rate_limit_windows.attempt_count < $5
		 returning attempt_count`,
		subjectKey, action, windowStart, notBefore, limit,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *RateLimitStore) DeleteExpired(ctx context.Context, action string, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from rate_limit_windows where action=$1 and window_start < $2`,
		action, olderThan,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
