package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrRateLimited indicates the subject has exhausted its window allowance.
var ErrRateLimited = errors.New("ratelimit: limit exceeded")

// Policy bounds one action: at most Limit attempts per Window.
type Policy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Window is one persisted counter row, keyed by (SubjectKey, Action).
type Window struct {
	SubjectKey   string
	Action       string
	WindowStart  time.Time
	AttemptCount int
}

// Store persists windows. Increment must be a single atomic conditional
// update so two concurrent requests can never both pass when only one should.
type Store interface {
	// Increment bumps the counter for (subjectKey, action), creating the row
	// or resetting it when its windowStart is before notBefore. It reports
	// false, without incrementing, when the live window already holds limit
	// attempts.
	Increment(ctx context.Context, subjectKey, action string, windowStart, notBefore time.Time, limit int) (bool, error)

	// DeleteExpired removes rows for the action whose window started before
	// olderThan, returning how many were deleted.
	DeleteExpired(ctx context.Context, action string, olderThan time.Time) (int64, error)
}

const defaultRetention = 24 * time.Hour

// Limiter enforces per-action policies against a persisted window store, so
// limiting survives restarts and holds across concurrent workers.
type Limiter struct {
	store     Store
	policies  map[string]Policy
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger

	// onReject is poked with the action name on every rejection, for metrics.
	onReject func(action string)
}

// Option configures Limiter behavior.
type Option func(*Limiter)

// WithRetention sets how long expired windows are kept for forensics before
// cleanup removes them.
func WithRetention(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.retention = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithLogger attaches the shared logger.
func WithLogger(z *zap.Logger) Option {
	return func(l *Limiter) {
		if z != nil {
			l.logger = z
		}
	}
}

// WithRejectHook registers a callback fired on every rejection.
func WithRejectHook(fn func(action string)) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.onReject = fn
		}
	}
}

// New constructs a Limiter for the given per-action policies.
func New(store Store, policies map[string]Policy, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if len(policies) == 0 {
		return nil, errors.New("ratelimit: at least one policy is required")
	}
	for action, p := range policies {
		if p.Limit <= 0 || p.Window <= 0 {
			return nil, fmt.Errorf("ratelimit: invalid policy for action %q", action)
		}
	}
	l := &Limiter{
		store:     store,
		policies:  policies,
		retention: defaultRetention,
		now:       time.Now,
		logger:    zap.NewNop(),
		onReject:  func(string) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckAndIncrement counts one attempt for (subjectKey, action) and fails
// with ErrRateLimited once the window allowance is spent. An action without a
// configured policy is a wiring bug and fails closed.
func (l *Limiter) CheckAndIncrement(ctx context.Context, subjectKey, action string) error {
	policy, ok := l.policies[action]
	if !ok {
		return fmt.Errorf("ratelimit: no policy configured for action %q", action)
	}
	now := l.now().UTC()
	allowed, err := l.store.Increment(ctx, subjectKey, action, now, now.Add(-policy.Window), policy.Limit)
	if err != nil {
		return err
	}
	if !allowed {
		l.onReject(action)
		l.logger.Info("rate limit exceeded",
			zap.String("action", action),
			zap.Int("limit", policy.Limit),
			zap.Duration("window", policy.Window),
		)
		return ErrRateLimited
	}
	return nil
}

// Window returns the configured window for an action, for Retry-After hints.
func (l *Limiter) Window(action string) (time.Duration, bool) {
	p, ok := l.policies[action]
	if !ok {
		return 0, false
	}
	return p.Window, true
}

// CleanupExpired deletes windows that expired longer than the retention grace
// ago and returns the total removed. Driven by an external scheduled trigger,
// never by request traffic.
func (l *Limiter) CleanupExpired(ctx context.Context) (int64, error) {
	now := l.now().UTC()
	actions := make([]string, 0, len(l.policies))
	for action := range l.policies {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	var total int64
	for _, action := range actions {
		policy := l.policies[action]
		cutoff := now.Add(-policy.Window - l.retention)
		n, err := l.store.DeleteExpired(ctx, action, cutoff)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		l.logger.Info("cleaned up expired rate limit windows", zap.Int64("deleted", total))
	}
	return total, nil
}
