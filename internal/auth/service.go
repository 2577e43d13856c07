package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"forkful.app/internal/audit"
	"forkful.app/internal/ids"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour
	minPasswordLen    = 8
)

// Service orchestrates registration, login and the refresh-token rotation
// state machine. A family of refresh tokens descends from one login; any
// member presented after it was rotated or revoked is treated as a compromise
// signal and kills the whole family.
type Service struct {
	users  UserStore
	tokens RefreshTokenStore
	codec  *Codec

	refreshTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
	audit      *audit.Log

	// Metric hooks, poked on reuse detection and failed credential checks.
	onReuse        func()
	onLoginFailure func()
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger attaches the shared logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAudit attaches the security audit log.
func WithAudit(a *audit.Log) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithReuseHook registers a callback fired on every reuse detection.
func WithReuseHook(fn func()) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.onReuse = fn
		}
	}
}

// WithLoginFailureHook registers a callback fired on every rejected
// credential check.
func WithLoginFailureHook(fn func()) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.onLoginFailure = fn
		}
	}
}

// NewService constructs the auth service.
func NewService(users UserStore, tokens RefreshTokenStore, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if users == nil || tokens == nil {
		return nil, errors.New("auth: user and refresh token stores are required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	svc := &Service{
		users:          users,
		tokens:         tokens,
		codec:          codec,
		refreshTTL:     defaultRefreshTTL,
		now:            time.Now,
		logger:         zap.NewNop(),
		audit:          audit.New(nil),
		onReuse:        func() {},
		onLoginFailure: func() {},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an account with the default role and logs it in.
func (s *Service) Register(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return TokenPair{}, nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return TokenPair{}, nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Same generic response as any other invalid input so the
			// endpoint cannot be used to probe for registered emails.
			return TokenPair{}, nil, fmt.Errorf("%w: unable to register", ErrInvalidInput)
		}
		return TokenPair{}, nil, err
	}
	pair, err := s.startFamily(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit.Event(ctx, "auth.register", zap.String("user_id", user.ID))
	return pair, user, nil
}

// Login verifies credentials and starts a new refresh-token family.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a hash compare anyway so the miss costs the same as a
			// wrong password for an existing account.
			_ = VerifyPassword(dummyHash, password)
			s.onLoginFailure()
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.onLoginFailure()
		s.audit.Event(ctx, "auth.login.failed", zap.String("user_id", user.ID))
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if user.Status != UserStatusActive {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := s.startFamily(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit.Event(ctx, "auth.login", zap.String("user_id", user.ID))
	return pair, user, nil
}

// Refresh exchanges a raw refresh token for a fresh pair, rotating the
// presented token. The state machine per record:
//
//	active -> rotated   (superseded by a child, kept for reuse detection)
//	active -> revoked   (logout, family kill)
//	rotated/revoked     (terminal; presenting one revokes the family)
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	hash, err := hashRawToken(raw)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	rec, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if !rec.Active() {
		return TokenPair{}, s.detectReuse(ctx, rec)
	}
	now := s.now().UTC()
	if now.After(rec.ExpiresAt) {
		return TokenPair{}, ErrTokenExpired
	}
	user, err := s.users.Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if user.Status != UserStatusActive {
		if _, err := s.tokens.RevokeFamily(ctx, rec.FamilyID, now); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrUnauthorized
	}

	// Commit the child first, then retire the parent. If we crash in between,
	// the worst case is a parent that briefly still refreshes; the reverse
	// order could strand the user with no valid token at all.
	pair, childHash, err := s.mint(ctx, user, rec.FamilyID)
	if err != nil {
		return TokenPair{}, err
	}
	ok, err := s.tokens.MarkRotated(ctx, rec.TokenHash, childHash, now)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		// A concurrent request rotated or revoked this record between our
		// read and the conditional update: same compromise signal as reuse.
		return TokenPair{}, s.detectReuse(ctx, rec)
	}
	s.audit.Event(ctx, "auth.refresh", zap.String("user_id", user.ID), zap.String("family_id", rec.FamilyID))
	return pair, nil
}

// Logout revokes the family of the presented token. Unknown and
// already-revoked tokens are a no-op success, so the call is idempotent.
func (s *Service) Logout(ctx context.Context, raw string) error {
	hash, err := hashRawToken(raw)
	if err != nil {
		return nil
	}
	rec, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := s.tokens.RevokeFamily(ctx, rec.FamilyID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Event(ctx, "auth.logout", zap.String("user_id", rec.UserID), zap.String("family_id", rec.FamilyID))
	return nil
}

// VerifyAccessToken validates a bearer token and returns the identity it
// carries. Pure CPU work, no store access.
func (s *Service) VerifyAccessToken(token string) (Identity, error) {
	return s.codec.VerifyAccessToken(token)
}

// SetUserRole changes an account's role. The caller is responsible for
// authorization; use CanManageUsers before calling.
func (s *Service) SetUserRole(ctx context.Context, userID string, role Role) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	s.audit.Event(ctx, "auth.role.changed",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
	)
	return user, nil
}

// detectReuse handles a refresh token presented after rotation or revocation:
// revoke every descendant, then surface the typed error. The revocation is
// part of the transition itself, not an error-handler afterthought.
func (s *Service) detectReuse(ctx context.Context, rec *RefreshToken) error {
	n, err := s.tokens.RevokeFamily(ctx, rec.FamilyID, s.now().UTC())
	if err != nil {
		return err
	}
	s.onReuse()
	s.logger.Warn("refresh token reuse detected",
		zap.String("user_id", rec.UserID),
		zap.String("family_id", rec.FamilyID),
		zap.Int64("revoked", n),
	)
	s.audit.Event(ctx, "auth.token.reuse",
		zap.String("user_id", rec.UserID),
		zap.String("family_id", rec.FamilyID),
	)
	return ErrTokenReuse
}

// startFamily mints a pair rooted in a brand-new family.
func (s *Service) startFamily(ctx context.Context, user *User) (TokenPair, error) {
	pair, _, err := s.mint(ctx, user, ids.New())
	return pair, err
}

// mint issues an access token plus a stored refresh record in the given
// family, returning the pair and the new record's hash.
func (s *Service) mint(ctx context.Context, user *User, familyID string) (TokenPair, string, error) {
	access, accessExp, err := s.codec.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, "", err
	}
	raw, rec, err := s.generateRefreshToken(user.ID, familyID)
	if err != nil {
		return TokenPair{}, "", err
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, rec.TokenHash, nil
}

func (s *Service) generateRefreshToken(userID, familyID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	raw := ids.New() + "." + base64.RawURLEncoding.EncodeToString(secretBytes)
	hash, err := hashRawToken(raw)
	if err != nil {
		return "", nil, err
	}
	rec := &RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		FamilyID:  familyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	return raw, rec, nil
}

// hashRawToken maps a raw refresh token onto its stored form. Comparison then
// happens via equality on the hash, so a leaked table dump cannot be replayed.
func hashRawToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty token")
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
