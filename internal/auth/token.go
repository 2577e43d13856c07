package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLen = 32

// Claims are the JWT claims embedded in every access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Codec creates and verifies signed access tokens. Verification requires no
// store lookup, which keeps the per-request hot path free of I/O; revocation
// works indirectly through the refresh ledger and the short access TTL.
type Codec struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewCodec builds a Codec from process configuration. The secret is the
// single server-held HS256 signing key.
func NewCodec(secret []byte, issuer string, accessTTL time.Duration) (*Codec, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("auth: signing secret must be at least 32 bytes")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("auth: issuer is required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("auth: access ttl must be positive")
	}
	return &Codec{
		secret:    secret,
		issuer:    issuer,
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

// WithNow overrides the clock. Test use only.
func (c *Codec) WithNow(fn func() time.Time) *Codec {
	if fn != nil {
		c.now = fn
	}
	return c
}

// IssueAccessToken signs a short-lived token carrying the user's id and role.
func (c *Codec) IssueAccessToken(u *User) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(c.accessTTL)
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature, issuer and expiry and returns the
// embedded identity. Every failure mode, including a token signed with a
// rotated secret, collapses into ErrInvalidToken.
func (c *Codec) VerifyAccessToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
	)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}
