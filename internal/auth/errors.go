package auth

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenReuse         = errors.New("auth: refresh token reuse detected")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrInvalidInput       = errors.New("auth: invalid input")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)

// StatusCode maps a core error onto its HTTP equivalent. Anything unknown is
// an internal error; store failures never leak detail to the client.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenReuse),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message for an error. Messages are
// deliberately generic: they never reveal whether an account exists or which
// part of a credential failed.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenReuse):
		return "invalid token"
	case errors.Is(err, ErrTokenExpired):
		return "token expired"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid input"
	case errors.Is(err, ErrNotFound):
		return "not found"
	}
	return "internal error"
}
