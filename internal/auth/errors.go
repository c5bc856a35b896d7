package auth

import "errors"

// Authentication failures. Callers surface all of them as a uniform
// "unauthorized" outcome; the distinction is kept for logs.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrUserNotFound      = errors.New("user not found")
)
