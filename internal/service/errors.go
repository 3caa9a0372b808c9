package service

import "errors"

// Authentication failures. Handlers map each one to 401 with its message.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpired            = errors.New("token expired")
	ErrSessionNotFound    = errors.New("session not found")
)

// User management failures.
var (
	ErrValidation     = errors.New("validation failed")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrEmailTaken     = errors.New("email already taken")
	ErrUserNotFound   = errors.New("user not found")
	ErrSearchDisabled = errors.New("search is disabled")
)
