package auth

import "errors"

var (
	EmailRequiredErr    = errors.New("email is required")
	InvalidEmailErr     = errors.New("invalid email format")
	PasswordRequiredErr = errors.New("password is required")
	PasswordTooShortErr = errors.New("password must be at least 6 characters")
)
