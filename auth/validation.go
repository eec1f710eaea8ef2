package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
)

const minLoginPasswordLength = 6

// Validator checks login input before any lookup is made
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUserCredentials validates login credentials. Failures wrap errors.ErrInvalidInput.
func (v *Validator) ValidateUserCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: %w", errors.ErrInvalidInput, EmailRequiredErr)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("%w: %w", errors.ErrInvalidInput, InvalidEmailErr)
	}

	if password == "" {
		return fmt.Errorf("%w: %w", errors.ErrInvalidInput, PasswordRequiredErr)
	}
	if utf8.RuneCountInString(password) < minLoginPasswordLength {
		return fmt.Errorf("%w: %w", errors.ErrInvalidInput, PasswordTooShortErr)
	}
	return nil
}

// NormalizeEmail is the form used for lookups and lockout keys
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
