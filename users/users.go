package users

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// Role is the storefront role attached to an account
type Role string

const (
	RoleCustomer Role = "customer" // Browses, orders, keeps a cart and wishlist
	RoleSeller   Role = "seller"   // Manages own products and orders
	RoleAdmin    Role = "admin"    // Full system access
)

// Valid reports whether r is one of the known storefront roles
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// Account is the read-only view of a registered user. Registration lives outside the gatekeeper.
type Account struct {
	ID            string `json:"id"`                   // Unique identifier for the account
	Email         string `json:"email"`                // Unique email address
	PasswordHash  string `json:"-"`                    // bcrypt hash - never serialize
	FirstName     string `json:"first_name,omitempty"` // First name of the user
	LastName      string `json:"last_name,omitempty"`  // Last name of the user
	Role          Role   `json:"role"`                 // customer, seller or admin
	Active        bool   `json:"is_active"`            // Inactive accounts cannot log in or hold sessions
	EmailVerified bool   `json:"email_verified"`       // Has the user verified their email address
}

// CredentialStore is the boundary to the storefront's user data.
// Lookups return errors.ErrUserNotFound when no account matches.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	VerifyPassword(plain, hash string) bool
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// BcryptVerifier provides the VerifyPassword half of CredentialStore for stores holding bcrypt hashes
type BcryptVerifier struct{}

func (BcryptVerifier) VerifyPassword(plain, hash string) bool {
	return CheckPasswordHash(plain, hash)
}
