// Package postgres reads storefront accounts from the users table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jrsteele09/storefront-gatekeeper/internal/database"
	gkerrors "github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/internal/utils"
	"github.com/jrsteele09/storefront-gatekeeper/users"
)

var _ users.CredentialStore = (*Store)(nil)

const selectAccount = `
SELECT id, email, password_hash, first_name, last_name, role, is_active, email_verified
FROM users`

// Store is a read-only CredentialStore over Postgres
type Store struct {
	users.BcryptVerifier
	db *database.DB
}

func NewStore(db *database.DB) (*Store, error) {
	if db == nil || db.Pool == nil {
		return nil, fmt.Errorf("[postgres.NewStore] database is required")
	}
	return &Store{db: db}, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*users.Account, error) {
	return s.scanOne(ctx, selectAccount+` WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*users.Account, error) {
	return s.scanOne(ctx, selectAccount+` WHERE lower(email) = lower($1)`, email)
}

func (s *Store) scanOne(ctx context.Context, q string, arg string) (*users.Account, error) {
	var (
		a         users.Account
		role      string
		firstName *string
		lastName  *string
	)
	err := s.db.Pool.QueryRow(ctx, q, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &firstName, &lastName, &role, &a.Active, &a.EmailVerified,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gkerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[Store scanOne] %w", err)
	}
	a.FirstName = utils.Value(firstName)
	a.LastName = utils.Value(lastName)
	a.Role = users.Role(role)
	return &a, nil
}
