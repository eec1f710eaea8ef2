package fakeuserrepo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/users"
)

var _ users.CredentialStore = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory credential store used by tests and by the DEV bootstrap
type FakeUserRepo struct {
	users.BcryptVerifier
	users    map[string]*users.Account
	emailIds map[string]string // lower-cased email to account id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.Account),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(account *users.Account) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	stored := *account
	ur.users[stored.ID] = &stored
	ur.emailIds[strings.ToLower(stored.Email)] = stored.ID
	return nil
}

func (ur *FakeUserRepo) Delete(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	account, ok := ur.users[id]
	if !ok {
		return errors.ErrUserNotFound
	}
	delete(ur.emailIds, strings.ToLower(account.Email))
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) FindByEmail(_ context.Context, email string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	account := *ur.users[id]
	return &account, nil
}

func (ur *FakeUserRepo) FindByID(_ context.Context, id string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	stored, ok := ur.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	account := *stored
	return &account, nil
}

func (ur *FakeUserRepo) SetActive(id string, active bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	account, ok := ur.users[id]
	if !ok {
		return errors.ErrUserNotFound
	}
	account.Active = active
	return nil
}
