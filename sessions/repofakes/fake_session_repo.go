package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps sessions in process. It backs single-instance deployments as well as tests.
type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	stored := *session
	sr.sessions[session.TokenHash] = &stored
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, tokenHash string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[tokenHash]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	found := *session
	return &found, nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, tokenHash string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.sessions, tokenHash)
	return nil
}

func (sr *FakeSessionRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	removed := 0
	for hash, session := range sr.sessions {
		if session.Expired(now) {
			delete(sr.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// Len is the number of stored sessions, expired or not
func (sr *FakeSessionRepo) Len() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}
