package sinkfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/storefront-gatekeeper/audit"
)

var _ audit.Sink = (*Sink)(nil)

// Sink keeps events in memory. Err, when set, is returned from every Append.
type Sink struct {
	lock   sync.Mutex
	events []audit.Event
	Err    error
}

func New() *Sink {
	return &Sink{}
}

func (s *Sink) Append(_ context.Context, event audit.Event) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything appended so far
func (s *Sink) Events() []audit.Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// ByAction returns the events with the given action
func (s *Sink) ByAction(action audit.Action) []audit.Event {
	s.lock.Lock()
	defer s.lock.Unlock()

	var found []audit.Event
	for _, e := range s.events {
		if e.Action == action {
			found = append(found, e)
		}
	}
	return found
}
