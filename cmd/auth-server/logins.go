package main

import (
	"sync"
	"time"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
)

// loginStore keeps pending PKCE logins keyed by OAuth state until the
// provider redirects back. Entries are single use.
type loginStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]pendingLogin
}

type pendingLogin struct {
	req     pasetox.LoginRequest
	expires time.Time
}

func newLoginStore(ttl time.Duration, now func() time.Time) *loginStore {
	return &loginStore{
		ttl:     ttl,
		now:     now,
		pending: make(map[string]pendingLogin),
	}
}

func (s *loginStore) put(req pasetox.LoginRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for state, p := range s.pending {
		if now.After(p.expires) {
			delete(s.pending, state)
		}
	}
	s.pending[req.State] = pendingLogin{req: req, expires: now.Add(s.ttl)}
}

// take removes and returns the login for state if it has not expired.
func (s *loginStore) take(state string) (pasetox.LoginRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[state]
	if !ok {
		return pasetox.LoginRequest{}, false
	}
	delete(s.pending, state)
	if s.now().After(p.expires) {
		return pasetox.LoginRequest{}, false
	}
	return p.req, true
}
