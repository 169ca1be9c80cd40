package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated gate session
type Session struct {
	Token   string
	Role    Role
	Expires time.Time
}

// Sessions keeps active sessions in memory.
// Sessions do not survive a restart, users log in again
type Sessions struct {
	ttl  time.Duration
	lock sync.Mutex
	data map[string]*Session
	now  func() time.Time
}

// NewSessions creates Sessions instance
func NewSessions(ttl time.Duration) (*Sessions, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("wrong ttl %v", ttl)
	}
	return &Sessions{ttl: ttl, data: map[string]*Session{}, now: time.Now}, nil
}

// Start creates a new session for the role
func (s *Sessions) Start(role Role) *Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.now()
	s.dropExpired(now)
	res := &Session{Token: uuid.NewString(), Role: role, Expires: now.Add(s.ttl)}
	s.data[res.Token] = res
	return res
}

// Get returns the session for the token, nil if missing or expired
func (s *Sessions) Get(token string) *Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	res, ok := s.data[token]
	if !ok {
		return nil
	}
	if !res.Expires.After(s.now()) {
		delete(s.data, token)
		return nil
	}
	return res
}

// Drop ends the session
func (s *Sessions) Drop(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.data, token)
}

func (s *Sessions) dropExpired(now time.Time) {
	for k, v := range s.data {
		if !v.Expires.After(now) {
			delete(s.data, k)
		}
	}
}
