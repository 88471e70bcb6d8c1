// Package session holds the explicit per-application session context.
//
// There is exactly one Session per running client. It is created by the
// composition root, seeded from the persistence mirror before any network
// round trip, and cleared on logout. Nothing else holds ambient user state.
package session

import (
	"sync"
	"time"
)

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Chambers string `json:"chambers,omitempty"`
}

// Session is safe for concurrent use; every accessor takes the lock.
type Session struct {
	mu           sync.RWMutex
	user         *User
	accessToken  string
	refreshToken string
	lastRoute    string
	loadedAt     time.Time
}

func New() *Session {
	return &Session{loadedAt: time.Now().UTC()}
}

func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) SetUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if access != "" {
		s.accessToken = access
	}
	if refresh != "" {
		s.refreshToken = refresh
	}
}

func (s *Session) LastRoute() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRoute
}

func (s *Session) SetLastRoute(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRoute = route
}

// Active reports whether a usable session exists. A session seeded from the
// mirror without tokens is not active; reads may still serve cached data.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != ""
}

// Clear wipes all session state. Used on logout and on refresh failure.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.lastRoute = ""
}

func (s *Session) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
