package services

import (
	"context"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/persistence"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/security"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// SessionService owns the session lifecycle: mirror seeding at start,
// login/logout, and the channel reconnect that follows a credential change.
type SessionService struct {
	session *session.Session
	mirror  *persistence.Mirror
	client  *transport.Client
	channel *realtime.Channel
	logger  *logging.ChanneledLogger
}

func NewSessionService(sess *session.Session, mirror *persistence.Mirror, client *transport.Client, channel *realtime.Channel, logger *logging.ChanneledLogger) *SessionService {
	return &SessionService{
		session: sess,
		mirror:  mirror,
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// LoadFromMirror seeds the session from durable storage before any network
// round trip. Missing values are simply absent; an unauthenticated state is
// reported, never thrown.
func (s *SessionService) LoadFromMirror() bool {
	if user, ok := s.mirror.Session(); ok {
		s.session.SetUser(user)
	}
	s.session.SetTokens(s.mirror.AccessToken(), s.mirror.RefreshToken())
	if route := s.mirror.LastRoute(); route != "" {
		s.session.SetLastRoute(route)
	}

	active := s.session.Active()
	if token := s.session.AccessToken(); token != "" {
		if expiry, err := security.TokenExpiry(token); err == nil && !expiry.IsZero() {
			// An expired token still counts as active; the first authorized
			// call refreshes it.
			s.logger.Auth().Info("Session loaded from mirror",
				"active", active, "tokenExpiresAt", expiry)
			return active
		}
	}
	s.logger.Auth().Info("Session loaded from mirror", "active", active)
	return active
}

// TokenExpiry reports when the current access token lapses, for the
// diagnostics surface. Zero when no token is held or the token is opaque.
func (s *SessionService) TokenExpiry() time.Time {
	token := s.session.AccessToken()
	if token == "" {
		return time.Time{}
	}
	expiry, err := security.TokenExpiry(token)
	if err != nil {
		return time.Time{}
	}
	return expiry
}

type LoginArgs struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates against the backend. The response envelope carries
// the token pair, which the transport client routes into the credential
// store; here we record the user and reconnect the channel with the fresh
// credential.
func (s *SessionService) Login(ctx context.Context, args LoginArgs) (*session.User, error) {
	var user session.User
	if err := s.client.Post(ctx, "/auth/login", args, &user); err != nil {
		return nil, err
	}

	s.session.SetUser(&user)
	if err := s.mirror.PutSession(&user); err != nil {
		s.logger.Auth().Warn("Failed to mirror session", "error", err.Error())
	}

	if err := s.channel.Reconnect(); err != nil {
		s.logger.Auth().Warn("Channel reconnect after login failed", "error", err.Error())
	}

	s.logger.Auth().Info("Logged in", "user", user.ID)
	return &user, nil
}

// Logout clears local state unconditionally; the backend call is advisory.
func (s *SessionService) Logout(ctx context.Context) {
	if err := s.client.Post(ctx, "/auth/logout", nil, nil); err != nil {
		s.logger.Auth().Debug("Logout call failed, clearing locally anyway", "error", err.Error())
	}
	s.session.Clear()
	s.mirror.ClearSession()
	s.logger.Auth().Info("Logged out")
}

// RememberRoute persists the last-route hint for the next start.
func (s *SessionService) RememberRoute(route string) {
	s.session.SetLastRoute(route)
	if err := s.mirror.PutLastRoute(route); err != nil {
		s.logger.Auth().Debug("Failed to mirror route hint", "error", err.Error())
	}
}

func (s *SessionService) Active() bool { return s.session.Active() }
