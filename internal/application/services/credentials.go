// Package services wires the sync engine's resource and session services.
package services

import (
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/persistence"
)

// CredentialStore backs the transport client's token source with the
// session object and the durable mirror, so rotated credentials survive
// restarts.
type CredentialStore struct {
	session *session.Session
	mirror  *persistence.Mirror
	logger  *logging.ChanneledLogger
}

func NewCredentialStore(sess *session.Session, mirror *persistence.Mirror, logger *logging.ChanneledLogger) *CredentialStore {
	return &CredentialStore{session: sess, mirror: mirror, logger: logger}
}

func (c *CredentialStore) AccessToken() string  { return c.session.AccessToken() }
func (c *CredentialStore) RefreshToken() string { return c.session.RefreshToken() }

// UpdateTokens records rotated credentials in the session and mirrors them.
// Empty values leave the existing token untouched.
func (c *CredentialStore) UpdateTokens(access, refresh string) {
	c.session.SetTokens(access, refresh)
	if access != "" {
		if err := c.mirror.PutAccessToken(access); err != nil {
			c.logger.Auth().Warn("Failed to mirror access token", "error", err.Error())
		}
	}
	if refresh != "" {
		if err := c.mirror.PutRefreshToken(refresh); err != nil {
			c.logger.Auth().Warn("Failed to mirror refresh token", "error", err.Error())
		}
	}
}

// Invalidate clears all local session state; called when a credential
// refresh fails.
func (c *CredentialStore) Invalidate() {
	c.logger.Auth().Info("Invalidating local session")
	c.session.Clear()
	c.mirror.ClearSession()
}
