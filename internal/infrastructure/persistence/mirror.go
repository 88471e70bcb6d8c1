// Package persistence implements the local durable mirror: a secondary copy
// of select entities kept in sqlite to survive restarts and offline gaps.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/court"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/security"
)

// Fixed storage keys. One serialized value per key.
const (
	KeyCases        = "cases"
	KeySession      = "session"
	KeyLastRoute    = "lastRoute"
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
)

// Mirror wraps the sqlite key/value store. Absent or corrupt values read as
// "no cached data", never as errors; the mirror is a best-effort layer.
type Mirror struct {
	db     *sql.DB
	aesKey string
	logger *logging.ChanneledLogger
}

func NewMirror(path, aesKey string, logger *logging.ChanneledLogger) (*Mirror, error) {
	start := time.Now()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mirror database ping failed: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create mirror schema: %w", err)
	}

	logger.Mirror().Info("Mirror opened", "path", path, "duration", time.Since(start))
	return &Mirror{db: db, aesKey: aesKey, logger: logger}, nil
}

func (m *Mirror) Close() error {
	return m.db.Close()
}

func (m *Mirror) putRaw(key, value string) error {
	_, err := m.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func (m *Mirror) getRaw(key string) (string, bool) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		m.logger.Mirror().Warn("Mirror read failed, treating as absent", "key", key, "error", err.Error())
		return "", false
	}
	return value, true
}

// Put serializes v as JSON under key.
func (m *Mirror) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s for mirror: %w", key, err)
	}
	return m.putRaw(key, string(raw))
}

// Get decodes the value under key into out. A missing or corrupt value
// returns false with no error.
func (m *Mirror) Get(key string, out any) bool {
	raw, ok := m.getRaw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		m.logger.Mirror().Warn("Corrupt mirror value, treating as absent", "key", key, "error", err.Error())
		return false
	}
	return true
}

func (m *Mirror) Delete(key string) error {
	if _, err := m.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s from mirror: %w", key, err)
	}
	return nil
}

// Cases returns the mirrored case list, if any.
func (m *Mirror) Cases() ([]court.Case, bool) {
	var cases []court.Case
	if !m.Get(KeyCases, &cases) {
		return nil, false
	}
	return cases, true
}

// PutCases persists the full case list. Called on every committed change to
// the case collection.
func (m *Mirror) PutCases(cases []court.Case) error {
	return m.Put(KeyCases, cases)
}

// Session returns the mirrored user, if any.
func (m *Mirror) Session() (*session.User, bool) {
	var user session.User
	if !m.Get(KeySession, &user) {
		return nil, false
	}
	return &user, true
}

func (m *Mirror) PutSession(user *session.User) error {
	return m.Put(KeySession, user)
}

// Tokens are encrypted at rest when an AES key is configured.

func (m *Mirror) putToken(key, token string) error {
	if token == "" {
		return m.Delete(key)
	}
	if m.aesKey != "" {
		encrypted, err := security.Encrypt(token, m.aesKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
		token = encrypted
	}
	return m.putRaw(key, token)
}

func (m *Mirror) getToken(key string) string {
	raw, ok := m.getRaw(key)
	if !ok {
		return ""
	}
	if m.aesKey != "" {
		decrypted, err := security.Decrypt(raw, m.aesKey)
		if err != nil {
			m.logger.Mirror().Warn("Stored token undecryptable, treating as absent", "key", key)
			return ""
		}
		return decrypted
	}
	return raw
}

func (m *Mirror) PutAccessToken(token string) error  { return m.putToken(KeyToken, token) }
func (m *Mirror) AccessToken() string                { return m.getToken(KeyToken) }
func (m *Mirror) PutRefreshToken(token string) error { return m.putToken(KeyRefreshToken, token) }
func (m *Mirror) RefreshToken() string               { return m.getToken(KeyRefreshToken) }

func (m *Mirror) PutLastRoute(route string) error {
	return m.Put(KeyLastRoute, route)
}

func (m *Mirror) LastRoute() string {
	var route string
	if !m.Get(KeyLastRoute, &route) {
		return ""
	}
	return route
}

// ClearSession removes everything tied to the authenticated session. The
// case list survives; it is data, not credentials.
func (m *Mirror) ClearSession() {
	for _, key := range []string{KeySession, KeyToken, KeyRefreshToken, KeyLastRoute} {
		if err := m.Delete(key); err != nil {
			m.logger.Mirror().Warn("Failed to clear mirror key", "key", key, "error", err.Error())
		}
	}
}

// MergeCases reconciles the mirrored list with a server response. Entries
// only present locally are kept (not-yet-synced optimistic creations);
// entries present in both take the server version; server-only entries are
// added.
func MergeCases(local, server []court.Case) []court.Case {
	seen := make(map[string]bool, len(server))
	merged := make([]court.Case, 0, len(server)+len(local))

	for _, c := range server {
		seen[c.ID] = true
		merged = append(merged, c)
	}
	for _, c := range local {
		if !seen[c.ID] {
			merged = append(merged, c)
		}
	}
	return merged
}
