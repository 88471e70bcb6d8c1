package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/court"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

const testAESKey = "0123456789abcdef0123456789abcdef"

func newTestMirror(t *testing.T, aesKey string) *Mirror {
	t.Helper()
	m, err := NewMirror(filepath.Join(t.TempDir(), "mirror.db"), aesKey, logging.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func sampleCases() []court.Case {
	filedAt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	return []court.Case{
		{ID: "KDH/2024/100", Title: "State v. Danjuma", Category: "criminal", Status: "hearing", FiledAt: filedAt},
		{ID: "KDH/2024/101", Title: "Musa v. Ibrahim", Category: "civil", Status: "filed", FiledAt: filedAt},
	}
}

func TestCaseListRoundTrip(t *testing.T) {
	m := newTestMirror(t, "")
	require.NoError(t, m.PutCases(sampleCases()))

	got, ok := m.Cases()
	require.True(t, ok)
	if diff := cmp.Diff(sampleCases(), got); diff != "" {
		t.Errorf("mirrored cases differ (-want +got):\n%s", diff)
	}
}

func TestAbsentKeyReadsAsNoData(t *testing.T) {
	m := newTestMirror(t, "")
	_, ok := m.Cases()
	assert.False(t, ok)
	_, ok = m.Session()
	assert.False(t, ok)
	assert.Empty(t, m.AccessToken())
	assert.Empty(t, m.LastRoute())
}

func TestCorruptValueReadsAsNoData(t *testing.T) {
	m := newTestMirror(t, "")
	require.NoError(t, m.putRaw(KeyCases, "{not valid json"))

	_, ok := m.Cases()
	assert.False(t, ok, "corruption must read as absent, not as an error")
}

func TestTokensEncryptedAtRest(t *testing.T) {
	m := newTestMirror(t, testAESKey)
	require.NoError(t, m.PutAccessToken("jwt-access"))
	require.NoError(t, m.PutRefreshToken("jwt-refresh"))

	raw, ok := m.getRaw(KeyToken)
	require.True(t, ok)
	assert.NotEqual(t, "jwt-access", raw, "token must not be stored in the clear")

	assert.Equal(t, "jwt-access", m.AccessToken())
	assert.Equal(t, "jwt-refresh", m.RefreshToken())
}

func TestUndecryptableTokenReadsAsAbsent(t *testing.T) {
	m := newTestMirror(t, testAESKey)
	require.NoError(t, m.putRaw(KeyToken, "garbage"))
	assert.Empty(t, m.AccessToken())
}

func TestSessionSurvivesWithoutRefreshToken(t *testing.T) {
	m := newTestMirror(t, testAESKey)
	user := &session.User{ID: "U-9", Name: "Justice A. Bello", Role: "judge"}
	require.NoError(t, m.PutSession(user))
	require.NoError(t, m.PutAccessToken("jwt-access"))

	got, ok := m.Session()
	require.True(t, ok)
	assert.Equal(t, user, got)
	assert.Equal(t, "jwt-access", m.AccessToken())
	assert.Empty(t, m.RefreshToken(), "a missing refresh token is absence, not an error")
}

func TestClearSessionKeepsCases(t *testing.T) {
	m := newTestMirror(t, testAESKey)
	require.NoError(t, m.PutCases(sampleCases()))
	require.NoError(t, m.PutSession(&session.User{ID: "U-9"}))
	require.NoError(t, m.PutAccessToken("jwt-access"))
	require.NoError(t, m.PutLastRoute("/cases/KDH/2024/100"))

	m.ClearSession()

	_, ok := m.Session()
	assert.False(t, ok)
	assert.Empty(t, m.AccessToken())
	assert.Empty(t, m.LastRoute())

	cases, ok := m.Cases()
	require.True(t, ok, "case data is not credentials and survives logout")
	assert.Len(t, cases, 2)
}

func TestMergeCasesPrefersServerAndKeepsLocalOnly(t *testing.T) {
	local := sampleCases()
	local = append(local, court.Case{ID: "TEMP-1700000000000", Title: "Pending creation", Status: "filed"})

	server := []court.Case{
		{ID: "KDH/2024/100", Title: "State v. Danjuma", Status: "adjourned"},
		{ID: "KDH/2024/102", Title: "New from server", Status: "filed"},
	}

	merged := MergeCases(local, server)

	byID := make(map[string]court.Case, len(merged))
	for _, c := range merged {
		byID[c.ID] = c
	}

	require.Len(t, merged, 4)
	assert.Equal(t, "adjourned", byID["KDH/2024/100"].Status, "server wins for shared ids")
	assert.Contains(t, byID, "KDH/2024/101", "local-only entries survive")
	assert.Contains(t, byID, "TEMP-1700000000000", "unsynced optimistic creations survive")
	assert.Contains(t, byID, "KDH/2024/102")
}
