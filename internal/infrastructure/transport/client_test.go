package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

type fakeTokens struct {
	mu          sync.Mutex
	access      string
	refresh     string
	invalidated bool
}

func (f *fakeTokens) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeTokens) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeTokens) UpdateTokens(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if access != "" {
		f.access = access
	}
	if refresh != "" {
		f.refresh = refresh
	}
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access, f.refresh = "", ""
	f.invalidated = true
}

func newTestClient(t *testing.T, handler http.Handler, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, tokens, logging.NewTestLogger())
}

func TestGetDecodesEnvelopeData(t *testing.T) {
	tokens := &fakeTokens{access: "tok-1"}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"id": "KDH/2024/100", "title": "State v. Danjuma"},
		})
	}), tokens)

	var out struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, client.Get(context.Background(), "/cases/KDH%2F2024%2F100", &out))
	assert.Equal(t, "KDH/2024/100", out.ID)
	assert.Equal(t, "State v. Danjuma", out.Title)
}

func TestRotatedTokensAreCaptured(t *testing.T) {
	tokens := &fakeTokens{access: "old"}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"token":        "rotated",
			"refreshToken": "rotated-refresh",
		})
	}), tokens)

	require.NoError(t, client.Get(context.Background(), "/cases", nil))
	assert.Equal(t, "rotated", tokens.AccessToken())
	assert.Equal(t, "rotated-refresh", tokens.RefreshToken())
}

func TestUnsuccessfulEnvelopeIsARequestError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"code": "CASE_CLOSED", "message": "case already closed"},
		})
	}), &fakeTokens{})

	err := client.Post(context.Background(), "/cases", nil, nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "CASE_CLOSED", reqErr.Code)
	assert.Equal(t, http.StatusOK, reqErr.Status)
}

func TestUnreachableServerIsANetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, time.Second, &fakeTokens{}, logging.NewTestLogger())

	err := client.Get(context.Background(), "/cases", nil)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, netErr.StatusCode())
}

func TestMalformedBodyIsAParseError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}), &fakeTokens{})

	err := client.Get(context.Background(), "/cases", nil)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestAuthErrorTriggersOneRefreshAndRetry(t *testing.T) {
	tokens := &fakeTokens{access: "expired", refresh: "refresh-1"}

	var mu sync.Mutex
	var caseCalls, refreshCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/cases", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		caseCalls++
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   map[string]string{"code": "TOKEN_EXPIRED", "message": "expired"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{}})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "refresh-1", body["refreshToken"])
		json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "fresh", "refreshToken": "refresh-2"})
	})
	client := newTestClient(t, mux, tokens)

	var out []any
	require.NoError(t, client.Get(context.Background(), "/cases", &out))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, caseCalls, "one failed attempt plus one retry")
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, "fresh", tokens.AccessToken())
}

func TestFailedRefreshInvalidatesSession(t *testing.T) {
	tokens := &fakeTokens{access: "expired", refresh: "stale-refresh"}
	mux := http.NewServeMux()
	mux.HandleFunc("/cases", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	})
	client := newTestClient(t, mux, tokens)

	err := client.Get(context.Background(), "/cases", nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, tokens.invalidated)
}

func TestRefreshWithoutTokenInvalidatesImmediately(t *testing.T) {
	tokens := &fakeTokens{}
	client := newTestClient(t, http.NotFoundHandler(), tokens)

	err := client.Refresh(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, tokens.invalidated)
}

func TestDownloadUsesContentDispositionFilename(t *testing.T) {
	payload := []byte("%PDF-1.7 judgment")
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="judgment.pdf"`)
		w.Write(payload)
	}), &fakeTokens{access: "tok"})

	filename, data, err := client.Download(context.Background(), "/documents/D-1/content")
	require.NoError(t, err)
	assert.Equal(t, "judgment.pdf", filename)
	assert.Equal(t, payload, data)
}
