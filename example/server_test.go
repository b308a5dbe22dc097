package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aadithya-v/bifrost"
	"github.com/aadithya-v/bifrost/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestServer(t *testing.T) http.Handler {
	sessions, err := bifrost.Open(context.Background(), store.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	srv := &server{
		sessions: sessions,
		logger:   zap.NewNop(),
		ttl:      time.Hour,
	}
	return srv.routes()
}

func do(t *testing.T, h http.Handler, method, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("User-Agent", chromeUA)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func decodePayload(t *testing.T, rec *httptest.ResponseRecorder) sessionPayload {
	var p sessionPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestLoginFlow(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/login?user=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	rec = do(t, h, http.MethodGet, "/whoami", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodePayload(t, rec)
	assert.Equal(t, "alice", p.User)
	assert.Equal(t, "desktop", p.Client.Device)
	assert.Contains(t, p.Client.Browser, "Chrome")

	for want := 1; want <= 2; want++ {
		rec = do(t, h, http.MethodPost, "/visit", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decodePayload(t, rec).Visits)
	}

	rec = do(t, h, http.MethodPost, "/logout", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)

	rec = do(t, h, http.MethodGet, "/whoami", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlersRequireSession(t *testing.T) {
	h := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/whoami", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/visit", nil).Code)

	unknown := &http.Cookie{Name: cookieName, Value: "not-a-session"}
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/whoami", unknown).Code)

	// logging out without a session still clears the cookie
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/logout", nil).Code)
}

func TestHandlersRejectWrongMethod(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/login?user=alice"},
		{http.MethodPost, "/whoami"},
		{http.MethodGet, "/visit"},
		{http.MethodGet, "/logout"},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.target, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.target)
	}
}

func TestLoginRequiresUser(t *testing.T) {
	h := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/login", nil).Code)
}
