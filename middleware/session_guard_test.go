package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key")

type stubRevocationCache struct {
	revoked map[string]bool
	err     error
}

func (c *stubRevocationCache) MarkSessionRevoked(_ context.Context, sessionID string, _ time.Duration) error {
	c.revoked[sessionID] = true
	return nil
}

func (c *stubRevocationCache) IsSessionRevoked(_ context.Context, sessionID string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.revoked[sessionID], nil
}

func (c *stubRevocationCache) Close() error { return nil }

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func guardRequest(t *testing.T, cache *stubRevocationCache, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(SessionGuard(testSecret, cache))
	e.GET("/protected", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("session_id").(string))
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSessionGuardAcceptsValidToken(t *testing.T) {
	cache := &stubRevocationCache{revoked: map[string]bool{}}
	token := signToken(t, sessionClaims{
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	rec := guardRequest(t, cache, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", rec.Body.String())
}

func TestSessionGuardRejectsMissingAndMalformedTokens(t *testing.T) {
	cache := &stubRevocationCache{revoked: map[string]bool{}}

	assert.Equal(t, http.StatusUnauthorized, guardRequest(t, cache, "").Code)
	assert.Equal(t, http.StatusUnauthorized, guardRequest(t, cache, "Bearer not-a-jwt").Code)
	assert.Equal(t, http.StatusUnauthorized, guardRequest(t, cache, "Basic dXNlcjpwYXNz").Code)
}

func TestSessionGuardRejectsWrongSignature(t *testing.T) {
	cache := &stubRevocationCache{revoked: map[string]bool{}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{SessionID: "s1"}).
		SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, guardRequest(t, cache, "Bearer "+token).Code)
}

func TestSessionGuardRejectsRevokedSession(t *testing.T) {
	cache := &stubRevocationCache{revoked: map[string]bool{"s1": true}}
	token := signToken(t, sessionClaims{
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	assert.Equal(t, http.StatusUnauthorized, guardRequest(t, cache, "Bearer "+token).Code)
}

func TestSessionGuardFallsBackToJTI(t *testing.T) {
	cache := &stubRevocationCache{revoked: map[string]bool{"jti-1": true}}
	token := signToken(t, jwt.RegisteredClaims{
		ID:        "jti-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	assert.Equal(t, http.StatusUnauthorized, guardRequest(t, cache, "Bearer "+token).Code)
}

func TestSessionGuardFailsOpenOnCacheError(t *testing.T) {
	cache := &stubRevocationCache{revoked: map[string]bool{}, err: errors.New("redis down")}
	token := signToken(t, sessionClaims{
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	// A cache outage must not lock administrators out; the persistent store
	// still invalidates revoked tokens.
	assert.Equal(t, http.StatusOK, guardRequest(t, cache, "Bearer "+token).Code)
}
