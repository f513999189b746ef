package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/revoker/cache"
)

// sessionClaims is the subset of bearer token claims the guard cares about.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionGuard authenticates admin API requests with an HMAC-signed bearer
// token and rejects any whose session has been flagged in the revocation
// cache. The cache is the fast path; the persistent store remains
// authoritative for tokens older than the flag TTL.
func SessionGuard(secret []byte, revocations cache.RevocationCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := &sessionClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}

			sessionID := claims.SessionID
			if sessionID == "" {
				sessionID = claims.ID // fall back to jti
			}
			if sessionID != "" && revocations != nil {
				revoked, err := revocations.IsSessionRevoked(c.Request().Context(), sessionID)
				if err != nil {
					// Fail open on cache trouble; the store-backed sweep still
					// invalidates the token.
					log.Warn().Err(err).Msg("revocation cache lookup failed")
				} else if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "session revoked")
				}
			}

			c.Set("session_id", sessionID)
			c.Set("user_id", claims.Subject)
			return next(c)
		}
	}
}
