package libsql

import (
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the expiry claim of a libsql auth token without
// verifying its signature. ok is false when the token carries no expiry.
func TokenExpiry(token string) (expiresAt time.Time, ok bool, err error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false, nil
	}
	return claims.ExpiresAt.Time, true, nil
}

// logAuthToken reports what can be learned about a token locally. The
// server remains the only authority on whether it is accepted.
func logAuthToken(logger *slog.Logger, source string, token string) {
	expiresAt, ok, err := TokenExpiry(token)
	switch {
	case err != nil:
		logger.Warn("Auth token is not a readable JWT", "source", source, "error", err)
	case !ok:
		logger.Debug("Auth token has no expiry", "source", source)
	case expiresAt.Before(time.Now()):
		logger.Warn("Auth token has expired", "source", source, "expired_at", expiresAt)
	default:
		logger.Debug("Auth token expiry", "source", source, "expires_at", expiresAt)
	}
}
