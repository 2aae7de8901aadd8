package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trackwise/api/internal/httpx"
	"trackwise/api/internal/models"
	"trackwise/api/internal/ratelimit"
	"trackwise/api/internal/repository"
	"trackwise/api/internal/security"
)

// PrincipalKey is where the authenticated principal lives on the gin context.
const PrincipalKey = "principal"

// PrincipalLoader resolves the user behind a verified token.
type PrincipalLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// AttemptRecorder lets token failures count toward the login rate limit's
// shared key space.
type AttemptRecorder interface {
	Record(ctx context.Context, key string) error
}

// Authenticate validates the bearer token and attaches the normalized
// principal. Every token-level failure (missing, bad, wrong type) records a
// rate-limit attempt for the client.
func Authenticate(secret string, users PrincipalLoader, attempts AttemptRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, code, message := resolvePrincipal(c, secret, users)
		if code != "" {
			tokenLevel := code != httpx.CodeInvalidTokenPayload &&
				code != httpx.CodeUserNotFound &&
				code != httpx.CodeAccountDeactivated
			if tokenLevel && attempts != nil {
				key := ratelimit.Key(c.ClientIP(), c.GetHeader("User-Agent"))
				_ = attempts.Record(c.Request.Context(), key)
			}
			httpx.Abort(c, http.StatusUnauthorized, code, message)
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// OptionalAuthenticate attaches a principal when a valid token is present and
// proceeds silently otherwise.
func OptionalAuthenticate(secret string, users PrincipalLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal, code, _ := resolvePrincipal(c, secret, users); code == "" {
			c.Set(PrincipalKey, principal)
		}
		c.Next()
	}
}

// resolvePrincipal walks the full check sequence and returns either a
// principal or the failure code and message for the envelope.
func resolvePrincipal(c *gin.Context, secret string, users PrincipalLoader) (models.Principal, string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return models.Principal{}, httpx.CodeNoToken, "authorization header missing"
	}

	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenStr == "" {
		return models.Principal{}, httpx.CodeEmptyToken, "bearer token empty"
	}

	claims, err := security.ParseToken(tokenStr, secret)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			return models.Principal{}, httpx.CodeTokenExpired, "token expired"
		case errors.Is(err, security.ErrTokenMalformed):
			return models.Principal{}, httpx.CodeInvalidTokenFormat, "token malformed"
		default:
			return models.Principal{}, httpx.CodeVerificationFailed, "token verification failed"
		}
	}

	// Refresh tokens are not access credentials.
	if claims.TokenType != "" && claims.TokenType != security.TokenTypeAccess {
		return models.Principal{}, httpx.CodeInvalidTokenType, "wrong token type"
	}

	userID := claims.UserID
	if userID == "" {
		userID, _ = security.LegacyUserID(tokenStr, secret)
	}
	if userID == "" {
		return models.Principal{}, httpx.CodeInvalidTokenPayload, "token carries no user id"
	}

	user, err := users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.Principal{}, httpx.CodeUserNotFound, "user not found"
		}
		return models.Principal{}, httpx.CodeVerificationFailed, "token verification failed"
	}
	if !user.IsActive {
		return models.Principal{}, httpx.CodeAccountDeactivated, "account deactivated"
	}

	return models.NewPrincipal(user), "", ""
}

// PrincipalFrom fetches the principal set by Authenticate.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	val, ok := c.Get(PrincipalKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}

// RequireRole gates a route on the principal's authorization tier.
func RequireRole(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			httpx.Abort(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
			return
		}
		if principal.Role != role {
			httpx.Abort(c, http.StatusForbidden, httpx.CodeInsufficientPerms, "insufficient permissions")
			return
		}
		c.Next()
	}
}

// RequireOwnership allows the route only for the user named by the path
// parameter, or for admins.
func RequireOwnership(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			httpx.Abort(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
			return
		}
		if principal.Role != models.UserRoleAdmin && c.Param(param) != principal.ID {
			httpx.Abort(c, http.StatusForbidden, httpx.CodeOwnershipRequired, "not the resource owner")
			return
		}
		c.Next()
	}
}
