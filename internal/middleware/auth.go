package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/authd-api/internal/models"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
	"github.com/noah-isme/authd-api/pkg/response"
)

// ContextUserKey is the gin context key storing access token claims.
const ContextUserKey = "currentUser"

type tokenDecoder interface {
	Decode(tokenString string) *models.AccessTokenClaims
}

type revocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ExtractBearerToken parses an Authorization header value into the raw token.
// The scheme match is case-insensitive and whitespace around the token is
// tolerated; anything else is malformed.
func ExtractBearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}

// Auth protects routes with the full access token pipeline: bearer
// extraction, signature/expiry verification, and a revocation registry
// lookup on the token's jti.
func Auth(codec tokenDecoder, registry revocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "missing authorization header"))
			c.Abort()
			return
		}

		token, ok := ExtractBearerToken(header)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "invalid authorization header"))
			c.Abort()
			return
		}

		claims := codec.Decode(token)
		if claims == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token"))
			c.Abort()
			return
		}

		revoked, err := registry.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if revoked {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token has been revoked"))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present but never blocks.
func OptionalAuth(codec tokenDecoder, registry revocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims := codec.Decode(token)
		if claims == nil {
			c.Next()
			return
		}

		if revoked, err := registry.IsRevoked(c.Request.Context(), claims.ID); err != nil || revoked {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentClaims returns the verified claims stored by Auth, if any.
func CurrentClaims(c *gin.Context) (*models.AccessTokenClaims, bool) {
	v, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*models.AccessTokenClaims)
	return claims, ok
}
