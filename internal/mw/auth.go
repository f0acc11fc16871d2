package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"laundryonline/internal/apperr"
	"laundryonline/internal/auth"
)

const identityContextKey = "identity"

// Verifier resolves bearer tokens. *auth.Service satisfies it.
type Verifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// IdentityFromContext returns the identity set by RequireAuth.
func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	ident, ok := v.(auth.Identity)
	return ident, ok && ident.UID != ""
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token", "kind": apperr.KindAuthFailure})
			return
		}

		ident, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			kind := apperr.KindOf(err)
			if kind == apperr.KindNetworkFailure {
				status = http.StatusServiceUnavailable
			} else {
				kind = apperr.KindAuthFailure
			}
			c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "kind": kind})
			return
		}

		c.Set(identityContextKey, ident)
		c.Next()
	}
}
