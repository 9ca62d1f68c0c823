package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"sneakmarket/internal/domain/identity"
)

const principalContextKey = "sneakmarket.principal"

type principal struct {
	ID          string
	DisplayName string
	Email       string
}

// AuthMiddleware resolves bearer tokens through the external identity
// provider and injects the principal. It never authenticates by itself.
type AuthMiddleware struct {
	Provider identity.Provider
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Provider == nil {
		c.Next()
		return
	}
	user, err := m.Provider.Resolve(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, identity.ErrUnknownToken) && m.Logger != nil {
			m.Logger.Debug("token resolution failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	})
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireUser(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
