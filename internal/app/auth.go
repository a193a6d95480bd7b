package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"availability-scheduler/internal/config"
)

const authAgentKey = "auth_agent_id"

// AuthMiddleware accepts a bearer token that is either an HMAC-signed JWT or
// one of the configured static tokens. A JWT carrying an agent_id claim is
// limited to that agent's routes.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	static := make(map[string]bool, len(cfg.StaticTokens))
	for _, t := range cfg.StaticTokens {
		static[strings.TrimSpace(t)] = true
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		if len(secret) > 0 {
			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return secret, nil
			}, jwt.WithLeeway(5*time.Second))
			if err == nil {
				if agentID, ok := agentClaim(claims); ok {
					c.Set(authAgentKey, agentID)
				}
				c.Next()
				return
			}
		}

		if static[tokenStr] {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func agentClaim(claims jwt.MapClaims) (int64, bool) {
	switch v := claims["agent_id"].(type) {
	case float64:
		return int64(v), v > 0
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// RequireAgent rejects a token scoped to another agent than the :id path
// parameter. Unscoped tokens pass.
func RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped, ok := c.Get(authAgentKey)
		if !ok {
			c.Next()
			return
		}
		if c.Param("id") != fmt.Sprint(scoped) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not belong to this agent"})
			return
		}
		c.Next()
	}
}
