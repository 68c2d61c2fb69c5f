package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"seatwatch-backend/internal/seatwatch"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const contextKeyActor = "actor"

// requireToken checks the bearer token when one is configured.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		provided, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			fail(c, http.StatusUnauthorized, ErrTokenInvalid, "missing or invalid access token")
			return
		}
		c.Next()
	}
}

// actorFromHeaders identifies the caller. The trusted frontend in front of
// the API forwards the chat user's id and roles in the tenant.
func actorFromHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := seatwatch.Actor{ID: strings.TrimSpace(c.GetHeader("X-Actor-Id"))}
		for _, role := range strings.Split(c.GetHeader("X-Actor-Roles"), ",") {
			switch strings.ToLower(strings.TrimSpace(role)) {
			case "owner":
				actor.Owner = true
			case "admin":
				actor.Admin = true
			}
		}
		c.Set(contextKeyActor, actor)
		c.Next()
	}
}

func actor(c *gin.Context) seatwatch.Actor {
	value, _ := c.Get(contextKeyActor)
	a, _ := value.(seatwatch.Actor)
	return a
}

func logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"request_id", c.GetString(contextKeyRequestID),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "err", c.Errors.String())
			slog.ErrorContext(c.Request.Context(), "api request failed", attrs...)
			return
		}
		slog.DebugContext(c.Request.Context(), "api request", attrs...)
	}
}
