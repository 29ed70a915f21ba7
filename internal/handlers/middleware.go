package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	actorHeader = "X-Actor-ID"
	actorKey    = "actor_id"
)

// RequireActor reads the authenticated actor id that the upstream gateway
// puts in X-Actor-ID. Credentials are never checked here.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(actorHeader))
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Error:   "UNAUTHENTICATED",
				Message: "missing " + actorHeader + " header",
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return c.GetString(actorKey)
}

// RequestLogger logs one structured line per request
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"actor_id":   c.GetString(actorKey),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request completed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}
