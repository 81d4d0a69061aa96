package api

import (
	"net/http"
	"strconv"
	"time"

	"claim-service/internal/models"
	"claim-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// actorMiddleware reads the caller identity set by the upstream gateway
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		role := c.GetHeader("X-User-Role")

		switch {
		case err != nil || userID <= 0:
		case role == models.RoleAgent, role == models.RoleBusinessOwner, role == models.RoleAdmin:
			c.Set(actorKey, models.Actor{UserID: userID, Role: role})
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "X-User-ID and X-User-Role headers are required",
		})
	}
}

func actorFrom(c *gin.Context) models.Actor {
	actor, _ := c.MustGet(actorKey).(models.Actor)
	return actor
}

// bodyLimit caps the request body at n bytes
func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		util.LoggerFromContext(c.Request.Context(), logger).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
