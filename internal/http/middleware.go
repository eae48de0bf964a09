package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
)

const (
	ctxUsername  = "username"
	ctxToken     = "token"
	ctxRequestID = "request_id"

	requestIDHeader = "X-Request-ID"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Idempotency-Key")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Idempotency-Hit")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// authMiddleware resolves the bearer token into the current session.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortWithError(c, http.StatusUnauthorized, kindUnauthorized, "missing bearer token")
			return
		}
		token = strings.TrimSpace(token)

		sess, err := h.sessions.Resolve(token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, kindUnauthorized, "session is not active")
			return
		}

		c.Set(ctxUsername, sess.Username)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// rateLimit throttles by client IP. A nil limiter disables throttling.
func (h *Handler) rateLimit(instance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if instance == nil {
			c.Next()
			return
		}

		ip := c.ClientIP()
		lctx, err := instance.Get(c.Request.Context(), ip)
		if err != nil {
			h.logger.WithError(err).WithField("client_ip", ip).Error("rate limit lookup failed")
			abortWithError(c, http.StatusInternalServerError, kindInternal, "internal server error")
			return
		}

		if lctx.Reached {
			h.logger.WithFields(logrus.Fields{
				"client_ip": ip,
				"limit":     lctx.Limit,
			}).Warn("rate limit exceeded")
			abortWithError(c, http.StatusTooManyRequests, kindRateLimited, "too many requests, try again later")
			return
		}

		c.Next()
	}
}

func currentUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}
