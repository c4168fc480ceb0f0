package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Logger attaches a request scoped logger to the context and logs every request.
// Bodies are never logged since they carry patient data.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetString(ContextRequestID)

		reqLogger := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := reqLogger.Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			event = reqLogger.Error()
			msg = "Server error"
		case status >= 400:
			event = reqLogger.Warn()
			msg = "Client error"
		}

		if actor, ok := ActorFrom(c); ok {
			event = event.Str("user_id", actor.ID.String()).Str("role", actor.Role.String())
		}

		event.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
