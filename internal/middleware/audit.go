package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/internal/service/audit"
)

type AuditMiddleware struct {
	auditSvc *audit.Service
}

func NewAuditMiddleware(auditSvc *audit.Service) *AuditMiddleware {
	return &AuditMiddleware{auditSvc: auditSvc}
}

// AuditLog records who touched which resource once the handler has run
func (m *AuditMiddleware) AuditLog(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := audit.Entry{
			RequestID:  c.GetString(ContextRequestID),
			Action:     audit.ActionFor(c.Request.Method),
			Resource:   resource,
			ResourceID: c.Param("id"),
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			Status:     c.Writer.Status(),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Latency:    time.Since(start),
		}
		if actor, ok := ActorFrom(c); ok {
			entry.UserID = actor.ID
			entry.Role = actor.Role.String()
		}

		m.auditSvc.Log(c.Request.Context(), entry)
	}
}
