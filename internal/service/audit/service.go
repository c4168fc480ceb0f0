package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one access to patient data
type Entry struct {
	RequestID  string
	UserID     uuid.UUID
	Role       string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	Status     int
	IPAddress  string
	UserAgent  string
	Latency    time.Duration
}

// ActionFor maps an HTTP method onto an audit action
func ActionFor(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

type Service struct {
	log *zap.Logger
}

func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log}
}

// Log writes the entry. Denied and failed requests are logged at warn.
func (s *Service) Log(_ context.Context, e Entry) {
	fields := []zap.Field{
		zap.String("request_id", e.RequestID),
		zap.String("action", e.Action),
		zap.String("resource", e.Resource),
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status", e.Status),
		zap.String("ip", e.IPAddress),
		zap.String("user_agent", e.UserAgent),
		zap.Duration("latency", e.Latency),
	}
	if e.UserID != uuid.Nil {
		fields = append(fields, zap.String("user_id", e.UserID.String()), zap.String("role", e.Role))
	}
	if e.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", e.ResourceID))
	}

	if e.Status >= http.StatusBadRequest {
		s.log.Warn("access denied or failed", fields...)
		return
	}
	s.log.Info("access", fields...)
}

// Sync flushes buffered entries
func (s *Service) Sync() error {
	return s.log.Sync()
}
