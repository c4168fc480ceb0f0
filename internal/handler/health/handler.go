package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/internal/repository"
)

const readinessTimeout = 2 * time.Second

type Handler struct {
	checks map[string]repository.Pinger
}

// NewHandler reports ready only when every named dependency answers a ping
func NewHandler(checks map[string]repository.Pinger) *Handler {
	return &Handler{checks: checks}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	components := make(gin.H, len(h.checks))
	ready := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("component", name).Msg("Readiness check failed")
			components[name] = "DOWN"
			ready = false
			continue
		}
		components[name] = "UP"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "components": components})
}
