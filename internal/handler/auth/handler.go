package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/internal/handler"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/auth"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public endpoints. Logout needs authentication and is mounted by the router.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.GetString(middleware.ContextToken)); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
