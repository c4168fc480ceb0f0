package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	authhandler "github.com/jwalitptl/careflow-api/internal/handler/auth"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers are the route groups the router mounts
type Handlers struct {
	Auth    *authhandler.Handler
	Patient Handler
	Doctor  Handler
	Clerk   Handler
	Health  Handler
	Metrics gin.HandlerFunc
}

type RouterConfig struct {
	Mode           string
	BasePath       string
	RateLimit      rate.Limit
	RateBurst      int
	RateEnabled    bool
	CORSConfig     middleware.CORSConfig
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

type Router struct {
	engine   *gin.Engine
	config   RouterConfig
	auth     *middleware.AuthMiddleware
	audit    *middleware.AuditMiddleware
	handlers Handlers
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	audit *middleware.AuditMiddleware,
	handlers Handlers,
	m *metrics.Metrics,
	config RouterConfig,
) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.MaxBodyBytes),
		middleware.Timeout(config.RequestTimeout),
	)
	if m != nil {
		engine.Use(middleware.Metrics(m))
	}
	if config.RateEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	r := &Router{
		engine:   engine,
		config:   config,
		auth:     auth,
		audit:    audit,
		handlers: handlers,
	}
	r.setup()
	return r, nil
}

func (r *Router) setup() {
	basePath := r.config.BasePath
	if basePath == "" {
		basePath = "/"
	}
	api := r.engine.Group(basePath)

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}
	if r.handlers.Metrics != nil {
		api.GET("/metrics", r.handlers.Metrics)
	}

	authGroup := api.Group("/auth")
	r.handlers.Auth.RegisterRoutes(authGroup)
	authGroup.POST("/logout", r.auth.Authenticate(), r.handlers.Auth.Logout)

	r.mount(api, "/patient", model.RolePatient, r.handlers.Patient)
	r.mount(api, "/doctor", model.RoleDoctor, r.handlers.Doctor)
	r.mount(api, "/clerk", model.RoleClerk, r.handlers.Clerk)
}

// mount registers h behind authentication, the role gate and the audit trail
func (r *Router) mount(api *gin.RouterGroup, path string, role model.Role, h Handler) {
	if h == nil {
		return
	}
	group := api.Group(path)
	if r.audit != nil {
		group.Use(r.audit.AuditLog(role.String()))
	}
	group.Use(
		middleware.NoStore(),
		r.auth.Authenticate(),
		r.auth.RequireRole(role),
	)
	h.RegisterRoutes(group)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
