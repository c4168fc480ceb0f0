package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/audit"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier map[string]*auth.Claims

func (s stubVerifier) Verify(token string) (*auth.Claims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, apperrors.Unauthorized("invalid or expired token", nil)
}

func newAuthRouter() (*gin.Engine, uuid.UUID) {
	doctorID := uuid.New()
	verifier := stubVerifier{
		"doctor-token":  {UserID: doctorID, Role: "doctor", FirstName: "Greg", LastName: "House"},
		"patient-token": {UserID: uuid.New(), Role: "patient"},
	}
	m := NewAuthMiddleware(verifier)

	r := gin.New()
	r.GET("/doctor", m.Authenticate(), m.RequireRole(model.RoleDoctor), func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "name": actor.FullName()})
	})
	return r, doctorID
}

func doRequest(r http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r, doctorID := newAuthRouter()

	tests := []struct {
		name   string
		target string
		header map[string]string
		status int
	}{
		{"bearer header", "/doctor", map[string]string{"Authorization": "Bearer doctor-token"}, http.StatusOK},
		{"lower case scheme", "/doctor", map[string]string{"Authorization": "bearer doctor-token"}, http.StatusOK},
		{"query token on upgrade", "/doctor?access_token=doctor-token", map[string]string{"Connection": "Upgrade", "Upgrade": "websocket"}, http.StatusOK},
		{"query token without upgrade", "/doctor?access_token=doctor-token", nil, http.StatusUnauthorized},
		{"missing", "/doctor", nil, http.StatusUnauthorized},
		{"wrong scheme", "/doctor", map[string]string{"Authorization": "Basic doctor-token"}, http.StatusUnauthorized},
		{"unknown token", "/doctor", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"wrong role", "/doctor", map[string]string{"Authorization": "Bearer patient-token"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, tt.target, tt.header)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), doctorID.String())
				assert.Contains(t, w.Body.String(), "Greg House")
			} else {
				assert.Contains(t, w.Body.String(), `"status":"error"`)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := doRequest(r, http.MethodGet, "/", map[string]string{HeaderXRequestID: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "abc-123", w.Body.String())

	w = doRequest(r, http.MethodGet, "/", nil)
	_, err := uuid.Parse(w.Header().Get(HeaderXRequestID))
	assert.NoError(t, err)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := doRequest(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"internal server error"}`, w.Body.String())
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"), "other clients have their own bucket")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://app.careflow.test"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, http.MethodOptions, "/", map[string]string{"Origin": "https://app.careflow.test"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.careflow.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	w = doRequest(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.test"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Defaults(t *testing.T) {
	newRouter := func(origins []string) *gin.Engine {
		r := gin.New()
		r.Use(CORS(DefaultCORSConfig(origins)))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	origin := map[string]string{"Origin": "https://evil.test"}

	w := doRequest(newRouter(nil), http.MethodGet, "/", origin)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = doRequest(newRouter([]string{"*"}), http.MethodGet, "/", origin)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	w = doRequest(newRouter([]string{"https://app.careflow.test"}), http.MethodGet, "/", map[string]string{"Origin": "https://app.careflow.test"})
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(16))
	r.POST("/", func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string, declared bool) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if !declared {
			req.ContentLength = -1
		}
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post(`{"a":"b"}`, true))
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(`{"symptoms":"a very long text"}`, true))
	assert.Equal(t, http.StatusBadRequest, post(`{"symptoms":"a very long text"}`, false))
}

func TestSecurityAndNoStoreHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(DefaultSecurityConfig()), NoStore())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, http.MethodGet, "/", nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Equal(t, "no-store, private", w.Header().Get("Cache-Control"))
}

func TestAuditLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	am := NewAuditMiddleware(audit.NewService(zap.New(core)))
	doctorID := uuid.New()

	r := gin.New()
	verifier := stubVerifier{"doctor-token": {UserID: doctorID, Role: "doctor"}}
	m := NewAuthMiddleware(verifier)
	r.Use(RequestID())
	r.POST("/records/:id/read", am.AuditLog("patient"), m.Authenticate(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, http.MethodPost, "/records/42/read", map[string]string{"Authorization": "Bearer doctor-token"})
	require.Equal(t, http.StatusOK, w.Code)
	doRequest(r, http.MethodPost, "/records/42/read", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, doctorID.String(), first["user_id"])
	assert.Equal(t, "create", first["action"])
	assert.Equal(t, "42", first["resource_id"])
	assert.Equal(t, "/records/:id/read", first["path"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	_, hasUser := entries[1].ContextMap()["user_id"]
	assert.False(t, hasUser)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(Metrics(metrics.New("test", reg)))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(r, http.MethodGet, "/items/1", nil)
	doRequest(r, http.MethodGet, "/items/2", nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "test_http_requests_total" {
			continue
		}
		found = true
		require.Len(t, f.GetMetric(), 1, "requests are grouped by route template")
		assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
	}
	assert.True(t, found)
}
