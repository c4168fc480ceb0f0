package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/careflow-api/internal/handler"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
)

const (
	ContextClaims = "claims"
	ContextToken  = "token"

	// QueryAccessToken lets browsers authenticate websocket upgrades, which cannot set headers
	QueryAccessToken = "access_token"
)

// TokenVerifier validates a raw session token
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores its claims in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			handler.RespondError(c, apperrors.Unauthorized("missing or malformed authorization header", nil))
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			handler.RespondError(c, err)
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// RequireRole rejects callers whose role claim is not one of roles. Wrong role is a 401.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			handler.RespondError(c, apperrors.Unauthorized("", nil))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		handler.RespondError(c, apperrors.Unauthorized("access denied for role "+actor.Role.String(), nil))
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so only upgrade requests may carry the token in the query.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if !websocket.IsWebSocketUpgrade(c.Request) {
			return "", false
		}
		token := c.Query(QueryAccessToken)
		return token, token != ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// ActorFrom converts the verified claims into the caller identity used by services
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{
		ID:        claims.UserID,
		Email:     claims.Email,
		Role:      model.Role(claims.Role),
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, true
}

// CurrentActor is ActorFrom for handlers behind Authenticate; it answers 401 when there is no caller
func CurrentActor(c *gin.Context) (model.Actor, bool) {
	actor, ok := ActorFrom(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized("", nil))
	}
	return actor, ok
}
