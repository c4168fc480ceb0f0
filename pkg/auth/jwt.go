package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Identity is the subset of a user that ends up in a token
type Identity struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	FirstName string
	LastName  string
}

// Claims carried by every session token
type Claims struct {
	UserID    uuid.UUID `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	jwt.RegisteredClaims
}

// Config for the token service
type Config struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// TokenService issues and verifies HS256 session tokens
type TokenService struct {
	secret   []byte
	expiry   time.Duration
	issuer   string
	denylist *Denylist
	now      func() time.Time
}

func NewTokenService(cfg Config, denylist *Denylist) *TokenService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:   []byte(cfg.Secret),
		expiry:   cfg.Expiry,
		issuer:   cfg.Issuer,
		denylist: denylist,
		now:      time.Now,
	}
}

// Issue signs a new token for the identity
func (s *TokenService) Issue(id Identity) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		UserID:    id.UserID,
		Email:     id.Email,
		Role:      id.Role,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates the signature, expiry and revocation state of a token
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	if s.denylist != nil && s.denylist.Contains(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke puts the token id on the denylist until the token would have expired anyway
func (s *TokenService) Revoke(claims *Claims) {
	if s.denylist == nil || claims == nil || claims.ID == "" {
		return
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	s.denylist.Add(claims.ID, ttl)
}
