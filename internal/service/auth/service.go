package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/security"
)

// errInvalidCredentials is returned for unknown email, wrong password and wrong role alike
var errInvalidCredentials = apperrors.Unauthorized("invalid credentials", nil)

type Service struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenService
	hasher   security.PasswordHasher
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(userRepo repository.UserRepository, tokens *auth.TokenService, hasher security.PasswordHasher, m *metrics.Metrics) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		hasher:   hasher,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	resp, err := s.register(ctx, req)
	s.metrics.Workflow("register", err)
	return resp, err
}

func (s *Service) register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	req.SplitName()
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	email := model.NormalizeEmail(req.Email)

	if firstName == "" || email == "" || req.Password == "" || req.Role == "" {
		return nil, apperrors.Validation("name, email, password and role are required")
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.Validation("role must be one of patient, doctor, clerk")
	}

	// Check if user already exists
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("user already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.Validation("password must be at least 8 characters")
		}
		return nil, apperrors.Internal(err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("user already exists", err)
		}
		return nil, apperrors.Internal(err)
	}

	log.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("role", string(role)).
		Msg("User registered")

	return s.respond(user)
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	resp, err := s.login(ctx, req)
	s.metrics.Workflow("login", err)
	return resp, err
}

func (s *Service) login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	if req.Email == "" || req.Password == "" || req.Role == "" {
		return nil, apperrors.Validation("email, password and role are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.hasher.CompareUnknown(req.Password)
			return nil, errInvalidCredentials
		}
		return nil, apperrors.Internal(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, errInvalidCredentials
	}

	role, err := model.ParseRole(req.Role)
	if err != nil || role != user.Role {
		return nil, errInvalidCredentials
	}

	return s.respond(user)
}

// Verify returns the claims of a valid, unrevoked token
func (s *Service) Verify(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("missing token", nil)
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token", err)
	}
	if !model.Role(claims.Role).Valid() {
		return nil, apperrors.Unauthorized("invalid or expired token", nil)
	}
	return claims, nil
}

// Logout revokes the token until it would have expired
func (s *Service) Logout(token string) error {
	claims, err := s.Verify(token)
	if err != nil {
		return err
	}
	s.tokens.Revoke(claims)
	return nil
}

func (s *Service) respond(user *model.User) (*model.AuthResponse, error) {
	token, _, err := s.tokens.Issue(auth.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &model.AuthResponse{Success: true, Token: token, User: user}, nil
}
