package service

import (
	"context"

	"github.com/spec-kit/ticket-scheduler/internal/auth"
	"github.com/spec-kit/ticket-scheduler/internal/config"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// AuthService exchanges the operator key for a short-lived admin token.
type AuthService struct {
	tokenMgr   *auth.TokenManager
	keyHash    string
	operatorID int64
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		keyHash:    cfg.OperatorKeyHash,
		operatorID: cfg.OperatorID,
	}
}

// Login verifies the operator key and issues a token with the requested
// role. An empty role yields an admin token.
func (s *AuthService) Login(_ context.Context, key string, role domain.OperatorRole) (domain.Token, string, error) {
	if s.keyHash == "" {
		return domain.Token{}, "", apperrors.NewForbidden("operator login disabled")
	}
	if err := auth.CompareOperatorKey(s.keyHash, key); err != nil {
		return domain.Token{}, "", apperrors.NewUnauthorized("invalid credentials")
	}
	if role == "" {
		role = domain.OperatorRoleAdmin
	}
	if !role.Valid() {
		return domain.Token{}, "", apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	return s.tokenMgr.GenerateToken(s.operatorID, role)
}

// TokenManager exposes the JWT manager to middleware.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
