package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes JWT payload.
type Claims struct {
	OperatorID int64               `json:"oid"`
	Role       domain.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for an operator.
func (tm *TokenManager) GenerateToken(operatorID int64, role domain.OperatorRole) (domain.Token, string, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		OperatorID: operatorID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(domain.SubjectTypeStaff),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return domain.Token{}, "", err
	}
	meta := domain.Token{SubjectID: operatorID, Role: role, ExpiresAt: expiresAt, IssuedAt: now}
	return meta, tokenString, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("unknown operator role")
	}
	return claims, nil
}
