package dto

import (
	"time"

	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// LoginRequest exchanges the operator key for a token.
type LoginRequest struct {
	Key  string              `json:"key" validate:"required"`
	Role domain.OperatorRole `json:"role"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string              `json:"token"`
	Role      domain.OperatorRole `json:"role"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// SchedulerInfo describes a registered scheduler.
type SchedulerInfo struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`
}
