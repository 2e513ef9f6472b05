package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-scheduler/internal/api/dto"
	"github.com/spec-kit/ticket-scheduler/internal/service"
)

// AuthHandler exposes operator login.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	meta, token, err := h.authService.Login(c.UserContext(), req.Key, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, Role: meta.Role, ExpiresAt: meta.ExpiresAt},
	})
}
