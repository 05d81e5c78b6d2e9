package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AuthHandler exposes login and password endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	user, token, exp, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp, User: dto.NewUserResponse(user)}})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(principal.User)})
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), principal.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password changed"}})
}

// UsersHandler manages accounts. Every route is admin-only.
type UsersHandler struct {
	directory *service.DirectoryService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(directory *service.DirectoryService) *UsersHandler {
	return &UsersHandler{directory: directory}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.directory.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	user, err := h.directory.CreateUser(c.UserContext(), req.Input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Update handles PATCH /api/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	input, err := dto.ParseUserUpdate(c.Body())
	if err != nil {
		return err
	}
	user, err := h.directory.UpdateUser(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Deactivate handles DELETE /api/users/:id.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.directory.DeactivateUser(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
