package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// DepartmentsHandler serves the department directory.
type DepartmentsHandler struct {
	directory *service.DirectoryService
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(directory *service.DirectoryService) *DepartmentsHandler {
	return &DepartmentsHandler{directory: directory}
}

// List handles GET /api/departments.
func (h *DepartmentsHandler) List(c *fiber.Ctx) error {
	depts, err := h.directory.ListDepartments(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		items = append(items, dto.NewDepartmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create handles POST /api/departments.
func (h *DepartmentsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	dept, err := h.directory.CreateDepartment(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewDepartmentResponse(dept)})
}

// Users handles GET /api/departments/:id/users.
func (h *DepartmentsHandler) Users(c *fiber.Ctx) error {
	users, err := h.directory.DepartmentUsers(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
