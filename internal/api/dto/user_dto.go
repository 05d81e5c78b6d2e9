package dto

import (
	"encoding/json"
	"time"

	"github.com/aarondl/null/v8"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
}

// ChangePasswordRequest payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"omitempty,max=72"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// CreateUserRequest payload for admin-created accounts.
type CreateUserRequest struct {
	Name               string      `json:"name" validate:"max=255"`
	Email              string      `json:"email" validate:"omitempty,email,max=255"`
	Password           string      `json:"password" validate:"max=72"`
	IsAdmin            bool        `json:"is_admin"`
	MustChangePassword bool        `json:"must_change_password"`
	DepartmentID       null.String `json:"department_id"`
}

// Input converts the payload for the directory service.
func (r CreateUserRequest) Input() service.UserCreateInput {
	return service.UserCreateInput{
		Name:               r.Name,
		Email:              r.Email,
		Password:           r.Password,
		IsAdmin:            r.IsAdmin,
		MustChangePassword: r.MustChangePassword,
		DepartmentID:       r.DepartmentID,
	}
}

// UpdateUserRequest payload. department_id: null moves the user out of any department.
type UpdateUserRequest struct {
	Name         *string     `json:"name" validate:"omitempty,max=255"`
	Email        *string     `json:"email" validate:"omitempty,email,max=255"`
	IsActive     *bool       `json:"is_active"`
	DepartmentID null.String `json:"department_id"`
}

// ParseUserUpdate decodes an update body, tracking whether department_id was sent.
func ParseUserUpdate(body []byte) (service.UserUpdateInput, error) {
	var input service.UserUpdateInput

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return input, apperrors.NewValidationError("invalid payload", nil)
	}
	var req UpdateUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return input, apperrors.NewValidationError("invalid payload", decodeDetails(err))
	}
	if err := Validate(&req); err != nil {
		return input, err
	}

	input.Name = req.Name
	input.Email = req.Email
	input.IsActive = req.IsActive
	if _, ok := raw["department_id"]; ok {
		dept := req.DepartmentID
		input.DepartmentID = &dept
	}
	return input, nil
}

// UserResponse is the public account representation.
type UserResponse struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	IsAdmin            bool        `json:"is_admin"`
	IsActive           bool        `json:"is_active"`
	MustChangePassword bool        `json:"must_change_password"`
	DepartmentID       null.String `json:"department_id"`
	CreatedAt          time.Time   `json:"created_at"`
}

// NewUserResponse maps a user without its password hash.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		IsAdmin:            u.IsAdmin,
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		DepartmentID:       u.DepartmentID,
		CreatedAt:          u.CreatedAt.UTC(),
	}
}

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Name string `json:"name" validate:"max=100"`
}

// DepartmentResponse representation.
type DepartmentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDepartmentResponse maps a department.
func NewDepartmentResponse(d *domain.Department) DepartmentResponse {
	return DepartmentResponse{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt.UTC()}
}
