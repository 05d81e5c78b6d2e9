package service

import (
	"context"
	"errors"
	"strings"

	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// DirectoryService manages departments and user accounts.
type DirectoryService struct {
	departments repository.DepartmentRepository
	users       repository.UserRepository
	bcryptCost  int
}

// UserCreateInput describes a new account.
type UserCreateInput struct {
	Name               string
	Email              string
	Password           string
	IsAdmin            bool
	MustChangePassword bool
	DepartmentID       null.String
}

// UserUpdateInput lists supplied account changes.
type UserUpdateInput struct {
	Name         *string
	Email        *string
	IsActive     *bool
	DepartmentID *null.String
}

// NewDirectoryService constructs the service.
func NewDirectoryService(departments repository.DepartmentRepository, users repository.UserRepository, bcryptCost int) *DirectoryService {
	return &DirectoryService{departments: departments, users: users, bcryptCost: bcryptCost}
}

// ListDepartments returns departments by name.
func (s *DirectoryService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return s.departments.List(ctx)
}

// CreateDepartment adds a department with a unique name.
func (s *DirectoryService) CreateDepartment(ctx context.Context, name string) (*domain.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewMissingField("name")
	}
	dept := &domain.Department{Name: name}
	if err := s.departments.Create(ctx, dept); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("department already exists", map[string]any{"name": name})
		}
		return nil, err
	}
	return dept, nil
}

// DepartmentUsers lists a department's active users.
func (s *DirectoryService) DepartmentUsers(ctx context.Context, departmentID string) ([]domain.User, error) {
	if _, err := s.departments.GetByID(ctx, departmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": departmentID})
		}
		return nil, err
	}
	return s.users.ListActiveByDepartment(ctx, departmentID)
}

// ListUsers returns every account.
func (s *DirectoryService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// CreateUser adds an active account.
func (s *DirectoryService) CreateUser(ctx context.Context, input UserCreateInput) (*domain.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if input.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}
	if len(input.Password) < MinPasswordLength {
		return nil, apperrors.NewValidationError("password must be at least 6 characters", nil)
	}
	if err := s.checkDepartment(ctx, input.DepartmentID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:               name,
		Email:              email,
		PasswordHash:       hash,
		IsAdmin:            input.IsAdmin,
		IsActive:           true,
		MustChangePassword: input.MustChangePassword,
		DepartmentID:       input.DepartmentID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("email already exists", map[string]any{"email": email})
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser applies supplied account changes.
func (s *DirectoryService) UpdateUser(ctx context.Context, userID string, input UserUpdateInput) (*domain.User, error) {
	if input.Name == nil && input.Email == nil && input.IsActive == nil && input.DepartmentID == nil {
		return nil, apperrors.NewNoChanges()
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperrors.NewMissingField("name")
		}
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		if strings.TrimSpace(*input.Email) == "" {
			return nil, apperrors.NewMissingField("email")
		}
		user.Email = strings.TrimSpace(*input.Email)
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	if input.DepartmentID != nil {
		if err := s.checkDepartment(ctx, *input.DepartmentID); err != nil {
			return nil, err
		}
		user.DepartmentID = *input.DepartmentID
	}
	if err := s.users.Update(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("email already exists", map[string]any{"email": user.Email})
		}
		return nil, err
	}
	return user, nil
}

// DeactivateUser marks an account inactive. Inactive users receive no
// notifications and cannot log in.
func (s *DirectoryService) DeactivateUser(ctx context.Context, userID string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	user.IsActive = false
	return s.users.Update(ctx, user)
}

func (s *DirectoryService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, err
	}
	return user, nil
}

func (s *DirectoryService) checkDepartment(ctx context.Context, id null.String) error {
	if !id.Valid {
		return nil
	}
	if _, err := s.departments.GetByID(ctx, id.String); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewInvalidReference("department", id.String)
		}
		return err
	}
	return nil
}
