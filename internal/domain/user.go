package domain

import (
	"time"

	"github.com/aarondl/null/v8"
)

// User is a helpdesk account. Admins may edit descriptions and any deadline.
type User struct {
	ID                 string
	Name               string
	Email              string
	PasswordHash       string
	IsAdmin            bool
	IsActive           bool
	MustChangePassword bool
	DepartmentID       null.String
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Actor returns the identity used for authorization decisions.
func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, IsAdmin: u.IsAdmin, DepartmentID: u.DepartmentID}
}
