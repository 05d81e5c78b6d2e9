package domain

import "github.com/aarondl/null/v8"

// Actor is the authenticated caller of a mutation.
type Actor struct {
	UserID       string
	IsAdmin      bool
	DepartmentID null.String
}
