package domain

import (
	"time"

	"github.com/aarondl/null/v8"
)

// TicketComment is a free-text note on a ticket thread, optionally with an image.
type TicketComment struct {
	ID        string
	TicketID  string
	UserID    string
	Text      string
	ImageURL  null.String
	CreatedAt time.Time
	UpdatedAt time.Time

	// joined on read
	UserName       string
	UserDepartment null.String
}
