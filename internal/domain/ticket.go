package domain

import (
	"time"

	"github.com/aarondl/null/v8"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "Open"
	TicketStatusPending TicketStatus = "Pending"
	TicketStatusClosed  TicketStatus = "Closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusPending, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for departmental support requests.
//
// ClosedAt is stamped once, on the transition into Closed, and is not cleared
// when the ticket is reopened.
type Ticket struct {
	ID                   string
	Title                string
	Description          string
	DescriptionImageURL  null.String
	Status               TicketStatus
	CreatedBy            string
	AssignedDepartmentID string
	Deadline             time.Time
	CustomerName         null.String
	CustomerMobile       null.String
	PurchasedItem        null.String
	OverdueNotifiedAt    null.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ClosedAt             null.Time
}

// IsOverdue reports whether an unclosed ticket has passed its deadline at now.
func (t *Ticket) IsOverdue(now time.Time) bool {
	return t.Status != TicketStatusClosed && t.Deadline.Before(now)
}

// TicketDetails is a ticket joined with the display names used by
// notifications and API responses.
type TicketDetails struct {
	Ticket
	CreatorName    string
	CreatorEmail   string
	DepartmentName string
}
