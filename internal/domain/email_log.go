package domain

import (
	"time"

	"github.com/aarondl/null/v8"
)

// NotificationKind names the four ticket notifications.
type NotificationKind string

const (
	NotificationAssigned   NotificationKind = "ticket_assigned"
	NotificationReassigned NotificationKind = "ticket_reassigned"
	NotificationClosed     NotificationKind = "ticket_closed"
	NotificationOverdue    NotificationKind = "ticket_overdue"
)

// EmailLog records one delivery attempt. SentBy is null for system-triggered sends.
type EmailLog struct {
	ID           string
	TicketID     null.String
	Kind         NotificationKind
	Recipients   []string
	Subject      string
	SentBy       null.String
	Success      bool
	ErrorMessage null.String
	SentAt       time.Time
}
