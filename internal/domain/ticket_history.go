package domain

import (
	"time"

	"github.com/aarondl/null/v8"
)

// ChangeKind captures what a history entry records.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeStatusChanged ChangeKind = "status_changed"
	ChangeReassigned    ChangeKind = "reassigned"
	ChangeFieldUpdated  ChangeKind = "field_updated"
	ChangeEmailSent     ChangeKind = "email_sent"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          string
	TicketID    string
	ChangedBy   string
	ChangeKind  ChangeKind
	FieldName   null.String
	OldValue    null.String
	NewValue    null.String
	Description null.String
	CreatedAt   time.Time
}

// TicketHistoryView joins an entry with the acting user's display data.
type TicketHistoryView struct {
	TicketHistory
	ChangerName       string
	ChangerDepartment null.String
}
