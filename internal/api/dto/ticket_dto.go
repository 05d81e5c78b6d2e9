package dto

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"time"

	"github.com/aarondl/null/v8"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title                string      `json:"title" validate:"max=255"`
	Description          string      `json:"description"`
	DescriptionImageURL  null.String `json:"description_image_url" validate:"omitempty,imageref,max=2048"`
	AssignedDepartmentID string      `json:"assigned_department_id"`
	Deadline             null.Time   `json:"deadline"`
	CustomerName         null.String `json:"customer_name" validate:"omitempty,max=255"`
	CustomerMobile       null.String `json:"customer_mobile" validate:"omitempty,max=32"`
	PurchasedItem        null.String `json:"car_bought" validate:"omitempty,max=255"`
}

// Input converts the payload for the ticket service.
func (r CreateTicketRequest) Input() service.TicketCreateInput {
	input := service.TicketCreateInput{
		Title:                r.Title,
		Description:          r.Description,
		DescriptionImageURL:  r.DescriptionImageURL,
		AssignedDepartmentID: r.AssignedDepartmentID,
		CustomerName:         r.CustomerName,
		CustomerMobile:       r.CustomerMobile,
		PurchasedItem:        r.PurchasedItem,
	}
	if r.Deadline.Valid {
		deadline := r.Deadline.Time
		input.Deadline = &deadline
	}
	return input
}

// CreateTicketRequestFromForm reads a multipart create. Missing or empty fields
// are unset, and the deadline must be RFC 3339.
func CreateTicketRequestFromForm(form *multipart.Form) (CreateTicketRequest, error) {
	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	optional := func(key string) null.String {
		if v := value(key); v != "" {
			return null.StringFrom(v)
		}
		return null.String{}
	}

	req := CreateTicketRequest{
		Title:                value("title"),
		Description:          value("description"),
		DescriptionImageURL:  optional("description_image_url"),
		AssignedDepartmentID: value("assigned_department_id"),
		CustomerName:         optional("customer_name"),
		CustomerMobile:       optional("customer_mobile"),
		PurchasedItem:        optional("car_bought"),
	}
	if raw := value("deadline"); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return req, apperrors.NewValidationError("invalid payload", map[string]any{"deadline": "datetime"})
		}
		req.Deadline = null.TimeFrom(deadline)
	}
	return req, nil
}

// UpdateTicketRequest mirrors the update body. Presence of a key is tracked
// separately by ParseTicketChanges.
type UpdateTicketRequest struct {
	Title                null.String `json:"title" validate:"omitempty,max=255"`
	Description          null.String `json:"description"`
	DescriptionImageURL  null.String `json:"description_image_url" validate:"omitempty,imageref,max=2048"`
	Status               null.String `json:"status"`
	AssignedDepartmentID null.String `json:"assigned_department_id"`
	Deadline             null.Time   `json:"deadline"`
	CustomerName         null.String `json:"customer_name" validate:"omitempty,max=255"`
	CustomerMobile       null.String `json:"customer_mobile" validate:"omitempty,max=32"`
	PurchasedItem        null.String `json:"car_bought" validate:"omitempty,max=255"`
}

// ParseTicketChanges decodes an update body. A key that is present is a
// supplied change, and a JSON null is an explicit null. Null for a required
// field is passed through so the engine rejects it.
func ParseTicketChanges(body []byte) (service.TicketChanges, error) {
	var changes service.TicketChanges

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return changes, apperrors.NewValidationError("invalid payload", nil)
	}
	var req UpdateTicketRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return changes, apperrors.NewValidationError("invalid payload", decodeDetails(err))
	}
	if err := Validate(&req); err != nil {
		return changes, err
	}

	has := func(key string) bool {
		_, ok := raw[key]
		return ok
	}
	if has("title") {
		v := req.Title.String
		changes.Title = &v
	}
	if has("description") {
		v := req.Description.String
		changes.Description = &v
	}
	if has("description_image_url") {
		v := req.DescriptionImageURL
		changes.DescriptionImageURL = &v
	}
	if has("status") {
		v := domain.TicketStatus(req.Status.String)
		changes.Status = &v
	}
	if has("assigned_department_id") {
		v := req.AssignedDepartmentID.String
		changes.AssignedDepartmentID = &v
	}
	if has("deadline") {
		v := req.Deadline
		changes.Deadline = &v
	}
	if has("customer_name") {
		v := req.CustomerName
		changes.CustomerName = &v
	}
	if has("customer_mobile") {
		v := req.CustomerMobile
		changes.CustomerMobile = &v
	}
	if has("car_bought") {
		v := req.PurchasedItem
		changes.PurchasedItem = &v
	}
	return changes, nil
}

func decodeDetails(err error) map[string]any {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return map[string]any{typeErr.Field: "type"}
	}
	return nil
}

// TicketResponse is the ticket representation returned by every ticket endpoint.
type TicketResponse struct {
	ID                   string              `json:"id"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	DescriptionImageURL  null.String         `json:"description_image_url"`
	Status               domain.TicketStatus `json:"status"`
	CreatedBy            string              `json:"created_by"`
	CreatorName          string              `json:"creator_name"`
	CreatorEmail         string              `json:"creator_email"`
	AssignedDepartmentID string              `json:"assigned_department_id"`
	DepartmentName       string              `json:"department_name"`
	Deadline             time.Time           `json:"deadline"`
	Overdue              bool                `json:"overdue"`
	CustomerName         null.String         `json:"customer_name"`
	CustomerMobile       null.String         `json:"customer_mobile"`
	PurchasedItem        null.String         `json:"car_bought"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	ClosedAt             null.Time           `json:"closed_at"`
}

// NewTicketResponse maps a ticket with display names.
func NewTicketResponse(t *domain.TicketDetails, now time.Time) TicketResponse {
	return TicketResponse{
		ID:                   t.ID,
		Title:                t.Title,
		Description:          t.Description,
		DescriptionImageURL:  t.DescriptionImageURL,
		Status:               t.Status,
		CreatedBy:            t.CreatedBy,
		CreatorName:          t.CreatorName,
		CreatorEmail:         t.CreatorEmail,
		AssignedDepartmentID: t.AssignedDepartmentID,
		DepartmentName:       t.DepartmentName,
		Deadline:             t.Deadline.UTC(),
		Overdue:              t.IsOverdue(now),
		CustomerName:         t.CustomerName,
		CustomerMobile:       t.CustomerMobile,
		PurchasedItem:        t.PurchasedItem,
		CreatedAt:            t.CreatedAt.UTC(),
		UpdatedAt:            t.UpdatedAt.UTC(),
		ClosedAt:             t.ClosedAt,
	}
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID                  string            `json:"id"`
	TicketID            string            `json:"ticket_id"`
	ChangedBy           string            `json:"changed_by"`
	ChangedByName       string            `json:"changed_by_name"`
	ChangedByDepartment null.String       `json:"changed_by_department"`
	ChangeType          domain.ChangeKind `json:"change_type"`
	FieldName           null.String       `json:"field_name"`
	OldValue            null.String       `json:"old_value"`
	NewValue            null.String       `json:"new_value"`
	Description         null.String       `json:"description"`
	CreatedAt           time.Time         `json:"created_at"`
}

// NewHistoryResponse maps a history view.
func NewHistoryResponse(h *domain.TicketHistoryView) HistoryResponse {
	return HistoryResponse{
		ID:                  h.ID,
		TicketID:            h.TicketID,
		ChangedBy:           h.ChangedBy,
		ChangedByName:       h.ChangerName,
		ChangedByDepartment: h.ChangerDepartment,
		ChangeType:          h.ChangeKind,
		FieldName:           h.FieldName,
		OldValue:            h.OldValue,
		NewValue:            h.NewValue,
		Description:         h.Description,
		CreatedAt:           h.CreatedAt.UTC(),
	}
}

// EffectsResponse reports side effects of a ticket mutation.
type EffectsResponse struct {
	History       []HistoryEffect      `json:"history"`
	Notifications []NotificationEffect `json:"notifications"`
}

// HistoryEffect is the outcome of one history append.
type HistoryEffect struct {
	Kind  domain.ChangeKind `json:"kind"`
	Field string            `json:"field,omitempty"`
	Error string            `json:"error,omitempty"`
}

// NotificationEffect is the outcome of one notification decision.
type NotificationEffect struct {
	Kind       domain.NotificationKind `json:"kind"`
	Recipients int                     `json:"recipients"`
	Result     string                  `json:"result"`
	Error      string                  `json:"error,omitempty"`
}

// NewEffectsResponse flattens outcomes for clients.
func NewEffectsResponse(e service.Effects) EffectsResponse {
	resp := EffectsResponse{
		History:       make([]HistoryEffect, 0, len(e.History)),
		Notifications: make([]NotificationEffect, 0, len(e.Notifications)),
	}
	for _, h := range e.History {
		item := HistoryEffect{Kind: h.Kind, Field: h.Field}
		if h.Err != nil {
			item.Error = h.Err.Error()
		}
		resp.History = append(resp.History, item)
	}
	for _, n := range e.Notifications {
		item := NotificationEffect{Kind: n.Kind, Recipients: n.Recipients, Result: "sent"}
		switch {
		case n.Skipped:
			item.Result = "skipped"
		case n.Err != nil:
			item.Result = "failed"
			item.Error = n.Err.Error()
		}
		resp.Notifications = append(resp.Notifications, item)
	}
	return resp
}
