package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Ticket list groups.
const (
	TicketGroupOpen   = "open"
	TicketGroupClosed = "closed"
)

// TicketService owns ticket mutations and their audit and notification side effects.
type TicketService struct {
	tickets         repository.TicketRepository
	departments     repository.DepartmentRepository
	users           repository.UserRepository
	history         *HistoryRecorder
	notifier        Notifier
	logger          *zap.Logger
	now             func() time.Time
	defaultDeadline time.Duration
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	DepartmentRepo  repository.DepartmentRepository
	UserRepo        repository.UserRepository
	History         *HistoryRecorder
	Notifier        Notifier
	Logger          *zap.Logger
	Clock           func() time.Time
	DefaultDeadline time.Duration
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title                string
	Description          string
	DescriptionImageURL  null.String
	AssignedDepartmentID string
	Deadline             *time.Time
	CustomerName         null.String
	CustomerMobile       null.String
	PurchasedItem        null.String
}

// TicketChanges lists supplied field changes. A nil field was not supplied; a
// supplied invalid null value clears a nullable field.
type TicketChanges struct {
	Title                *string
	Description          *string
	DescriptionImageURL  *null.String
	Status               *domain.TicketStatus
	AssignedDepartmentID *string
	Deadline             *null.Time
	CustomerName         *null.String
	CustomerMobile       *null.String
	PurchasedItem        *null.String
}

// Empty reports whether no field was supplied.
func (c TicketChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.DescriptionImageURL == nil &&
		c.Status == nil && c.AssignedDepartmentID == nil && c.Deadline == nil &&
		c.CustomerName == nil && c.CustomerMobile == nil && c.PurchasedItem == nil
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Group        string
	DepartmentID *string
	Limit        int
	Offset       int
}

// CreateResult is a created ticket plus its side-effect outcomes.
type CreateResult struct {
	Ticket  *domain.TicketDetails
	Effects Effects
}

// UpdateResult is the committed ticket state plus its side-effect outcomes.
type UpdateResult struct {
	Ticket  *domain.TicketDetails
	Effects Effects
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deadline := deps.DefaultDeadline
	if deadline <= 0 {
		deadline = 24 * time.Hour
	}
	return &TicketService{
		tickets:         deps.TicketRepo,
		departments:     deps.DepartmentRepo,
		users:           deps.UserRepo,
		history:         deps.History,
		notifier:        deps.Notifier,
		logger:          logger,
		now:             clock,
		defaultDeadline: deadline,
	}
}

// CreateTicket persists a new Open ticket, notifies the assigned department
// and records the creation.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*CreateResult, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	deptID := strings.TrimSpace(input.AssignedDepartmentID)

	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if deptID == "" {
		missing = append(missing, "assigned_department_id")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}

	dept, err := s.lookupDepartment(ctx, deptID)
	if err != nil {
		return nil, err
	}

	deadline := s.now().Add(s.defaultDeadline)
	if input.Deadline != nil {
		deadline = *input.Deadline
	}

	ticket := &domain.Ticket{
		Title:                title,
		Description:          description,
		DescriptionImageURL:  blankToNull(input.DescriptionImageURL),
		Status:               domain.TicketStatusOpen,
		CreatedBy:            actor.UserID,
		AssignedDepartmentID: dept.ID,
		Deadline:             deadline,
		CustomerName:         blankToNull(input.CustomerName),
		CustomerMobile:       blankToNull(input.CustomerMobile),
		PurchasedItem:        blankToNull(input.PurchasedItem),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	details, err := s.tickets.GetDetails(ctx, ticket.ID)
	if err != nil {
		s.logger.Warn("failed to reload created ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
		details = &domain.TicketDetails{Ticket: *ticket, DepartmentName: dept.Name}
	}

	result := &CreateResult{Ticket: details}
	result.Effects.addNotification(s.notifyDepartment(ctx, domain.NotificationAssigned, dept.ID, details, &actor))
	result.Effects.addHistory(s.history.Append(ctx, domain.TicketHistory{
		TicketID:    details.ID,
		ChangedBy:   actor.UserID,
		ChangeKind:  domain.ChangeCreated,
		Description: null.StringFrom(fmt.Sprintf("Ticket created and assigned to %s", dept.Name)),
	}))
	return result, nil
}

// UpdateTicket applies changes atomically, then records one history entry per
// changed field and dispatches reassignment and closure notifications.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID string, actor domain.Actor, changes TicketChanges) (*UpdateResult, error) {
	current, err := s.tickets.GetDetails(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	if changes.Deadline != nil && !actor.IsAdmin && current.CreatedBy != actor.UserID {
		return nil, apperrors.NewForbidden("only admin or ticket creator can modify deadline")
	}
	if (changes.Description != nil || changes.DescriptionImageURL != nil) && !actor.IsAdmin {
		return nil, apperrors.NewForbidden("only admin can modify ticket description")
	}
	if err := validateChanges(changes); err != nil {
		return nil, err
	}

	var newDept *domain.Department
	if changes.AssignedDepartmentID != nil && *changes.AssignedDepartmentID != current.AssignedDepartmentID {
		if newDept, err = s.lookupDepartment(ctx, *changes.AssignedDepartmentID); err != nil {
			return nil, err
		}
	}

	if changes.Empty() {
		return nil, apperrors.NewNoChanges()
	}

	now := s.now()
	update := repository.TicketUpdate{
		Title:                changes.Title,
		Description:          changes.Description,
		DescriptionImageURL:  changes.DescriptionImageURL,
		Status:               changes.Status,
		AssignedDepartmentID: changes.AssignedDepartmentID,
		CustomerName:         changes.CustomerName,
		CustomerMobile:       changes.CustomerMobile,
		PurchasedItem:        changes.PurchasedItem,
		UpdatedAt:            now,
	}
	if changes.Deadline != nil {
		deadline := changes.Deadline.Time
		update.Deadline = &deadline
		if deadline.After(current.Deadline) {
			update.ClearOverdueMarker = true
		}
	}
	if changes.Status != nil && *changes.Status == domain.TicketStatusClosed {
		update.ClearOverdueMarker = true
	}

	updated, err := s.tickets.ApplyUpdate(ctx, ticketID, update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	details := &domain.TicketDetails{
		Ticket:         *updated,
		CreatorName:    current.CreatorName,
		CreatorEmail:   current.CreatorEmail,
		DepartmentName: current.DepartmentName,
	}
	if newDept != nil {
		details.DepartmentName = newDept.Name
	}

	result := &UpdateResult{Ticket: details}
	for _, entry := range diffHistory(current, changes, newDept, actor.UserID) {
		result.Effects.addHistory(s.history.Append(ctx, entry))
	}

	if newDept != nil {
		result.Effects.addNotification(s.notifyDepartment(ctx, domain.NotificationReassigned, newDept.ID, details, &actor))
	}
	if changes.Status != nil && *changes.Status == domain.TicketStatusClosed && current.Status != domain.TicketStatusClosed {
		result.Effects.addNotification(s.notifier.Dispatch(ctx, domain.NotificationClosed, []string{current.CreatorEmail}, details, &actor))
	}
	return result, nil
}

// GetTicket returns a ticket with display names.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.TicketDetails, error) {
	details, err := s.tickets.GetDetails(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return details, nil
}

// ListTickets returns tickets newest first.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.TicketDetails, error) {
	repoFilter := repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	switch strings.ToLower(filter.Group) {
	case "":
	case TicketGroupOpen:
		repoFilter.Statuses = []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusPending}
	case TicketGroupClosed:
		repoFilter.Statuses = []domain.TicketStatus{domain.TicketStatusClosed}
	default:
		return nil, apperrors.NewValidationError("invalid status group", map[string]any{"status": filter.Group})
	}
	return s.tickets.List(ctx, repoFilter)
}

// ListMyDepartment lists tickets assigned to the actor's department. Actors
// without a department get an empty list.
func (s *TicketService) ListMyDepartment(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.TicketDetails, error) {
	if !actor.DepartmentID.Valid {
		return []domain.TicketDetails{}, nil
	}
	dept := actor.DepartmentID.String
	filter.DepartmentID = &dept
	return s.ListTickets(ctx, filter)
}

// History returns a ticket's audit trail, most recent first.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TicketHistoryView, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return s.history.List(ctx, ticketID)
}

func (s *TicketService) lookupDepartment(ctx context.Context, id string) (*domain.Department, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewInvalidReference("department", id)
	}
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidReference("department", id)
		}
		return nil, err
	}
	return dept, nil
}

func (s *TicketService) notifyDepartment(ctx context.Context, kind domain.NotificationKind, departmentID string, ticket *domain.TicketDetails, actor *domain.Actor) DispatchOutcome {
	recipients, err := s.users.ListActiveEmails(ctx, &departmentID)
	if err != nil {
		s.logger.Error("failed to resolve department recipients",
			zap.String("ticket_id", ticket.ID),
			zap.String("department_id", departmentID),
			zap.Error(err))
		return DispatchOutcome{Kind: kind, Err: err}
	}
	return s.notifier.Dispatch(ctx, kind, recipients, ticket, actor)
}

func validateChanges(c TicketChanges) error {
	if c.Status != nil && !c.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": string(*c.Status)})
	}
	var missing []string
	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		missing = append(missing, "title")
	}
	if c.Description != nil && strings.TrimSpace(*c.Description) == "" {
		missing = append(missing, "description")
	}
	if c.Deadline != nil && !c.Deadline.Valid {
		missing = append(missing, "deadline")
	}
	if len(missing) > 0 {
		return apperrors.NewMissingField(missing...)
	}
	return nil
}

// diffHistory derives the entries for every supplied field whose value changed.
func diffHistory(current *domain.TicketDetails, c TicketChanges, newDept *domain.Department, actorID string) []domain.TicketHistory {
	var entries []domain.TicketHistory
	add := func(kind domain.ChangeKind, field string, oldValue, newValue null.String, description string) {
		entry := domain.TicketHistory{
			TicketID:   current.ID,
			ChangedBy:  actorID,
			ChangeKind: kind,
			FieldName:  null.StringFrom(field),
			OldValue:   oldValue,
			NewValue:   newValue,
		}
		if description != "" {
			entry.Description = null.StringFrom(description)
		}
		entries = append(entries, entry)
	}

	if c.Title != nil && *c.Title != current.Title {
		add(domain.ChangeFieldUpdated, "title", null.StringFrom(current.Title), null.StringFrom(*c.Title), "")
	}
	if c.Description != nil && *c.Description != current.Description {
		add(domain.ChangeFieldUpdated, "description", null.StringFrom(current.Description), null.StringFrom(*c.Description), "")
	}
	if c.DescriptionImageURL != nil && !sameNullString(*c.DescriptionImageURL, current.DescriptionImageURL) {
		add(domain.ChangeFieldUpdated, "description_image_url", current.DescriptionImageURL, *c.DescriptionImageURL, "Description image updated")
	}
	if c.Status != nil && *c.Status != current.Status {
		add(domain.ChangeStatusChanged, "status", null.StringFrom(string(current.Status)), null.StringFrom(string(*c.Status)),
			fmt.Sprintf("Status changed from %s to %s", current.Status, *c.Status))
	}
	if newDept != nil {
		add(domain.ChangeReassigned, "assigned_department_id", null.StringFrom(current.DepartmentName), null.StringFrom(newDept.Name),
			fmt.Sprintf("Ticket reassigned from %s to %s", current.DepartmentName, newDept.Name))
	}
	if c.Deadline != nil && !c.Deadline.Time.Equal(current.Deadline) {
		add(domain.ChangeFieldUpdated, "deadline", null.StringFrom(formatTimestamp(current.Deadline)), null.StringFrom(formatTimestamp(c.Deadline.Time)), "Deadline modified")
	}
	if c.CustomerName != nil && !sameNullString(*c.CustomerName, current.CustomerName) {
		add(domain.ChangeFieldUpdated, "customer_name", current.CustomerName, *c.CustomerName, "")
	}
	if c.CustomerMobile != nil && !sameNullString(*c.CustomerMobile, current.CustomerMobile) {
		add(domain.ChangeFieldUpdated, "customer_mobile", current.CustomerMobile, *c.CustomerMobile, "")
	}
	if c.PurchasedItem != nil && !sameNullString(*c.PurchasedItem, current.PurchasedItem) {
		add(domain.ChangeFieldUpdated, "car_bought", current.PurchasedItem, *c.PurchasedItem, "")
	}
	return entries
}

func sameNullString(a, b null.String) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.String == b.String
}

func blankToNull(v null.String) null.String {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return null.String{}
	}
	return null.StringFrom(strings.TrimSpace(v.String))
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
