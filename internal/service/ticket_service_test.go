package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

type fixture struct {
	*harness
	service *domain.Department
	parts   *domain.Department
	empty   *domain.Department
	creator *domain.User
	admin   *domain.User
	other   *domain.User
}

func newFixture() *fixture {
	h := newHarness()
	f := &fixture{harness: h}
	f.service = h.store.addDepartment("Service")
	f.parts = h.store.addDepartment("Parts")
	f.empty = h.store.addDepartment("Archive")
	f.creator = h.store.addUser("creator", f.service, false)
	h.store.addUser("mechanic", f.service, false)
	f.admin = h.store.addUser("admin", nil, true)
	f.other = h.store.addUser("parts-clerk", f.parts, false)
	return f
}

func (f *fixture) create(t *testing.T) *domain.TicketDetails {
	t.Helper()
	res, err := f.tickets.CreateTicket(context.Background(), f.creator.Actor(), TicketCreateInput{
		Title:                "Brake noise",
		Description:          "Squeal on cold start",
		AssignedDepartmentID: f.service.ID,
	})
	require.NoError(t, err)
	return res.Ticket
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func TestCreateTicket_NotifiesDepartmentAndRecordsCreation(t *testing.T) {
	f := newFixture()
	f.sendOK()

	res, err := f.tickets.CreateTicket(context.Background(), f.creator.Actor(), TicketCreateInput{
		Title:                "  Brake noise ",
		Description:          "Squeal on cold start",
		AssignedDepartmentID: f.service.ID,
		CustomerName:         null.StringFrom("  "),
	})
	require.NoError(t, err)
	require.False(t, res.Effects.Failed())

	ticket := res.Ticket
	assert.Equal(t, "Brake noise", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, f.creator.ID, ticket.CreatedBy)
	assert.Equal(t, "Service", ticket.DepartmentName)
	assert.False(t, ticket.ClosedAt.Valid)
	assert.False(t, ticket.CustomerName.Valid)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), ticket.Deadline)

	created := f.store.historyOf(ticket.ID, domain.ChangeCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "Ticket created and assigned to Service", created[0].Description.String)

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"creator@example.com", "mechanic@example.com"}, sent[0].To)
	assert.Equal(t, "Ticket Assigned: Brake noise", sent[0].Subject)

	require.Len(t, f.store.emailLogs, 1)
	assert.True(t, f.store.emailLogs[0].Success)
	assert.Equal(t, domain.NotificationAssigned, f.store.emailLogs[0].Kind)

	emails := f.store.historyOf(ticket.ID, domain.ChangeEmailSent)
	require.Len(t, emails, 1)
	assert.Equal(t, "Ticket assigned email sent to 2 recipient(s)", emails[0].Description.String)
}

func TestCreateTicket_ExplicitDeadline(t *testing.T) {
	f := newFixture()
	f.sendOK()
	deadline := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	res, err := f.tickets.CreateTicket(context.Background(), f.creator.Actor(), TicketCreateInput{
		Title:                "Oil leak",
		Description:          "Drip under engine",
		AssignedDepartmentID: f.service.ID,
		Deadline:             &deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, deadline, res.Ticket.Deadline)
}

func TestCreateTicket_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.tickets.CreateTicket(context.Background(), f.creator.Actor(), TicketCreateInput{Title: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeMissingField))
	details := apperrors.ToDomainError(err).Details
	assert.Equal(t, []string{"description", "assigned_department_id"}, details["fields"])

	_, err = f.tickets.CreateTicket(context.Background(), f.creator.Actor(), TicketCreateInput{
		Title:                "x",
		Description:          "y",
		AssignedDepartmentID: "no-such-department",
	})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidReference))
	assert.Zero(t, f.store.writes)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCreateTicket_EmptyDepartmentSkipsNotification(t *testing.T) {
	f := newFixture()

	res, err := f.tickets.CreateTicket(context.Background(), f.admin.Actor(), TicketCreateInput{
		Title:                "Inventory",
		Description:          "Count parts",
		AssignedDepartmentID: f.empty.ID,
	})
	require.NoError(t, err)
	require.Len(t, res.Effects.Notifications, 1)
	assert.True(t, res.Effects.Notifications[0].Skipped)
	assert.Empty(t, f.store.emailLogs)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestUpdateTicket_CloseThenReopen(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)
	f.clock.Advance(2 * time.Hour)
	closedAt := f.clock.Now()

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.other.Actor(), TicketChanges{
		Status: statusPtr(domain.TicketStatusClosed),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, res.Ticket.Status)
	require.True(t, res.Ticket.ClosedAt.Valid)
	assert.Equal(t, closedAt, res.Ticket.ClosedAt.Time)

	changes := f.store.historyOf(ticket.ID, domain.ChangeStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, "Open", changes[0].OldValue.String)
	assert.Equal(t, "Closed", changes[0].NewValue.String)
	assert.Equal(t, "Status changed from Open to Closed", changes[0].Description.String)

	require.Len(t, res.Effects.Notifications, 1)
	assert.Equal(t, domain.NotificationClosed, res.Effects.Notifications[0].Kind)
	sent := f.sender.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{"creator@example.com"}, sent[1].To)
	assert.Equal(t, "Ticket Closed: Brake noise", sent[1].Subject)

	f.clock.Advance(time.Hour)
	res, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.other.Actor(), TicketChanges{
		Status: statusPtr(domain.TicketStatusOpen),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, res.Ticket.Status)
	assert.Equal(t, closedAt, res.Ticket.ClosedAt.Time, "closed_at is kept on reopen")
	assert.Empty(t, res.Effects.Notifications)
	assert.Len(t, f.store.historyOf(ticket.ID, domain.ChangeStatusChanged), 2)
	assert.Len(t, f.sender.sent(), 2)
}

func TestUpdateTicket_ClosingClosedTicketDoesNotRenotify(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{Status: statusPtr(domain.TicketStatusClosed)})
	require.NoError(t, err)
	first := f.store.ticket(ticket.ID).ClosedAt.Time

	f.clock.Advance(time.Minute)
	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{Status: statusPtr(domain.TicketStatusClosed)})
	require.NoError(t, err)
	assert.Empty(t, res.Effects.Notifications)
	assert.Equal(t, first, f.store.ticket(ticket.ID).ClosedAt.Time)
	assert.Len(t, f.store.historyOf(ticket.ID, domain.ChangeStatusChanged), 1)
}

func TestUpdateTicket_Reassign(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{
		AssignedDepartmentID: &f.parts.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, f.parts.ID, res.Ticket.AssignedDepartmentID)
	assert.Equal(t, "Parts", res.Ticket.DepartmentName)

	entries := f.store.historyOf(ticket.ID, domain.ChangeReassigned)
	require.Len(t, entries, 1)
	assert.Equal(t, "Service", entries[0].OldValue.String)
	assert.Equal(t, "Parts", entries[0].NewValue.String)
	assert.Equal(t, "assigned_department_id", entries[0].FieldName.String)
	assert.Equal(t, "Ticket reassigned from Service to Parts", entries[0].Description.String)

	require.Len(t, res.Effects.Notifications, 1)
	assert.True(t, res.Effects.Notifications[0].Delivered())
	sent := f.sender.sent()
	assert.Equal(t, []string{"parts-clerk@example.com"}, sent[len(sent)-1].To)
	assert.Equal(t, "Ticket Reassigned: Brake noise", sent[len(sent)-1].Subject)
}

func TestUpdateTicket_ReassignToEmptyDepartmentSkips(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{
		AssignedDepartmentID: &f.empty.ID,
	})
	require.NoError(t, err)
	require.Len(t, res.Effects.Notifications, 1)
	assert.True(t, res.Effects.Notifications[0].Skipped)
	assert.Len(t, f.store.historyOf(ticket.ID, domain.ChangeReassigned), 1)
	assert.Len(t, f.sender.sent(), 1)
}

func TestUpdateTicket_SameDepartmentIsNotReassignment(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{
		AssignedDepartmentID: &f.service.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Effects.Notifications)
	assert.Empty(t, f.store.historyOf(ticket.ID, domain.ChangeReassigned))
}

func TestUpdateTicket_InvalidDepartmentChangesNothing(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)
	writes := f.store.writes
	historyBefore := len(f.store.historyOf(ticket.ID, ""))

	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{
		Title:                strPtr("Changed"),
		AssignedDepartmentID: strPtr("missing"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidReference))
	assert.Equal(t, writes, f.store.writes)
	assert.Equal(t, "Brake noise", f.store.ticket(ticket.ID).Title)
	assert.Len(t, f.store.historyOf(ticket.ID, ""), historyBefore)
	assert.Len(t, f.sender.sent(), 1)
}

func TestUpdateTicket_DeadlinePermission(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)
	later := null.TimeFrom(ticket.Deadline.Add(48 * time.Hour))

	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.other.Actor(), TicketChanges{Deadline: &later})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	assert.Equal(t, ticket.Deadline, f.store.ticket(ticket.ID).Deadline)

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{Deadline: &later})
	require.NoError(t, err)
	assert.Equal(t, later.Time, res.Ticket.Deadline)

	entries := f.store.historyOf(ticket.ID, domain.ChangeFieldUpdated)
	require.Len(t, entries, 1)
	assert.Equal(t, "deadline", entries[0].FieldName.String)
	assert.Equal(t, "2024-05-02T10:00:00Z", entries[0].OldValue.String)
	assert.Equal(t, "2024-05-04T10:00:00Z", entries[0].NewValue.String)
	assert.Equal(t, "Deadline modified", entries[0].Description.String)

	earlier := null.TimeFrom(ticket.Deadline.Add(-time.Hour))
	_, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{Deadline: &earlier})
	require.NoError(t, err)
}

func TestUpdateTicket_DescriptionRequiresAdmin(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{Description: strPtr("new")})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	image := null.StringFrom("https://img.example.com/1.png")
	_, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{DescriptionImageURL: &image})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{Description: strPtr("new"), DescriptionImageURL: &image})
	require.NoError(t, err)

	entries := f.store.historyOf(ticket.ID, domain.ChangeFieldUpdated)
	require.Len(t, entries, 2)
	assert.Equal(t, "description", entries[0].FieldName.String)
	assert.Equal(t, "description_image_url", entries[1].FieldName.String)
	assert.Equal(t, "Description image updated", entries[1].Description.String)
}

func TestUpdateTicket_NoChangesAndValidation(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{})
	assert.True(t, apperrors.Is(err, apperrors.CodeNoChanges))

	_, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{Status: statusPtr("Resolved")})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{Title: strPtr("  ")})
	assert.True(t, apperrors.Is(err, apperrors.CodeMissingField))

	_, err = f.tickets.UpdateTicket(context.Background(), "missing", f.creator.Actor(), TicketChanges{Title: strPtr("x")})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestUpdateTicket_UnchangedValuesRecordNoHistory(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{
		Title:  strPtr("Brake noise"),
		Status: statusPtr(domain.TicketStatusOpen),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Effects.History)
}

func TestUpdateTicket_CustomerFields(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	name := null.StringFrom("Ada")
	item := null.StringFrom("Sedan")
	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{
		CustomerName:  &name,
		PurchasedItem: &item,
	})
	require.NoError(t, err)

	entries := f.store.historyOf(ticket.ID, domain.ChangeFieldUpdated)
	require.Len(t, entries, 2)
	assert.Equal(t, "customer_name", entries[0].FieldName.String)
	assert.False(t, entries[0].OldValue.Valid)
	assert.Equal(t, "Ada", entries[0].NewValue.String)
	assert.Equal(t, "car_bought", entries[1].FieldName.String)
}

func TestUpdateTicket_SideEffectFailuresDoNotFailUpdate(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)

	f.store.historyErr = errors.New("history table unavailable")
	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{Title: strPtr("Brake squeal")})
	require.NoError(t, err)
	assert.Equal(t, "Brake squeal", f.store.ticket(ticket.ID).Title)
	require.Len(t, res.Effects.History, 1)
	assert.Error(t, res.Effects.History[0].Err)
	assert.True(t, res.Effects.Failed())
}

func TestUpdateTicket_DeliveryFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	ticket := f.create(t)

	res, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{
		Status: statusPtr(domain.TicketStatusClosed),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, f.store.ticket(ticket.ID).Status)
	require.Len(t, res.Effects.Notifications, 1)
	assert.EqualError(t, res.Effects.Notifications[0].Err, "smtp down")

	last := f.store.emailLogs[len(f.store.emailLogs)-1]
	assert.False(t, last.Success)
	assert.Equal(t, "smtp down", last.ErrorMessage.String)
	assert.Equal(t, f.admin.ID, last.SentBy.String)
	assert.Empty(t, f.store.historyOf(ticket.ID, domain.ChangeEmailSent))
}

func TestUpdateTicket_OverdueMarkerClearedOnExtensionAndClose(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)
	f.store.tickets[ticket.ID].OverdueNotifiedAt = null.TimeFrom(f.clock.Now())

	later := null.TimeFrom(ticket.Deadline.Add(time.Hour))
	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{Deadline: &later})
	require.NoError(t, err)
	assert.False(t, f.store.ticket(ticket.ID).OverdueNotifiedAt.Valid)

	f.store.tickets[ticket.ID].OverdueNotifiedAt = null.TimeFrom(f.clock.Now())
	earlier := null.TimeFrom(ticket.Deadline.Add(-time.Hour))
	_, err = f.tickets.UpdateTicket(context.Background(), ticket.ID, f.admin.Actor(), TicketChanges{Deadline: &earlier})
	require.NoError(t, err)
	assert.True(t, f.store.ticket(ticket.ID).OverdueNotifiedAt.Valid)
}

func TestListTickets_Groups(t *testing.T) {
	f := newFixture()
	f.sendOK()
	open := f.create(t)
	closed := f.create(t)
	_, err := f.tickets.UpdateTicket(context.Background(), closed.ID, f.admin.Actor(), TicketChanges{Status: statusPtr(domain.TicketStatusClosed)})
	require.NoError(t, err)

	list, err := f.tickets.ListTickets(context.Background(), TicketListFilter{Group: "open"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID, list[0].ID)

	list, err = f.tickets.ListTickets(context.Background(), TicketListFilter{Group: "Closed"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, closed.ID, list[0].ID)

	list, err = f.tickets.ListTickets(context.Background(), TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.tickets.ListTickets(context.Background(), TicketListFilter{Group: "archived"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestListMyDepartment(t *testing.T) {
	f := newFixture()
	f.sendOK()
	f.create(t)

	list, err := f.tickets.ListMyDepartment(context.Background(), f.creator.Actor(), TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.tickets.ListMyDepartment(context.Background(), f.other.Actor(), TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.tickets.ListMyDepartment(context.Background(), f.admin.Actor(), TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture()
	f.sendOK()
	ticket := f.create(t)
	_, err := f.tickets.UpdateTicket(context.Background(), ticket.ID, f.creator.Actor(), TicketChanges{Title: strPtr("Brake squeal")})
	require.NoError(t, err)

	views, err := f.tickets.History(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotEmpty(t, views)
	assert.Equal(t, domain.ChangeFieldUpdated, views[0].ChangeKind)
	assert.Equal(t, "creator", views[0].ChangerName)

	_, err = f.tickets.History(context.Background(), "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}
