package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/mail"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type store struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	departments map[string]*domain.Department
	users       map[string]*domain.User
	history     []domain.TicketHistory
	emailLogs   []domain.EmailLog
	seq         int

	historyErr error
	logErr     error
	listErr    error
	claimErr   error
	writes     int
}

func newStore() *store {
	return &store{
		tickets:     map[string]*domain.Ticket{},
		departments: map[string]*domain.Department{},
		users:       map[string]*domain.User{},
	}
}

func (s *store) addDepartment(name string) *domain.Department {
	d := &domain.Department{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	s.departments[d.ID] = d
	return d
}

func (s *store) addUser(name string, dept *domain.Department, admin bool) *domain.User {
	u := &domain.User{ID: uuid.NewString(), Name: name, Email: name + "@example.com", IsAdmin: admin, IsActive: true}
	if dept != nil {
		u.DepartmentID.SetValid(dept.ID)
	}
	s.users[u.ID] = u
	return u
}

func (s *store) ticket(id string) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tickets[id]
}

func (s *store) historyOf(ticketID string, kind domain.ChangeKind) []domain.TicketHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range s.history {
		if h.TicketID == ticketID && (kind == "" || h.ChangeKind == kind) {
			out = append(out, h)
		}
	}
	return out
}

func (s *store) details(t *domain.Ticket) domain.TicketDetails {
	d := domain.TicketDetails{Ticket: *t}
	if u, ok := s.users[t.CreatedBy]; ok {
		d.CreatorName, d.CreatorEmail = u.Name, u.Email
	}
	if dept, ok := s.departments[t.AssignedDepartmentID]; ok {
		d.DepartmentName = dept.Name
	}
	return d
}

type fakeTickets struct{ s *store }

func (f fakeTickets) Create(_ context.Context, t *domain.Ticket) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.s.tickets[t.ID] = &cp
	f.s.writes++
	return nil
}

func (f fakeTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f fakeTickets) GetDetails(_ context.Context, id string) (*domain.TicketDetails, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	d := f.s.details(t)
	return &d, nil
}

func (f fakeTickets) ApplyUpdate(_ context.Context, id string, u repository.TicketUpdate) (*domain.Ticket, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	f.s.writes++
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.DescriptionImageURL != nil {
		t.DescriptionImageURL = *u.DescriptionImageURL
	}
	if u.Status != nil {
		if *u.Status == domain.TicketStatusClosed && t.Status != domain.TicketStatusClosed {
			t.ClosedAt.SetValid(u.UpdatedAt)
		}
		t.Status = *u.Status
	}
	if u.AssignedDepartmentID != nil {
		t.AssignedDepartmentID = *u.AssignedDepartmentID
	}
	if u.Deadline != nil {
		t.Deadline = *u.Deadline
	}
	if u.CustomerName != nil {
		t.CustomerName = *u.CustomerName
	}
	if u.CustomerMobile != nil {
		t.CustomerMobile = *u.CustomerMobile
	}
	if u.PurchasedItem != nil {
		t.PurchasedItem = *u.PurchasedItem
	}
	if u.ClearOverdueMarker {
		t.OverdueNotifiedAt.Valid = false
	}
	t.UpdatedAt = u.UpdatedAt
	cp := *t
	return &cp, nil
}

func (f fakeTickets) List(_ context.Context, filter repository.TicketFilter) ([]domain.TicketDetails, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.TicketDetails{}
	for _, t := range f.s.tickets {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.DepartmentID != nil && t.AssignedDepartmentID != *filter.DepartmentID {
			continue
		}
		out = append(out, f.s.details(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeTickets) ListOverdue(_ context.Context, q repository.OverdueQuery) ([]domain.TicketDetails, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listErr != nil {
		return nil, f.s.listErr
	}
	out := []domain.TicketDetails{}
	for _, t := range f.s.tickets {
		if t.Status == domain.TicketStatusClosed || !t.Deadline.Before(q.Now) {
			continue
		}
		if q.WindowStart != nil && t.Deadline.Before(*q.WindowStart) {
			continue
		}
		if q.UseMarker && !markerEligible(t, q.RenotifyBefore) {
			continue
		}
		out = append(out, f.s.details(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (f fakeTickets) ClaimOverdue(_ context.Context, id string, now time.Time, renotifyBefore *time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.claimErr != nil {
		return false, f.s.claimErr
	}
	t, ok := f.s.tickets[id]
	if !ok || t.Status == domain.TicketStatusClosed || !t.Deadline.Before(now) || !markerEligible(t, renotifyBefore) {
		return false, nil
	}
	t.OverdueNotifiedAt.SetValid(now)
	return true, nil
}

func (f fakeTickets) ReleaseOverdue(_ context.Context, id string, claimedAt time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if t, ok := f.s.tickets[id]; ok && t.OverdueNotifiedAt.Valid && t.OverdueNotifiedAt.Time.Equal(claimedAt) {
		t.OverdueNotifiedAt.Valid = false
	}
	return nil
}

func markerEligible(t *domain.Ticket, renotifyBefore *time.Time) bool {
	if !t.OverdueNotifiedAt.Valid {
		return true
	}
	return renotifyBefore != nil && t.OverdueNotifiedAt.Time.Before(*renotifyBefore)
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeDepartments struct{ s *store }

func (f fakeDepartments) Create(_ context.Context, d *domain.Department) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	d.ID = uuid.NewString()
	f.s.departments[d.ID] = d
	return nil
}

func (f fakeDepartments) GetByID(_ context.Context, id string) (*domain.Department, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	d, ok := f.s.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (f fakeDepartments) List(_ context.Context) ([]domain.Department, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.Department{}
	for _, d := range f.s.departments {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeUsers struct{ s *store }

func (f fakeUsers) Create(_ context.Context, u *domain.User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u.ID = uuid.NewString()
	cp := *u
	f.s.users[u.ID] = &cp
	return nil
}

func (f fakeUsers) Update(_ context.Context, u *domain.User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.users[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *u
	f.s.users[u.ID] = &cp
	return nil
}

func (f fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f fakeUsers) List(_ context.Context) ([]domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.User{}
	for _, u := range f.s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f fakeUsers) ListActiveByDepartment(_ context.Context, departmentID string) ([]domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.User{}
	for _, u := range f.s.users {
		if u.IsActive && u.DepartmentID.Valid && u.DepartmentID.String == departmentID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f fakeUsers) ListActiveEmails(_ context.Context, departmentID *string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []string{}
	for _, u := range f.s.users {
		if !u.IsActive {
			continue
		}
		if departmentID != nil && (!u.DepartmentID.Valid || u.DepartmentID.String != *departmentID) {
			continue
		}
		out = append(out, u.Email)
	}
	sort.Strings(out)
	return out, nil
}

type fakeHistory struct{ s *store }

func (f fakeHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.historyErr != nil {
		return f.s.historyErr
	}
	f.s.seq++
	h.ID = uuid.NewString()
	h.CreatedAt = time.Now()
	f.s.history = append(f.s.history, *h)
	return nil
}

func (f fakeHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistoryView, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.TicketHistoryView{}
	for i := len(f.s.history) - 1; i >= 0; i-- {
		h := f.s.history[i]
		if h.TicketID != ticketID {
			continue
		}
		view := domain.TicketHistoryView{TicketHistory: h}
		if u, ok := f.s.users[h.ChangedBy]; ok {
			view.ChangerName = u.Name
		}
		out = append(out, view)
	}
	return out, nil
}

type fakeEmailLogs struct{ s *store }

func (f fakeEmailLogs) Create(_ context.Context, e *domain.EmailLog) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.logErr != nil {
		return f.s.logErr
	}
	e.ID = uuid.NewString()
	e.SentAt = time.Now()
	f.s.emailLogs = append(f.s.emailLogs, *e)
	return nil
}

func (f fakeEmailLogs) CountByType(_ context.Context, since time.Time) ([]domain.EmailTypeCount, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	counts := map[string]int64{}
	for _, e := range f.s.emailLogs {
		if !e.SentAt.Before(since) {
			counts[string(e.Kind)]++
		}
	}
	out := []domain.EmailTypeCount{}
	for k, v := range counts {
		out = append(out, domain.EmailTypeCount{EmailType: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmailType < out[j].EmailType })
	return out, nil
}

func (f fakeEmailLogs) CountByOutcome(_ context.Context, since time.Time) (int64, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var ok, failed int64
	for _, e := range f.s.emailLogs {
		if e.SentAt.Before(since) {
			continue
		}
		if e.Success {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed, nil
}

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// sent returns the messages passed to Send, in call order.
func (m *mockSender) sent() []mail.Message {
	var out []mail.Message
	for _, call := range m.Calls {
		if call.Method == "Send" {
			out = append(out, call.Arguments.Get(1).(mail.Message))
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store    *store
	sender   *mockSender
	clock    *clock
	tickets  *TicketService
	notifier *NotificationService
}

func newHarness() *harness {
	s := newStore()
	sender := &mockSender{}
	c := &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	history := NewHistoryRecorder(fakeHistory{s}, nil)
	notifier := NewNotificationService(NotificationDependencies{
		Renderer:  mail.NewRenderer("http://localhost:3000"),
		Sender:    sender,
		EmailLogs: fakeEmailLogs{s},
		History:   history,
	})
	tickets := NewTicketService(TicketDependencies{
		TicketRepo:     fakeTickets{s},
		DepartmentRepo: fakeDepartments{s},
		UserRepo:       fakeUsers{s},
		History:        history,
		Notifier:       notifier,
		Clock:          c.Now,
	})
	return &harness{store: s, sender: sender, clock: c, tickets: tickets, notifier: notifier}
}

func (h *harness) sendOK() {
	h.sender.On("Send", mock.Anything, mock.Anything).Return(nil)
}
