package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aarondl/null/v8"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/mail"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Notifier dispatches ticket notifications.
type Notifier interface {
	Dispatch(ctx context.Context, kind domain.NotificationKind, recipients []string, ticket *domain.TicketDetails, actor *domain.Actor) DispatchOutcome
}

// NotificationService renders, delivers and records ticket notifications.
type NotificationService struct {
	renderer *mail.Renderer
	sender   mail.Sender
	logs     repository.EmailLogRepository
	history  *HistoryRecorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NotificationDependencies bundles collaborators for the dispatcher.
type NotificationDependencies struct {
	Renderer  *mail.Renderer
	Sender    mail.Sender
	EmailLogs repository.EmailLogRepository
	History   *HistoryRecorder
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		renderer: deps.Renderer,
		sender:   deps.Sender,
		logs:     deps.EmailLogs,
		history:  deps.History,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

var notificationLabels = map[domain.NotificationKind]string{
	domain.NotificationAssigned:   "Ticket assigned",
	domain.NotificationReassigned: "Ticket reassigned",
	domain.NotificationClosed:     "Ticket closed",
	domain.NotificationOverdue:    "Ticket overdue",
}

// Dispatch sends one notification. It never returns an error: the outcome
// carries the delivery result, and every attempt is written to the email log.
// A nil actor marks a system-triggered send, which records no history entry.
func (n *NotificationService) Dispatch(ctx context.Context, kind domain.NotificationKind, recipients []string, ticket *domain.TicketDetails, actor *domain.Actor) DispatchOutcome {
	outcome := DispatchOutcome{Kind: kind, Recipients: len(recipients)}
	if len(recipients) == 0 {
		outcome.Skipped = true
		return outcome
	}

	subject := mail.Subject(kind, ticket.Title)
	msg, err := n.renderer.Render(kind, recipients, ticket)
	if err == nil {
		err = n.sender.Send(ctx, msg)
	}
	outcome.Err = err
	n.metrics.RecordNotification(string(kind), err == nil)

	entry := &domain.EmailLog{
		TicketID:   null.StringFrom(ticket.ID),
		Kind:       kind,
		Recipients: recipients,
		Subject:    subject,
		Success:    err == nil,
	}
	if actor != nil {
		entry.SentBy = null.StringFrom(actor.UserID)
	}
	if err != nil {
		entry.ErrorMessage = null.StringFrom(err.Error())
		n.logger.Warn("notification delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("kind", string(kind)),
			zap.Int("recipients", len(recipients)),
			zap.Error(err))
	}
	if logErr := n.logs.Create(ctx, entry); logErr != nil {
		outcome.LogErr = logErr
		n.logger.Error("failed to write email log",
			zap.String("ticket_id", ticket.ID),
			zap.String("kind", string(kind)),
			zap.Error(logErr))
	}

	if err == nil && actor != nil && n.history != nil {
		h := n.history.Append(ctx, domain.TicketHistory{
			TicketID:    ticket.ID,
			ChangedBy:   actor.UserID,
			ChangeKind:  domain.ChangeEmailSent,
			NewValue:    null.StringFrom(strings.Join(recipients, ", ")),
			Description: null.StringFrom(fmt.Sprintf("%s email sent to %d recipient(s)", notificationLabels[kind], len(recipients))),
		})
		outcome.History = &h
	}
	return outcome
}
