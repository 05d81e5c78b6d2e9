package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// HistoryRecorder appends audit entries. Append never fails its caller.
type HistoryRecorder struct {
	repo   repository.TicketHistoryRepository
	logger *zap.Logger
}

// NewHistoryRecorder constructs the recorder.
func NewHistoryRecorder(repo repository.TicketHistoryRepository, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{repo: repo, logger: logger}
}

// Append writes entry and reports the outcome. Failures are logged.
func (h *HistoryRecorder) Append(ctx context.Context, entry domain.TicketHistory) HistoryOutcome {
	outcome := HistoryOutcome{Kind: entry.ChangeKind, Field: entry.FieldName.String}
	if err := h.repo.Create(ctx, &entry); err != nil {
		h.logger.Error("failed to append ticket history",
			zap.String("ticket_id", entry.TicketID),
			zap.String("kind", string(entry.ChangeKind)),
			zap.String("field", entry.FieldName.String),
			zap.Error(err))
		outcome.Err = err
	}
	return outcome
}

// List returns a ticket's history, most recent first.
func (h *HistoryRecorder) List(ctx context.Context, ticketID string) ([]domain.TicketHistoryView, error) {
	return h.repo.ListByTicket(ctx, ticketID)
}
