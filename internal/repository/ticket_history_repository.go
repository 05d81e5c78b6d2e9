package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketHistoryRepository stores audit entries. Entries are only ever
// inserted; the table rejects updates and direct deletes, so rows leave only
// with their ticket.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistoryView, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by, change_type, field_name, old_value, new_value, description)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ChangedBy,
		history.ChangeKind,
		history.FieldName,
		history.OldValue,
		history.NewValue,
		history.Description,
	).Scan(&history.ID, &history.CreatedAt)
}

// ListByTicket returns entries most recent first. seq breaks ties between
// entries written within the same clock tick.
func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistoryView, error) {
	const query = `
        SELECT h.id, h.ticket_id, h.changed_by, h.change_type, h.field_name, h.old_value, h.new_value,
               h.description, h.created_at, u.name, d.name
        FROM ticket_history h
        JOIN users u ON h.changed_by = u.id
        LEFT JOIN departments d ON u.department_id = d.id
        WHERE h.ticket_id=$1
        ORDER BY h.created_at DESC, h.seq DESC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketHistoryView{}
	for rows.Next() {
		var view domain.TicketHistoryView
		if err := rows.Scan(
			&view.ID,
			&view.TicketID,
			&view.ChangedBy,
			&view.ChangeKind,
			&view.FieldName,
			&view.OldValue,
			&view.NewValue,
			&view.Description,
			&view.CreatedAt,
			&view.ChangerName,
			&view.ChangerDepartment,
		); err != nil {
			return nil, err
		}
		result = append(result, view)
	}
	return result, rows.Err()
}
