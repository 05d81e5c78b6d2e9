package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketCommentRepository manages the comment thread of a ticket.
type TicketCommentRepository interface {
	Create(ctx context.Context, comment *domain.TicketComment) error
	GetByID(ctx context.Context, id string) (*domain.TicketComment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error)
	UpdateText(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
}

type ticketCommentRepository struct {
	pool *pgxpool.Pool
}

// NewTicketCommentRepository builds repository.
func NewTicketCommentRepository(pool *pgxpool.Pool) TicketCommentRepository {
	return &ticketCommentRepository{pool: pool}
}

const commentSelect = `
        SELECT c.id, c.ticket_id, c.user_id, c.comment_text, c.image_url, c.created_at, c.updated_at,
               u.name, d.name
        FROM ticket_comments c
        JOIN users u ON c.user_id = u.id
        LEFT JOIN departments d ON u.department_id = d.id`

func (r *ticketCommentRepository) Create(ctx context.Context, comment *domain.TicketComment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, user_id, comment_text, image_url)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		comment.TicketID,
		comment.UserID,
		comment.Text,
		comment.ImageURL,
	).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
}

// GetByID returns pgx.ErrNoRows for unknown ids.
func (r *ticketCommentRepository) GetByID(ctx context.Context, id string) (*domain.TicketComment, error) {
	comment, err := scanComment(r.pool.QueryRow(ctx, commentSelect+` WHERE c.id::text=$1`, id))
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// ListByTicket returns the thread oldest first.
func (r *ticketCommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	rows, err := r.pool.Query(ctx, commentSelect+` WHERE c.ticket_id=$1 ORDER BY c.created_at ASC, c.id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketComment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *comment)
	}
	return result, rows.Err()
}

func (r *ticketCommentRepository) UpdateText(ctx context.Context, id, text string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE ticket_comments SET comment_text=$2, updated_at=NOW() WHERE id=$1`, id, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketCommentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ticket_comments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanComment(row pgx.Row) (*domain.TicketComment, error) {
	var comment domain.TicketComment
	if err := row.Scan(
		&comment.ID,
		&comment.TicketID,
		&comment.UserID,
		&comment.Text,
		&comment.ImageURL,
		&comment.CreatedAt,
		&comment.UpdatedAt,
		&comment.UserName,
		&comment.UserDepartment,
	); err != nil {
		return nil, err
	}
	return &comment, nil
}
