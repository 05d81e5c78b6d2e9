package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EmailLogRepository records notification attempts.
type EmailLogRepository interface {
	Create(ctx context.Context, entry *domain.EmailLog) error
	CountByType(ctx context.Context, since time.Time) ([]domain.EmailTypeCount, error)
	CountByOutcome(ctx context.Context, since time.Time) (successful, failed int64, err error)
}

type emailLogRepository struct {
	pool *pgxpool.Pool
}

// NewEmailLogRepository builds the repository.
func NewEmailLogRepository(pool *pgxpool.Pool) EmailLogRepository {
	return &emailLogRepository{pool: pool}
}

func (r *emailLogRepository) Create(ctx context.Context, entry *domain.EmailLog) error {
	const query = `
        INSERT INTO email_logs (ticket_id, email_type, recipients, subject, sent_by, success, error_message)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, sent_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Kind,
		entry.Recipients,
		entry.Subject,
		entry.SentBy,
		entry.Success,
		entry.ErrorMessage,
	).Scan(&entry.ID, &entry.SentAt)
}

func (r *emailLogRepository) CountByType(ctx context.Context, since time.Time) ([]domain.EmailTypeCount, error) {
	query, args, err := psql.Select("email_type", "COUNT(*)").
		From("email_logs").
		Where(sq.GtOrEq{"sent_at": since}).
		GroupBy("email_type").
		OrderBy("email_type ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.EmailTypeCount{}
	for rows.Next() {
		var c domain.EmailTypeCount
		if err := rows.Scan(&c.EmailType, &c.Count); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *emailLogRepository) CountByOutcome(ctx context.Context, since time.Time) (int64, int64, error) {
	const query = `
        SELECT COUNT(*) FILTER (WHERE success), COUNT(*) FILTER (WHERE NOT success)
        FROM email_logs WHERE sent_at >= $1`
	var successful, failed int64
	if err := r.pool.QueryRow(ctx, query, since).Scan(&successful, &failed); err != nil {
		return 0, 0, err
	}
	return successful, failed, nil
}
