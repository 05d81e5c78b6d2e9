package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AnalyticsRepository runs read-only reporting queries.
type AnalyticsRepository interface {
	DepartmentStats(ctx context.Context) ([]domain.DepartmentStats, error)
}

type analyticsRepository struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository builds the repository.
func NewAnalyticsRepository(pool *pgxpool.Pool) AnalyticsRepository {
	return &analyticsRepository{pool: pool}
}

func (r *analyticsRepository) DepartmentStats(ctx context.Context) ([]domain.DepartmentStats, error) {
	const query = `
        SELECT d.id, d.name,
               COUNT(*) FILTER (WHERE t.status IN ('Open', 'Pending')),
               COUNT(*) FILTER (WHERE t.status = 'Closed'),
               COUNT(*) FILTER (WHERE t.status = 'Closed' AND t.closed_at <= t.deadline),
               COUNT(*) FILTER (WHERE t.status = 'Closed' AND t.closed_at > t.deadline)
        FROM departments d
        LEFT JOIN tickets t ON t.assigned_department_id = d.id
        GROUP BY d.id, d.name
        ORDER BY d.name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.DepartmentStats{}
	for rows.Next() {
		var s domain.DepartmentStats
		if err := rows.Scan(&s.DepartmentID, &s.DepartmentName, &s.OpenTickets, &s.ClosedTickets, &s.ClosedOnTime, &s.ClosedDelayed); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
