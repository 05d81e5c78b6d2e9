package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	List(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	const query = `
        INSERT INTO departments (name)
        VALUES ($1)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, dept.Name).Scan(&dept.ID, &dept.CreatedAt)
}

// GetByID returns pgx.ErrNoRows for an unknown id, including ids that are not
// valid UUIDs.
func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `SELECT id, name, created_at FROM departments WHERE id::text=$1`
	var dept domain.Department
	if err := r.pool.QueryRow(ctx, query, id).Scan(&dept.ID, &dept.Name, &dept.CreatedAt); err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) List(ctx context.Context) ([]domain.Department, error) {
	const query = `SELECT id, name, created_at FROM departments ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Department{}
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
