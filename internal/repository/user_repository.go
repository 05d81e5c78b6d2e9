package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const userColumns = `id, name, email, password_hash, is_admin, is_active, must_change_password, department_id, created_at, updated_at`

// UserRepository defines persistence access for helpdesk accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.User, error)
	// ListActiveEmails returns addresses of active users in departmentID, or of
	// every active user when departmentID is nil.
	ListActiveEmails(ctx context.Context, departmentID *string) ([]string, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, is_admin, is_active, must_change_password, department_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		user.MustChangePassword,
		user.DepartmentID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, password_hash=$3, is_admin=$4, is_active=$5,
                         must_change_password=$6, department_id=$7, updated_at=NOW()
        WHERE id=$8`

	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		user.MustChangePassword,
		user.DepartmentID,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchOne(ctx, `SELECT `+userColumns+` FROM users WHERE id::text=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email)
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	return r.fetchMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC`)
}

func (r *userRepository) ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.User, error) {
	return r.fetchMany(ctx, `SELECT `+userColumns+` FROM users WHERE department_id::text=$1 AND is_active ORDER BY name ASC`, departmentID)
}

func (r *userRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		var user domain.User
		if err := scanUser(rows, &user); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userRepository) ListActiveEmails(ctx context.Context, departmentID *string) ([]string, error) {
	query, args, err := buildActiveEmails(departmentID).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func buildActiveEmails(departmentID *string) sq.SelectBuilder {
	b := psql.Select("email").From("users").Where(sq.Eq{"is_active": true})
	if departmentID != nil {
		b = b.Where(sq.Eq{"department_id": *departmentID})
	}
	return b.OrderBy("email ASC")
}

func (r *userRepository) fetchOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := scanUser(r.pool.QueryRow(ctx, query, arg), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUser(row pgx.Row, user *domain.User) error {
	return row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsActive,
		&user.MustChangePassword,
		&user.DepartmentID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}
