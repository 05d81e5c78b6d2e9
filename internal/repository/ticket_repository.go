package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const ticketColumns = `t.id, t.title, t.description, t.description_image_url, t.status, t.created_by,
       t.assigned_department_id, t.deadline, t.customer_name, t.customer_mobile, t.car_bought,
       t.overdue_notified_at, t.created_at, t.updated_at, t.closed_at`

const ticketDetailColumns = ticketColumns + `, u.name, u.email, d.name`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// TicketFilter captures list parameters.
type TicketFilter struct {
	Statuses     []domain.TicketStatus
	DepartmentID *string
	CreatedBy    *string
	Limit        int
	Offset       int
}

// TicketUpdate is a partial field update. Nil fields are left untouched; a
// non-nil null value clears a nullable column.
type TicketUpdate struct {
	Title                *string
	Description          *string
	DescriptionImageURL  *null.String
	Status               *domain.TicketStatus
	AssignedDepartmentID *string
	Deadline             *time.Time
	CustomerName         *null.String
	CustomerMobile       *null.String
	PurchasedItem        *null.String
	ClearOverdueMarker   bool
	UpdatedAt            time.Time
}

// OverdueQuery selects unclosed tickets whose deadline passed before Now.
// WindowStart restricts to deadlines at or after it; UseMarker restricts to
// tickets not yet notified (or notified before RenotifyBefore, when set).
type OverdueQuery struct {
	Now            time.Time
	WindowStart    *time.Time
	UseMarker      bool
	RenotifyBefore *time.Time
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetDetails(ctx context.Context, id string) (*domain.TicketDetails, error)
	ApplyUpdate(ctx context.Context, id string, update TicketUpdate) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.TicketDetails, error)
	ListOverdue(ctx context.Context, query OverdueQuery) ([]domain.TicketDetails, error)
	ClaimOverdue(ctx context.Context, id string, now time.Time, renotifyBefore *time.Time) (bool, error)
	ReleaseOverdue(ctx context.Context, id string, claimedAt time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, description_image_url, status, created_by, assigned_department_id,
                             deadline, customer_name, customer_mobile, car_bought)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.DescriptionImageURL,
		ticket.Status,
		ticket.CreatedBy,
		ticket.AssignedDepartmentID,
		ticket.Deadline,
		ticket.CustomerName,
		ticket.CustomerMobile,
		ticket.PurchasedItem,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) GetDetails(ctx context.Context, id string) (*domain.TicketDetails, error) {
	query, args, err := detailSelect().Where(sq.Eq{"t.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var details domain.TicketDetails
	if err := scanTicketDetails(r.pool.QueryRow(ctx, query, args...), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// ApplyUpdate writes every supplied field in one statement and returns the
// resulting row.
func (r *ticketRepository) ApplyUpdate(ctx context.Context, id string, update TicketUpdate) (*domain.Ticket, error) {
	query, args, err := buildTicketUpdate(id, update).ToSql()
	if err != nil {
		return nil, err
	}
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, args...), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func buildTicketUpdate(id string, update TicketUpdate) sq.UpdateBuilder {
	b := psql.Update("tickets t")
	if update.Title != nil {
		b = b.Set("title", *update.Title)
	}
	if update.Description != nil {
		b = b.Set("description", *update.Description)
	}
	if update.DescriptionImageURL != nil {
		b = b.Set("description_image_url", *update.DescriptionImageURL)
	}
	if update.Status != nil {
		b = b.Set("status", string(*update.Status))
		if *update.Status == domain.TicketStatusClosed {
			// Evaluated against the row's prior status, so closed_at is stamped
			// only on the transition into Closed.
			b = b.Set("closed_at", sq.Expr("CASE WHEN t.status <> ? THEN ?::timestamptz ELSE t.closed_at END",
				string(domain.TicketStatusClosed), update.UpdatedAt))
		}
	}
	if update.AssignedDepartmentID != nil {
		b = b.Set("assigned_department_id", *update.AssignedDepartmentID)
	}
	if update.Deadline != nil {
		b = b.Set("deadline", *update.Deadline)
	}
	if update.CustomerName != nil {
		b = b.Set("customer_name", *update.CustomerName)
	}
	if update.CustomerMobile != nil {
		b = b.Set("customer_mobile", *update.CustomerMobile)
	}
	if update.PurchasedItem != nil {
		b = b.Set("car_bought", *update.PurchasedItem)
	}
	if update.ClearOverdueMarker {
		b = b.Set("overdue_notified_at", sq.Expr("NULL"))
	}
	return b.Set("updated_at", update.UpdatedAt).
		Where(sq.Eq{"t.id": id}).
		Suffix("RETURNING " + ticketColumns)
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.TicketDetails, error) {
	b := detailSelect()
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		b = b.Where(sq.Eq{"t.status": statuses})
	}
	if filter.DepartmentID != nil {
		b = b.Where(sq.Eq{"t.assigned_department_id": *filter.DepartmentID})
	}
	if filter.CreatedBy != nil {
		b = b.Where(sq.Eq{"t.created_by": *filter.CreatedBy})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	b = b.OrderBy("t.created_at DESC").Limit(uint64(limit)).Offset(uint64(offset))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryDetails(ctx, query, args)
}

func (r *ticketRepository) ListOverdue(ctx context.Context, q OverdueQuery) ([]domain.TicketDetails, error) {
	query, args, err := buildOverdueSelect(q).ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryDetails(ctx, query, args)
}

func buildOverdueSelect(q OverdueQuery) sq.SelectBuilder {
	b := detailSelect().
		Where(sq.NotEq{"t.status": string(domain.TicketStatusClosed)}).
		Where(sq.Lt{"t.deadline": q.Now})
	if q.WindowStart != nil {
		b = b.Where(sq.GtOrEq{"t.deadline": *q.WindowStart})
	}
	if q.UseMarker {
		b = b.Where(markerEligible(q.RenotifyBefore))
	}
	return b.OrderBy("t.deadline ASC")
}

func markerEligible(renotifyBefore *time.Time) sq.Sqlizer {
	if renotifyBefore == nil {
		return sq.Eq{"t.overdue_notified_at": nil}
	}
	return sq.Or{
		sq.Eq{"t.overdue_notified_at": nil},
		sq.Lt{"t.overdue_notified_at": *renotifyBefore},
	}
}

// ClaimOverdue stamps the overdue marker if the ticket is still eligible. It
// reports whether this caller won the claim.
func (r *ticketRepository) ClaimOverdue(ctx context.Context, id string, now time.Time, renotifyBefore *time.Time) (bool, error) {
	query, args, err := psql.Update("tickets t").
		Set("overdue_notified_at", now.Truncate(time.Microsecond)).
		Where(sq.Eq{"t.id": id}).
		Where(sq.NotEq{"t.status": string(domain.TicketStatusClosed)}).
		Where(sq.Lt{"t.deadline": now}).
		Where(markerEligible(renotifyBefore)).
		ToSql()
	if err != nil {
		return false, err
	}
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// ReleaseOverdue clears a marker previously set by ClaimOverdue at claimedAt.
func (r *ticketRepository) ReleaseOverdue(ctx context.Context, id string, claimedAt time.Time) error {
	const query = `UPDATE tickets SET overdue_notified_at = NULL WHERE id=$1 AND overdue_notified_at=$2`
	_, err := r.pool.Exec(ctx, query, id, claimedAt.Truncate(time.Microsecond))
	return err
}

func detailSelect() sq.SelectBuilder {
	return psql.Select(ticketDetailColumns).
		From("tickets t").
		Join("users u ON t.created_by = u.id").
		Join("departments d ON t.assigned_department_id = d.id")
}

func (r *ticketRepository) queryDetails(ctx context.Context, query string, args []any) ([]domain.TicketDetails, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketDetails{}
	for rows.Next() {
		var details domain.TicketDetails
		if err := scanTicketDetails(rows, &details); err != nil {
			return nil, err
		}
		result = append(result, details)
	}
	return result, rows.Err()
}

func ticketScanTargets(t *domain.Ticket) []any {
	return []any{
		&t.ID,
		&t.Title,
		&t.Description,
		&t.DescriptionImageURL,
		&t.Status,
		&t.CreatedBy,
		&t.AssignedDepartmentID,
		&t.Deadline,
		&t.CustomerName,
		&t.CustomerMobile,
		&t.PurchasedItem,
		&t.OverdueNotifiedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ClosedAt,
	}
}

func scanTicket(row pgx.Row, t *domain.Ticket) error {
	return row.Scan(ticketScanTargets(t)...)
}

func scanTicketDetails(row pgx.Row, d *domain.TicketDetails) error {
	targets := append(ticketScanTargets(&d.Ticket), &d.CreatorName, &d.CreatorEmail, &d.DepartmentName)
	return row.Scan(targets...)
}
