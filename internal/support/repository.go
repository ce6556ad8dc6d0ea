package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `id, subject, status, created_at, first_response_at, resolved_at, assigned_to_user_id, requester_user_id, last_sla_warn_notified_at, last_sla_breach_notified_at`

// Repository provides PostgreSQL backed access to support tickets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindOpenTickets returns tickets that are open or in progress, oldest first.
func (r *Repository) FindOpenTickets(ctx context.Context) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE status IN ($1, $2) ORDER BY created_at, id`, string(StatusOpen), string(StatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickets []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// Watermark returns the persisted last-notified instant for kind, or nil.
func (r *Repository) Watermark(ctx context.Context, ticketID int64, kind WatermarkKind) (*time.Time, error) {
	column, err := watermarkColumn(kind)
	if err != nil {
		return nil, err
	}
	var at *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT `+column+` FROM support_tickets WHERE id = $1`, ticketID).Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return at, nil
}

// UpdateDedupWatermark persists the last-notified instant for kind.
func (r *Repository) UpdateDedupWatermark(ctx context.Context, ticketID int64, kind WatermarkKind, at time.Time) error {
	column, err := watermarkColumn(kind)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE support_tickets SET `+column+` = $2 WHERE id = $1`, ticketID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func watermarkColumn(kind WatermarkKind) (string, error) {
	switch kind {
	case WatermarkWarn:
		return "last_sla_warn_notified_at", nil
	case WatermarkBreach:
		return "last_sla_breach_notified_at", nil
	default:
		return "", fmt.Errorf("support: unknown watermark %q", kind)
	}
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	var status string
	err := row.Scan(&t.ID, &t.Subject, &status, &t.CreatedAt, &t.FirstResponseAt, &t.ResolvedAt,
		&t.AssignedToUserID, &t.RequesterUserID, &t.LastWarnNotifiedAt, &t.LastBreachNotifiedAt)
	if err != nil {
		return Ticket{}, err
	}
	t.Status = Status(status)
	return t, nil
}
