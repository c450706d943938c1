package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealmates/backend/internal/models"
)

const paymentColumns = `id, user_id, deal_id, provider_order_id, amount_cents, currency, status, created_at, updated_at`

// Repository handles payment persistence. The UNIQUE (user_id, deal_id)
// constraint is the actual at-most-one-payment guarantee; application-level
// checks are only an early exit.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.DealID, &p.ProviderOrderID, &p.AmountCents, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a payment. A unique-constraint violation on (user, deal)
// surfaces as ErrDuplicateJoin; the loser of a join race lands here.
func (r *Repository) Create(ctx context.Context, p *models.Payment) error {
	const q = `INSERT INTO payments (user_id, deal_id, provider_order_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, p.UserID, p.DealID, p.ProviderOrderID, p.AmountCents, p.Currency, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateJoin
		}
		return err
	}
	return nil
}

// GetByUserAndDeal returns the payment for a (user, deal) pair, or nil.
func (r *Repository) GetByUserAndDeal(ctx context.Context, userID, dealID uuid.UUID) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 AND deal_id = $2`, userID, dealID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetByProviderOrderID returns the payment holding an external order id, or nil.
func (r *Repository) GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListSettleable returns a deal's payments still awaiting settlement
// (PENDING or APPROVED). Finalize takes this snapshot once at entry.
func (r *Repository) ListSettleable(ctx context.Context, dealID uuid.UUID) ([]models.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE deal_id = $1 AND status IN ($2, $3) ORDER BY created_at`,
		dealID, models.PaymentStatusPending, models.PaymentStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// List returns all payments, newest first (admin view).
func (r *Repository) List(ctx context.Context) ([]models.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// HasForDeal reports whether any payment references the deal.
func (r *Repository) HasForDeal(ctx context.Context, dealID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE deal_id = $1)`, dealID).Scan(&exists)
	return exists, err
}

// Approve moves a payment PENDING -> APPROVED. Returns false when the row
// was not in PENDING, making repeats no-ops.
func (r *Repository) Approve(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, models.PaymentStatusApproved, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Settle moves a settleable payment to a terminal status with its final
// amount. The status guard means a payment already settled (by a concurrent
// finalize or the webhook path) is left untouched and reports false, so
// callers never double-charge or double-notify.
func (r *Repository) Settle(ctx context.Context, id uuid.UUID, status string, amountCents int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, amount_cents = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)`,
		id, status, amountCents, models.PaymentStatusPending, models.PaymentStatusApproved)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
