package deals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealmates/backend/internal/models"
)

const dealColumns = `id, name, content, category, COALESCE(supplier,''),
	regular_price_cents, discounted_price_cents, target_participant_count, target_date,
	status, COALESCE(main_image_url,''), image_urls, video_urls, created_at, updated_at`

// Repository handles deal persistence. The deal aggregate owns its joined and
// wishlist member sets; both are loaded with the row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a deals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.Name, &d.Content, &d.Category, &d.Supplier,
		&d.RegularPriceCents, &d.DiscountedPriceCents, &d.TargetParticipantCount, &d.TargetDate,
		&d.Status, &d.MainImageURL, &d.ImageURLs, &d.VideoURLs, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByID returns a deal with both member sets, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadMembers(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Repository) loadMembers(ctx context.Context, d *models.Deal) error {
	joined, err := r.memberIDs(ctx, `SELECT user_id FROM deal_participants WHERE deal_id = $1 ORDER BY joined_at`, d.ID)
	if err != nil {
		return err
	}
	wishlist, err := r.memberIDs(ctx, `SELECT user_id FROM deal_wishlist WHERE deal_id = $1 ORDER BY added_at`, d.ID)
	if err != nil {
		return err
	}
	d.JoinedUserIDs = joined
	d.WishlistUserIDs = wishlist
	return nil
}

func (r *Repository) memberIDs(ctx context.Context, q string, dealID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, q, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns all deals with member sets, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Deal, error) {
	return r.list(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY created_at DESC`)
}

// ListByCategory returns deals in a category with member sets, newest first.
func (r *Repository) ListByCategory(ctx context.Context, category string) ([]models.Deal, error) {
	return r.list(ctx, `SELECT `+dealColumns+` FROM deals WHERE category = $1 ORDER BY created_at DESC`, category)
}

// ListJoinedBy returns the deals a user participates in, newest first.
func (r *Repository) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]models.Deal, error) {
	return r.list(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE id IN (SELECT deal_id FROM deal_participants WHERE user_id = $1)
		ORDER BY created_at DESC`, userID)
}

// ListWishlistedBy returns the deals on a user's wishlist, newest first.
func (r *Repository) ListWishlistedBy(ctx context.Context, userID uuid.UUID) ([]models.Deal, error) {
	return r.list(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE id IN (SELECT deal_id FROM deal_wishlist WHERE user_id = $1)
		ORDER BY created_at DESC`, userID)
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.Deal, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		if err := r.loadMembers(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Create inserts a deal.
func (r *Repository) Create(ctx context.Context, d *models.Deal) error {
	const q = `INSERT INTO deals (name, content, category, supplier, regular_price_cents, discounted_price_cents,
			target_participant_count, target_date, status, main_image_url, image_urls, video_urls)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, $7, $8, $9, NULLIF($10,''), $11, $12)
		RETURNING id, created_at, updated_at`
	if d.Status == "" {
		d.Status = models.DealStatusActive
	}
	if d.ImageURLs == nil {
		d.ImageURLs = []string{}
	}
	if d.VideoURLs == nil {
		d.VideoURLs = []string{}
	}
	return r.pool.QueryRow(ctx, q, d.Name, d.Content, d.Category, d.Supplier,
		d.RegularPriceCents, d.DiscountedPriceCents, d.TargetParticipantCount, d.TargetDate,
		d.Status, d.MainImageURL, d.ImageURLs, d.VideoURLs).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// UpdateInfo updates the mutable descriptive fields of a deal.
func (r *Repository) UpdateInfo(ctx context.Context, d *models.Deal) error {
	const q = `UPDATE deals SET name = $2, content = $3, category = $4, supplier = NULLIF($5,''),
		main_image_url = NULLIF($6,''), image_urls = $7, video_urls = $8, updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, d.ID, d.Name, d.Content, d.Category, d.Supplier,
		d.MainImageURL, d.ImageURLs, d.VideoURLs)
	return err
}

// UpdateStatus persists a transition out of ACTIVE. The status guard makes
// terminal states sticky at the row level: when another path already moved
// the deal, the write loses and reports false, and the caller must not run
// settlement.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	const q = `UPDATE deals SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, id, status, models.DealStatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a deal. Blocked by the payments FK while payments reference
// it, so settled history is never orphaned.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	return err
}

// IsParticipant reports whether the user already joined the deal.
func (r *Repository) IsParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deal_participants WHERE deal_id = $1 AND user_id = $2)`,
		dealID, userID).Scan(&exists)
	return exists, err
}

// AddParticipant adds the user to the deal's joined set. Returns false when
// membership already existed; the composite primary key is the race guard.
func (r *Repository) AddParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO deal_participants (deal_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		dealID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddWishlist adds the user to the deal's wishlist set (idempotent).
func (r *Repository) AddWishlist(ctx context.Context, dealID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO deal_wishlist (deal_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		dealID, userID)
	return err
}

// RemoveWishlist removes the user from the deal's wishlist set (idempotent).
func (r *Repository) RemoveWishlist(ctx context.Context, dealID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM deal_wishlist WHERE deal_id = $1 AND user_id = $2`,
		dealID, userID)
	return err
}

// MarkThresholdFired records a progress milestone atomically. Returns true
// only for the insert that won; every later call for the same (deal,
// threshold) pair returns false, which is what makes a milestone fire once
// per deal, ever.
func (r *Repository) MarkThresholdFired(ctx context.Context, dealID uuid.UUID, threshold int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO deal_thresholds (deal_id, threshold) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		dealID, threshold)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
