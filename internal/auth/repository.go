package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealmates/backend/internal/models"
)

// ErrHasPayments blocks user deletion while payments reference the account,
// so settlement history is never orphaned.
var ErrHasPayments = errors.New("user has payments and cannot be deleted")

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role,
		COALESCE(phone,''), COALESCE(address,''), COALESCE(avatar_url,''),
		created_at, updated_at FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role,
		&u.Phone, &u.Address, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role,
		COALESCE(phone,''), COALESCE(address,''), COALESCE(avatar_url,''),
		created_at, updated_at FROM users WHERE email = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role,
		&u.Phone, &u.Address, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all users for the admin dashboard.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, full_name, role,
		COALESCE(phone,''), COALESCE(address,''), COALESCE(avatar_url,''),
		created_at FROM users ORDER BY full_name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		var u models.UserPublic
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &role,
			&u.Phone, &u.Address, &u.AvatarURL, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = models.Role(role)
		list = append(list, u)
	}
	return list, rows.Err()
}

// ListIDs returns all user IDs, for platform-wide notification broadcasts.
func (r *Repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.collectIDs(ctx, `SELECT id FROM users`)
}

// ListAdminIDs returns the admin user IDs, for account-event broadcasts.
func (r *Repository) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.collectIDs(ctx, `SELECT id FROM users WHERE role = $1`, string(models.RoleAdmin))
}

func (r *Repository) collectIDs(ctx context.Context, q string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateUserParams holds optional profile fields for registration.
type CreateUserParams struct {
	Phone   string
	Address string
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, profile *CreateUserParams) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role, phone, address)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''))
		RETURNING id, email, password_hash, full_name, role,
		COALESCE(phone,''), COALESCE(address,''), COALESCE(avatar_url,''),
		created_at, updated_at`
	phone, address := "", ""
	if profile != nil {
		phone, address = profile.Phone, profile.Address
	}
	var u models.User
	err := r.pool.QueryRow(ctx, q, email, passwordHash, fullName, string(role), phone, address).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role,
			&u.Phone, &u.Address, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile writes the mutable account fields back, password hash
// included. Callers decide which fields actually changed.
func (r *Repository) UpdateProfile(ctx context.Context, u *models.User) error {
	const q = `UPDATE users SET email = $2, full_name = $3, phone = NULLIF($4,''),
		address = NULLIF($5,''), password_hash = $6, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, u.ID, u.Email, u.FullName, u.Phone, u.Address, u.Password)
	return err
}

// Delete removes a user. Membership and notification rows cascade; the
// payments FK does not, and that violation maps to ErrHasPayments.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrHasPayments
		}
	}
	return err
}

// UpdateAvatar sets the avatar URL returned by object storage.
func (r *Repository) UpdateAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) error {
	const q = `UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, userID, avatarURL)
	return err
}
