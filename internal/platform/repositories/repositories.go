package repositories

import (
	"context"
	"database/sql"
	"time"

	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) CreateTx(ctx context.Context, tx *sql.Tx, org *models.Organization) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, slug, name, active, deactivated_by, unlimited_override, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, org.ID, org.Slug, org.Name, org.Active, org.DeactivatedBy, org.UnlimitedOverride, org.CreatedAt.Unix(), org.UpdatedAt.Unix())
	return err
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.get(ctx, r.db, `WHERE id = ?`, id)
}

func (r *OrganizationRepository) GetByIDTx(ctx context.Context, q database.Querier, id string) (*models.Organization, error) {
	return r.get(ctx, q, `WHERE id = ?`, id)
}

func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return r.get(ctx, r.db, `WHERE slug = ?`, slug)
}

func (r *OrganizationRepository) get(ctx context.Context, q database.Querier, where string, arg interface{}) (*models.Organization, error) {
	org := &models.Organization{}
	var created, updated int64
	err := q.QueryRowContext(ctx, `
		SELECT id, slug, name, active, deactivated_by, unlimited_override, created_at, updated_at
		FROM organizations `+where, arg).Scan(&org.ID, &org.Slug, &org.Name, &org.Active, &org.DeactivatedBy, &org.UnlimitedOverride, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	org.CreatedAt = fromUnix(created)
	org.UpdatedAt = fromUnix(updated)
	return org, nil
}

// SetActive toggles the tenant. Deactivations remember their source so that
// billing can lift only what billing imposed.
func (r *OrganizationRepository) SetActive(ctx context.Context, id string, active bool, source string, now time.Time) (bool, error) {
	if active {
		source = ""
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE organizations SET active = ?, deactivated_by = ?, updated_at = ? WHERE id = ?
	`, active, source, now.Unix(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReactivateIfBilling re-enables an organization only when billing was the
// reason it was switched off.
func (r *OrganizationRepository) ReactivateIfBilling(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organizations SET active = 1, deactivated_by = '', updated_at = ?
		WHERE id = ? AND active = 0 AND deactivated_by = ?
	`, now.Unix(), id, models.DeactivatedByBilling)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeactivateIfActive switches an active organization off, recording
// source. An organization that is already off keeps its original source.
func (r *OrganizationRepository) DeactivateIfActive(ctx context.Context, id, source string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organizations SET active = 0, deactivated_by = ?, updated_at = ? WHERE id = ? AND active = 1
	`, source, now.Unix(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *OrganizationRepository) SetUnlimited(ctx context.Context, id string, unlimited bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE organizations SET unlimited_override = ?, updated_at = ? WHERE id = ?`, unlimited, now.Unix(), id)
	return err
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateTx(ctx context.Context, tx *sql.Tx, user *models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, password_hash, full_name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.OrganizationID, user.Email, user.PasswordHash, user.FullName, user.Role, user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, `WHERE id = ?`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.get(ctx, `WHERE email = ?`, email)
}

func (r *UserRepository) get(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	var created, updated int64
	var deleted sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, password_hash, full_name, role, created_at, updated_at, deleted_at
		FROM users `+where, arg).Scan(&user.ID, &user.OrganizationID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &created, &updated, &deleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	user.CreatedAt = fromUnix(created)
	user.UpdatedAt = fromUnix(updated)
	user.DeletedAt = nullTime(deleted)
	return user, nil
}

// SoftDeleteTx marks a member as removed. It reports false when the user
// does not exist in the organization or is already gone.
func (r *UserRepository) SoftDeleteTx(ctx context.Context, tx *sql.Tx, orgID, id string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND organization_id = ? AND deleted_at IS NULL
	`, now.Unix(), now.Unix(), id, orgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
