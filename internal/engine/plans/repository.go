package plans

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const planColumns = `id, name, price_monthly, price_yearly, currency, max_patients, max_users, max_appointments, features, active, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, p *Plan) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.PriceMonthly, p.PriceYearly, p.Currency, p.Limits.MaxPatients, p.Limits.MaxUsers, p.Limits.MaxAppointments,
		string(features), p.Active, p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	return err
}

func (r *Repository) Update(ctx context.Context, p *Plan) (bool, error) {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE plans SET name = ?, price_monthly = ?, price_yearly = ?, currency = ?, max_patients = ?, max_users = ?,
			max_appointments = ?, features = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.PriceMonthly, p.PriceYearly, p.Currency, p.Limits.MaxPatients, p.Limits.MaxUsers, p.Limits.MaxAppointments,
		string(features), p.Active, p.UpdatedAt.Unix(), p.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes a plan unless a subscription references it. The check and
// the delete are one statement.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM plans WHERE id = ? AND NOT EXISTS (SELECT 1 FROM subscriptions WHERE plan_id = ?)
	`, id, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Plan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, includeInactive bool) ([]*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY price_monthly, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row scanner) (*Plan, error) {
	var p Plan
	var features string
	var created, updated int64
	err := row.Scan(&p.ID, &p.Name, &p.PriceMonthly, &p.PriceYearly, &p.Currency, &p.Limits.MaxPatients, &p.Limits.MaxUsers,
		&p.Limits.MaxAppointments, &features, &p.Active, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}
