package repositories

import (
	"context"
	"database/sql"
	"time"

	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, q database.Querier, p *models.Payment) error {
	if q == nil {
		q = r.db
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, organization_id, subscription_id, plan_id, billing_cycle, amount, currency, method, reference, recorded_by, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.OrganizationID, p.SubscriptionID, p.PlanID, p.BillingCycle, p.Amount, p.Currency, p.Method, p.Reference, p.RecordedBy, p.PaidAt.Unix())
	return err
}

func (r *PaymentRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, subscription_id, plan_id, billing_cycle, amount, currency, method, reference, recorded_by, paid_at
		FROM payments WHERE organization_id = ? ORDER BY paid_at DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		var paid int64
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.SubscriptionID, &p.PlanID, &p.BillingCycle, &p.Amount, &p.Currency, &p.Method, &p.Reference, &p.RecordedBy, &paid); err != nil {
			return nil, err
		}
		p.PaidAt = time.Unix(paid, 0).UTC()
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
