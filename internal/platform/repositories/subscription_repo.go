package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
)

// ErrNoChange lets a mutation callback decline to write.
var ErrNoChange = errors.New("no change")

// ErrVersionConflict is returned when every compare-and-swap attempt lost
// to a concurrent writer.
var ErrVersionConflict = errors.New("subscription modified concurrently")

const maxMutateAttempts = 5

const subscriptionColumns = `
	id, organization_id, plan_id, status, billing_cycle, amount, currency, start_date, end_date, trial_end_date,
	gateway_customer_id, gateway_subscription_id, payment_method, last_payment_date, next_payment_date,
	auto_renew, cancel_at_period_end, cancelled_at, cancellation_reason, last_event_at, version, created_at, updated_at`

type SubscriptionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, now: time.Now}
}

func (r *SubscriptionRepository) Create(ctx context.Context, q database.Querier, sub *models.Subscription) error {
	if q == nil {
		q = r.db
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.OrganizationID, stringOrNil(sub.PlanID), sub.Status, sub.BillingCycle, sub.Amount, sub.Currency,
		sub.StartDate.Unix(), sub.EndDate.Unix(), unixOrNil(sub.TrialEndDate),
		stringOrNil(sub.GatewayCustomerID), stringOrNil(sub.GatewaySubscriptionID), sub.PaymentMethod,
		unixOrNil(sub.LastPaymentDate), unixOrNil(sub.NextPaymentDate), sub.AutoRenew, sub.CancelAtPeriodEnd,
		unixOrNil(sub.CancelledAt), sub.CancellationReason, unixOrNil(sub.LastEventAt), sub.Version,
		sub.CreatedAt.Unix(), sub.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByOrg(ctx context.Context, orgID string) (*models.Subscription, error) {
	return r.getOne(ctx, r.db, `WHERE organization_id = ?`, orgID)
}

func (r *SubscriptionRepository) GetByGatewayID(ctx context.Context, gatewaySubID string) (*models.Subscription, error) {
	return r.getOne(ctx, r.db, `WHERE gateway_subscription_id = ?`, gatewaySubID)
}

func (r *SubscriptionRepository) getOne(ctx context.Context, q database.Querier, where string, arg interface{}) (*models.Subscription, error) {
	row := q.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions `+where, arg)
	sub, err := scanSubscription(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		s                            models.Subscription
		planID, gwCustomer, gwSub    sql.NullString
		start, end, created, updated int64
		trialEnd, lastPay, nextPay   sql.NullInt64
		cancelledAt, lastEvent       sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.OrganizationID, &planID, &s.Status, &s.BillingCycle, &s.Amount, &s.Currency,
		&start, &end, &trialEnd, &gwCustomer, &gwSub, &s.PaymentMethod, &lastPay, &nextPay,
		&s.AutoRenew, &s.CancelAtPeriodEnd, &cancelledAt, &s.CancellationReason, &lastEvent, &s.Version,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	s.PlanID = planID.String
	s.GatewayCustomerID = gwCustomer.String
	s.GatewaySubscriptionID = gwSub.String
	s.StartDate = fromUnix(start)
	s.EndDate = fromUnix(end)
	s.TrialEndDate = nullTime(trialEnd)
	s.LastPaymentDate = nullTime(lastPay)
	s.NextPaymentDate = nullTime(nextPay)
	s.CancelledAt = nullTime(cancelledAt)
	s.LastEventAt = nullTime(lastEvent)
	s.CreatedAt = fromUnix(created)
	s.UpdatedAt = fromUnix(updated)
	return &s, nil
}

// Mutate applies fn to the organization's current record and writes it back
// only if nobody else wrote in between. On a lost race the record is
// re-read and fn runs again against the fresh state.
func (r *SubscriptionRepository) Mutate(ctx context.Context, orgID string, fn func(*models.Subscription) error) (*models.Subscription, error) {
	return r.mutate(ctx, r.db, `WHERE organization_id = ?`, orgID, fn)
}

// MutateTx is Mutate inside the caller's transaction.
func (r *SubscriptionRepository) MutateTx(ctx context.Context, tx *sql.Tx, orgID string, fn func(*models.Subscription) error) (*models.Subscription, error) {
	return r.mutate(ctx, tx, `WHERE organization_id = ?`, orgID, fn)
}

// MutateByGatewayID is Mutate keyed by the gateway subscription id.
func (r *SubscriptionRepository) MutateByGatewayID(ctx context.Context, gatewaySubID string, fn func(*models.Subscription) error) (*models.Subscription, error) {
	return r.mutate(ctx, r.db, `WHERE gateway_subscription_id = ?`, gatewaySubID, fn)
}

func (r *SubscriptionRepository) mutate(ctx context.Context, q database.Querier, where string, arg interface{}, fn func(*models.Subscription) error) (*models.Subscription, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		current, err := r.getOne(ctx, q, where, arg)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperrors.ErrNotFound
		}

		next := *current
		if err := fn(&next); err != nil {
			if errors.Is(err, ErrNoChange) {
				return current, nil
			}
			return nil, err
		}
		if next.EndDate.Before(next.StartDate) {
			return nil, fmt.Errorf("subscription %s: end date before start date", current.ID)
		}

		next.UpdatedAt = r.now().UTC()
		ok, err := r.compareAndSwap(ctx, q, &next, current.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			next.Version = current.Version + 1
			return &next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, ErrVersionConflict
}

func (r *SubscriptionRepository) compareAndSwap(ctx context.Context, q database.Querier, s *models.Subscription, expected int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET
			plan_id = ?, status = ?, billing_cycle = ?, amount = ?, currency = ?, start_date = ?, end_date = ?,
			trial_end_date = ?, gateway_customer_id = ?, gateway_subscription_id = ?, payment_method = ?,
			last_payment_date = ?, next_payment_date = ?, auto_renew = ?, cancel_at_period_end = ?,
			cancelled_at = ?, cancellation_reason = ?, last_event_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, stringOrNil(s.PlanID), s.Status, s.BillingCycle, s.Amount, s.Currency, s.StartDate.Unix(), s.EndDate.Unix(),
		unixOrNil(s.TrialEndDate), stringOrNil(s.GatewayCustomerID), stringOrNil(s.GatewaySubscriptionID), s.PaymentMethod,
		unixOrNil(s.LastPaymentDate), unixOrNil(s.NextPaymentDate), s.AutoRenew, s.CancelAtPeriodEnd,
		unixOrNil(s.CancelledAt), s.CancellationReason, unixOrNil(s.LastEventAt), s.UpdatedAt.Unix(),
		s.ID, expected)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireIfDue flips an entitled record whose period has ended to inactive.
// It is a no-op when another caller already did so.
func (r *SubscriptionRepository) ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status IN (?, ?) AND end_date < ?
	`, models.StatusInactive, now.Unix(), id, models.StatusActive, models.StatusTrialing, now.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListExpired returns entitled records whose period ended before now.
func (r *SubscriptionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status IN (?, ?) AND end_date < ?
		ORDER BY end_date LIMIT ?
	`, models.StatusActive, models.StatusTrialing, now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CountByPlan counts records that still reference planID.
func (r *SubscriptionRepository) CountByPlan(ctx context.Context, planID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE plan_id = ?`, planID).Scan(&n)
	return n, err
}
