package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
)

var usageColumns = map[models.Resource]string{
	models.ResourcePatient:     "patients",
	models.ResourceUser:        "users",
	models.ResourceAppointment: "appointments",
}

// UsageRepository stores the per-organization counter cache. Monthly columns
// roll over lazily: any write in a new period zeroes them first.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// periodValue is the column's value as seen from period: stale monthly
// counts read as zero.
func periodValue(r models.Resource) string {
	col := usageColumns[r]
	if r.Monthly() {
		return fmt.Sprintf("(CASE WHEN period = @period THEN %s ELSE 0 END)", col)
	}
	return col
}

// assignments builds the SET list for the three counters, rolling monthly
// ones over and giving target the expression expr.
func assignments(target models.Resource, expr string) string {
	var parts []string
	for _, res := range []models.Resource{models.ResourcePatient, models.ResourceUser, models.ResourceAppointment} {
		value := periodValue(res)
		if res == target {
			value = expr
		}
		parts = append(parts, usageColumns[res]+" = "+value)
	}
	return strings.Join(parts, ",\n\t\t\t")
}

func (r *UsageRepository) Ensure(ctx context.Context, q database.Querier, orgID string, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO usage_counters (organization_id, patients, users, appointments, period, last_reset_at)
		VALUES (?, 0, 0, 0, ?, ?)
	`, orgID, models.PeriodKey(now), now.Unix())
	return err
}

// IncrementWithCeiling adds delta to the resource counter unless the result
// would pass limit. A negative limit means unlimited. The check and the
// write are a single statement.
func (r *UsageRepository) IncrementWithCeiling(ctx context.Context, q database.Querier, orgID string, res models.Resource, delta, limit int64, now time.Time) (bool, error) {
	col, ok := usageColumns[res]
	if !ok {
		return false, fmt.Errorf("unknown resource %q", res)
	}
	query := fmt.Sprintf(`
		UPDATE usage_counters SET
			%s,
			last_reset_at = CASE WHEN period = @period THEN last_reset_at ELSE @now END,
			period = @period
		WHERE organization_id = @org AND (@limit < 0 OR %s + @delta <= @limit)
	`, assignments(res, periodValue(res)+" + @delta"), periodValue(res))

	result, err := q.ExecContext(ctx, query,
		sql.Named("period", models.PeriodKey(now)),
		sql.Named("now", now.Unix()),
		sql.Named("delta", delta),
		sql.Named("limit", limit),
		sql.Named("org", orgID))
	if err != nil {
		return false, fmt.Errorf("increment %s: %w", col, err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// Set overwrites one counter, typically with a fresh recount.
func (r *UsageRepository) Set(ctx context.Context, q database.Querier, orgID string, res models.Resource, value int64, now time.Time) error {
	if _, ok := usageColumns[res]; !ok {
		return fmt.Errorf("unknown resource %q", res)
	}
	query := fmt.Sprintf(`
		UPDATE usage_counters SET
			%s,
			last_reset_at = CASE WHEN period = @period THEN last_reset_at ELSE @now END,
			period = @period
		WHERE organization_id = @org
	`, assignments(res, "@value"))

	_, err := q.ExecContext(ctx, query,
		sql.Named("period", models.PeriodKey(now)),
		sql.Named("now", now.Unix()),
		sql.Named("value", value),
		sql.Named("org", orgID))
	return err
}

// Decrement lowers a standing counter without going below zero.
func (r *UsageRepository) Decrement(ctx context.Context, q database.Querier, orgID string, res models.Resource) error {
	col, ok := usageColumns[res]
	if !ok {
		return fmt.Errorf("unknown resource %q", res)
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE usage_counters SET %s = MAX(%s - 1, 0) WHERE organization_id = ?`, col, col), orgID)
	return err
}

// Get returns the counter as seen at now; monthly values from an earlier
// period read as zero. A missing row yields a zero counter.
func (r *UsageRepository) Get(ctx context.Context, q database.Querier, orgID string, now time.Time) (*models.UsageCounter, error) {
	if q == nil {
		q = r.db
	}
	u := &models.UsageCounter{OrganizationID: orgID, Period: models.PeriodKey(now)}
	var period string
	var lastReset int64
	err := q.QueryRowContext(ctx, `
		SELECT patients, users, appointments, period, last_reset_at FROM usage_counters WHERE organization_id = ?
	`, orgID).Scan(&u.Patients, &u.Users, &u.Appointments, &period, &lastReset)
	if err == sql.ErrNoRows {
		u.LastResetAt = models.PeriodStart(now)
		return u, nil
	}
	if err != nil {
		return nil, err
	}
	u.LastResetAt = fromUnix(lastReset)
	if period != u.Period {
		u.Patients = 0
		u.Appointments = 0
		u.LastResetAt = models.PeriodStart(now)
	}
	return u, nil
}

// ResetMonthly zeroes monthly counters of every organization still in an
// earlier period.
func (r *UsageRepository) ResetMonthly(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE usage_counters SET patients = 0, appointments = 0, period = ?, last_reset_at = ?
		WHERE period <> ?
	`, models.PeriodKey(now), now.Unix(), models.PeriodKey(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
