package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedOrg(t *testing.T, db *sql.DB, id string, created time.Time) {
	t.Helper()
	repo := NewOrganizationRepository(db)
	err := database.InTx(context.Background(), db, func(tx *sql.Tx) error {
		return repo.CreateTx(context.Background(), tx, &models.Organization{
			ID: id, Slug: id, Name: id, Active: true, CreatedAt: created, UpdatedAt: created,
		})
	})
	require.NoError(t, err)
}

func seedSubscription(t *testing.T, db *sql.DB, orgID string, status models.SubscriptionStatus, end time.Time) *models.Subscription {
	t.Helper()
	start := end.AddDate(0, -1, 0)
	sub := &models.Subscription{
		ID:             "sub_" + orgID,
		OrganizationID: orgID,
		PlanID:         "basic",
		Status:         status,
		BillingCycle:   models.CycleMonthly,
		Amount:         2900,
		Currency:       "usd",
		StartDate:      start,
		EndDate:        end,
		AutoRenew:      true,
		CreatedAt:      start,
		UpdatedAt:      start,
	}
	require.NoError(t, NewSubscriptionRepository(db).Create(context.Background(), nil, sub))
	return sub
}

func TestOrganizationRepository_ReactivateOnlyBilling(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	seedOrg(t, db, "org_a", now)
	seedOrg(t, db, "org_b", now)
	repo := NewOrganizationRepository(db)

	_, err := repo.SetActive(ctx, "org_a", false, models.DeactivatedByBilling, now)
	require.NoError(t, err)
	_, err = repo.SetActive(ctx, "org_b", false, models.DeactivatedByAdmin, now)
	require.NoError(t, err)

	ok, err := repo.ReactivateIfBilling(ctx, "org_a", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ReactivateIfBilling(ctx, "org_b", now)
	require.NoError(t, err)
	assert.False(t, ok, "admin deactivation must survive billing reactivation")

	b, err := repo.GetByID(ctx, "org_b")
	require.NoError(t, err)
	assert.False(t, b.Active)

	missing, err := repo.GetByID(ctx, "org_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSubscriptionRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedOrg(t, db, "org_1", end.AddDate(0, -2, 0))
	seedSubscription(t, db, "org_1", models.StatusActive, end)

	repo := NewSubscriptionRepository(db)
	got, err := repo.GetByOrg(ctx, "org_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "basic", got.PlanID)
	assert.Equal(t, end, got.EndDate)
	assert.Equal(t, int64(1), got.Version)
	assert.Empty(t, got.GatewaySubscriptionID)
	assert.Nil(t, got.TrialEndDate)
}

func TestSubscriptionRepository_MutateRetriesOnConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	end := time.Now().Add(24 * time.Hour)
	seedOrg(t, db, "org_1", time.Now())
	seedSubscription(t, db, "org_1", models.StatusActive, end)
	repo := NewSubscriptionRepository(db)

	calls := 0
	updated, err := repo.Mutate(ctx, "org_1", func(s *models.Subscription) error {
		calls++
		if calls == 1 {
			// A concurrent writer bumps the version under our feet.
			_, err := repo.Mutate(ctx, "org_1", func(inner *models.Subscription) error {
				inner.PaymentMethod = models.PaymentMethodCard
				return nil
			})
			require.NoError(t, err)
		}
		s.Status = models.StatusPastDue
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, models.StatusPastDue, updated.Status)
	assert.Equal(t, models.PaymentMethodCard, updated.PaymentMethod, "retry must see the concurrent write")
	assert.Equal(t, int64(3), updated.Version)
}

func TestSubscriptionRepository_MutateNoChangeAndMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedOrg(t, db, "org_1", time.Now())
	seedSubscription(t, db, "org_1", models.StatusActive, time.Now().Add(time.Hour))
	repo := NewSubscriptionRepository(db)

	got, err := repo.Mutate(ctx, "org_1", func(*models.Subscription) error { return ErrNoChange })
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	_, err = repo.MutateByGatewayID(ctx, "sub_unknown", func(*models.Subscription) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSubscriptionRepository_ExpireIfDueIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	seedOrg(t, db, "org_1", now.AddDate(0, -2, 0))
	sub := seedSubscription(t, db, "org_1", models.StatusActive, now.Add(-time.Hour))
	repo := NewSubscriptionRepository(db)

	expired, err := repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	ok, err := repo.ExpireIfDue(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExpireIfDue(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByOrg(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, got.Status)
}

func TestUsageRepository_IncrementWithCeiling(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	seedOrg(t, db, "org_1", now)
	repo := NewUsageRepository(db)
	require.NoError(t, repo.Ensure(ctx, db, "org_1", now))

	for i := 0; i < 3; i++ {
		ok, err := repo.IncrementWithCeiling(ctx, db, "org_1", models.ResourceUser, 1, 3, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := repo.IncrementWithCeiling(ctx, db, "org_1", models.ResourceUser, 1, 3, now)
	require.NoError(t, err)
	assert.False(t, ok, "fourth seat must be refused")

	ok, err = repo.IncrementWithCeiling(ctx, db, "org_1", models.ResourcePatient, 1, -1, now)
	require.NoError(t, err)
	assert.True(t, ok, "negative limit is unlimited")

	u, err := repo.Get(ctx, nil, "org_1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.Users)
	assert.Equal(t, int64(1), u.Patients)
}

func TestUsageRepository_MonthlyRollover(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	may := time.Date(2026, 5, 31, 23, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	seedOrg(t, db, "org_1", may)
	repo := NewUsageRepository(db)
	require.NoError(t, repo.Ensure(ctx, db, "org_1", may))

	require.NoError(t, repo.Set(ctx, db, "org_1", models.ResourcePatient, 100, may))
	require.NoError(t, repo.Set(ctx, db, "org_1", models.ResourceUser, 2, may))

	ok, err := repo.IncrementWithCeiling(ctx, db, "org_1", models.ResourcePatient, 1, 100, may)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IncrementWithCeiling(ctx, db, "org_1", models.ResourcePatient, 1, 100, june)
	require.NoError(t, err)
	assert.True(t, ok, "a new month starts from zero")

	u, err := repo.Get(ctx, nil, "org_1", june)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Patients)
	assert.Equal(t, int64(2), u.Users, "seats do not reset")
	assert.Equal(t, "2026-06", u.Period)

	require.NoError(t, repo.Decrement(ctx, db, "org_1", models.ResourceUser))
	require.NoError(t, repo.Decrement(ctx, db, "org_1", models.ResourceUser))
	require.NoError(t, repo.Decrement(ctx, db, "org_1", models.ResourceUser))
	u, err = repo.Get(ctx, nil, "org_1", june)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Users, "decrement floors at zero")
}

func TestUsageRepository_ResetMonthly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	may := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	seedOrg(t, db, "org_1", may)
	repo := NewUsageRepository(db)
	require.NoError(t, repo.Ensure(ctx, db, "org_1", may))
	require.NoError(t, repo.Set(ctx, db, "org_1", models.ResourceAppointment, 40, may))

	n, err := repo.ResetMonthly(ctx, may.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.ResetMonthly(ctx, may.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
