package subscriptions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/config"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

type fixture struct {
	db   *sql.DB
	orgs *repositories.OrganizationRepository
	subs *repositories.SubscriptionRepository
	svc  *Service
	now  time.Time
}

func newFixture(t *testing.T, created time.Time) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:   db,
		orgs: repositories.NewOrganizationRepository(db),
		subs: repositories.NewSubscriptionRepository(db),
		now:  created,
	}
	cfg := config.Default().Billing
	f.svc = NewService(f.orgs, f.subs, audit.NewLogger(db), NewStatusCache(100, time.Minute), cfg)
	f.svc.SetClock(func() time.Time { return f.now })

	err = database.InTx(context.Background(), db, func(tx *sql.Tx) error {
		return f.orgs.CreateTx(context.Background(), tx, &models.Organization{
			ID: "org_1", Slug: "org-1", Name: "Clinic", Active: true, CreatedAt: created, UpdatedAt: created,
		})
	})
	require.NoError(t, err)
	return f
}

func TestStatus_ImplicitTrialScenario(t *testing.T) {
	f := newFixture(t, base)
	ctx := context.Background()

	f.now = base.AddDate(0, 0, 10)
	out, err := f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	assert.True(t, out.Active)
	assert.Equal(t, models.StatusTrialing, out.Status)
	assert.Equal(t, 4, out.DaysRemaining)

	f.now = base.AddDate(0, 0, 15)
	out, err = f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	assert.False(t, out.Active)
	assert.Equal(t, ReasonNoSubscription, out.Reason)

	_, err = f.svc.Require(ctx, "org_1")
	var inactive *apperrors.SubscriptionInactiveError
	require.ErrorAs(t, err, &inactive)
	assert.Equal(t, apperrors.KindBilling, inactive.Kind)
}

func TestStatus_LazyExpiryPersistsOnce(t *testing.T) {
	f := newFixture(t, base)
	ctx := context.Background()
	end := base.AddDate(0, 1, 0)
	require.NoError(t, f.subs.Create(ctx, nil, &models.Subscription{
		ID: "sub_1", OrganizationID: "org_1", PlanID: "basic", Status: models.StatusActive,
		BillingCycle: models.CycleMonthly, Currency: "usd", StartDate: base, EndDate: end,
		CreatedAt: base, UpdatedAt: base,
	}))

	f.now = end.Add(time.Hour)
	out, err := f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	assert.False(t, out.Active)
	assert.Equal(t, ReasonSubscriptionExpired, out.Reason)

	stored, err := f.subs.GetByOrg(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, stored.Status)
	version := stored.Version

	out, err = f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	assert.False(t, out.Active)
	assert.Equal(t, "subscription inactive", out.Reason)

	stored, err = f.subs.GetByOrg(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, version, stored.Version, "second evaluation must not write")

	logs, err := audit.NewLogger(f.db).List(ctx, "org_1", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStatus_CacheInvalidation(t *testing.T) {
	f := newFixture(t, base)
	ctx := context.Background()
	f.now = base.AddDate(0, 0, 1)

	out, err := f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	require.True(t, out.Active)

	_, err = f.orgs.SetActive(ctx, "org_1", false, models.DeactivatedByAdmin, f.now)
	require.NoError(t, err)

	out, err = f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	assert.True(t, out.Active, "cached until invalidated")

	f.svc.Invalidate("org_1")
	out, err = f.svc.Status(ctx, "org_1")
	require.NoError(t, err)
	assert.False(t, out.Active)
	assert.Equal(t, apperrors.KindOrganizationDeactivated, out.Kind)
}

func TestStatus_UnknownOrganization(t *testing.T) {
	f := newFixture(t, base)
	_, err := f.svc.Status(context.Background(), "org_missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
