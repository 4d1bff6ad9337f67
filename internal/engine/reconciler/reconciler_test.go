package reconciler

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"praxis/internal/engine/gateway"
	"praxis/internal/engine/plans"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/config"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

const testSecret = "whsec_test_secret"

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Invalidate(orgID string) {
	c.invalidated = append(c.invalidated, orgID)
}

type fixture struct {
	db    *sql.DB
	subs  *repositories.SubscriptionRepository
	orgs  *repositories.OrganizationRepository
	cache *recordingCache
	rec   *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:    db,
		subs:  repositories.NewSubscriptionRepository(db),
		orgs:  repositories.NewOrganizationRepository(db),
		cache: &recordingCache{},
	}
	prices := gateway.NewPriceBook(map[string]config.PriceConfig{
		"basic":        {Monthly: "price_basic_m", Yearly: "price_basic_y"},
		"professional": {Monthly: "price_pro_m", Yearly: "price_pro_y"},
	})
	planSvc := plans.NewService(plans.NewRepository(db), "usd")
	f.rec = New(NewVerifier(testSecret), f.subs, f.orgs, audit.NewLogger(db), prices, planSvc, f.cache, NewDedupWindow(100, time.Hour))
	f.rec.SetClock(func() time.Time { return base.AddDate(0, 0, 5) })

	ctx := context.Background()
	require.NoError(t, database.InTx(ctx, db, func(tx *sql.Tx) error {
		return f.orgs.CreateTx(ctx, tx, &models.Organization{
			ID: "org_1", Slug: "org-1", Name: "Clinic", Active: true, CreatedAt: base, UpdatedAt: base,
		})
	}))
	end := base.AddDate(0, 1, 0)
	require.NoError(t, f.subs.Create(ctx, nil, &models.Subscription{
		ID:                    "sub_1",
		OrganizationID:        "org_1",
		PlanID:                "basic",
		Status:                models.StatusActive,
		BillingCycle:          models.CycleMonthly,
		Amount:                2900,
		Currency:              "usd",
		StartDate:             base,
		EndDate:               end,
		GatewayCustomerID:     "cus_1",
		GatewaySubscriptionID: "sub_gw_1",
		PaymentMethod:         models.PaymentMethodCard,
		NextPaymentDate:       &end,
		AutoRenew:             true,
		CreatedAt:             base,
		UpdatedAt:             base,
	}))
	return f
}

func (f *fixture) current(t *testing.T) *models.Subscription {
	t.Helper()
	sub, err := f.subs.GetByOrg(context.Background(), "org_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func ptr(t time.Time) *time.Time { return &t }

func changed(id string, created time.Time, status string, periodEnd time.Time) SubscriptionChanged {
	return SubscriptionChanged{
		EventMeta:        EventMeta{ID: id, Type: TypeSubscriptionUpdated, GatewaySubscriptionID: "sub_gw_1", Created: created},
		Status:           status,
		CustomerID:       "cus_1",
		PriceID:          "price_basic_m",
		CurrentPeriodEnd: ptr(periodEnd),
	}
}

func TestApply_ReplayIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := changed("evt_1", base.AddDate(0, 0, 2), "past_due", base.AddDate(0, 1, 0))

	res, err := f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "org_1", res.OrganizationID)
	version := f.current(t).Version

	res, err = f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, version, f.current(t).Version)
	assert.Equal(t, []string{"org_1"}, f.cache.invalidated)
}

func TestApply_RedeliveryAfterWindowIsUnchanged(t *testing.T) {
	f := newFixture(t)
	f.rec.dedup = nil
	ctx := context.Background()
	ev := changed("evt_1", base.AddDate(0, 0, 2), "past_due", base.AddDate(0, 1, 0))

	_, err := f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	version := f.current(t).Version

	res, err := f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, version, f.current(t).Version)
}

func TestApply_OlderUpdateAfterNewerIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	renewedEnd := base.AddDate(0, 2, 0)

	newer := changed("evt_new", base.AddDate(0, 1, 0), "active", renewedEnd)
	res, err := f.rec.Apply(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	older := changed("evt_old", base.AddDate(0, 0, 28), "past_due", base.AddDate(0, 1, 0))
	res, err = f.rec.Apply(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)

	sub := f.current(t)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.True(t, sub.EndDate.Equal(renewedEnd))
	require.NotNil(t, sub.NextPaymentDate)
	assert.True(t, sub.NextPaymentDate.Equal(renewedEnd))
}

func TestApply_PriceChangeSyncsPlan(t *testing.T) {
	f := newFixture(t)
	ev := changed("evt_1", base.AddDate(0, 0, 3), "active", base.AddDate(0, 1, 0))
	ev.PriceID = "price_pro_y"

	_, err := f.rec.Apply(context.Background(), ev)
	require.NoError(t, err)

	sub := f.current(t)
	assert.Equal(t, "professional", sub.PlanID)
	assert.Equal(t, models.CycleYearly, sub.BillingCycle)
	assert.Equal(t, int64(79000), sub.Amount)
}

func TestApply_CancelAtPeriodEndDisablesRenewal(t *testing.T) {
	f := newFixture(t)
	ev := changed("evt_1", base.AddDate(0, 0, 3), "active", base.AddDate(0, 1, 0))
	ev.CancelAtPeriodEnd = true

	_, err := f.rec.Apply(context.Background(), ev)
	require.NoError(t, err)

	sub := f.current(t)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.False(t, sub.AutoRenew)
	assert.Equal(t, models.StatusActive, sub.Status)
}

func TestApply_DeletedDeactivatesOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ended := base.AddDate(0, 0, 10)

	res, err := f.rec.Apply(ctx, SubscriptionDeleted{
		EventMeta: EventMeta{ID: "evt_del", Type: TypeSubscriptionDeleted, GatewaySubscriptionID: "sub_gw_1", Created: ended},
		EndedAt:   ended,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	sub := f.current(t)
	assert.Equal(t, models.StatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	assert.False(t, sub.AutoRenew)

	org, err := f.orgs.GetByID(ctx, "org_1")
	require.NoError(t, err)
	assert.False(t, org.Active)
	assert.Equal(t, models.DeactivatedByBilling, org.DeactivatedBy)

	// A late update from before the deletion must not revive the record.
	res, err = f.rec.Apply(ctx, changed("evt_late", base.AddDate(0, 0, 9), "active", base.AddDate(0, 2, 0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)
	assert.Equal(t, models.StatusCancelled, f.current(t).Status)
}

func TestApply_DeletedKeepsAdminDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orgs.SetActive(ctx, "org_1", false, models.DeactivatedByAdmin, base)
	require.NoError(t, err)

	_, err = f.rec.Apply(ctx, SubscriptionDeleted{
		EventMeta: EventMeta{ID: "evt_del", Type: TypeSubscriptionDeleted, GatewaySubscriptionID: "sub_gw_1", Created: base.AddDate(0, 0, 1)},
		EndedAt:   base.AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	org, err := f.orgs.GetByID(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, models.DeactivatedByAdmin, org.DeactivatedBy)
}

func TestApply_PaymentExtendsAndReactivates(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		wantActive bool
	}{
		{name: "billing deactivation is lifted", source: models.DeactivatedByBilling, wantActive: true},
		{name: "admin deactivation stays", source: models.DeactivatedByAdmin, wantActive: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_, err := f.orgs.SetActive(ctx, "org_1", false, tt.source, base)
			require.NoError(t, err)
			_, err = f.subs.Mutate(ctx, "org_1", func(s *models.Subscription) error {
				s.Status = models.StatusPastDue
				return nil
			})
			require.NoError(t, err)

			periodEnd := base.AddDate(0, 2, 0)
			paidAt := base.AddDate(0, 1, 1)
			_, err = f.rec.Apply(ctx, PaymentSucceeded{
				EventMeta: EventMeta{ID: "evt_pay", Type: TypeInvoicePaid, GatewaySubscriptionID: "sub_gw_1", Created: paidAt},
				InvoiceID: "in_1",
				Amount:    2900,
				Currency:  "usd",
				PaidAt:    paidAt,
				PeriodEnd: &periodEnd,
			})
			require.NoError(t, err)

			sub := f.current(t)
			assert.Equal(t, models.StatusActive, sub.Status)
			assert.True(t, sub.EndDate.Equal(periodEnd))
			require.NotNil(t, sub.LastPaymentDate)
			assert.True(t, sub.LastPaymentDate.Equal(paidAt))

			org, err := f.orgs.GetByID(ctx, "org_1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantActive, org.Active)
		})
	}
}

func TestApply_PaymentWithoutPeriodAdvancesOnce(t *testing.T) {
	f := newFixture(t)
	f.rec.dedup = nil
	ctx := context.Background()
	paidAt := base.AddDate(0, 1, 0)
	ev := PaymentSucceeded{
		EventMeta: EventMeta{ID: "evt_pay", Type: TypeInvoicePaid, GatewaySubscriptionID: "sub_gw_1", Created: paidAt},
		PaidAt:    paidAt,
	}

	_, err := f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	_, err = f.rec.Apply(ctx, ev)
	require.NoError(t, err)

	assert.True(t, f.current(t).EndDate.Equal(base.AddDate(0, 2, 0)))
}

func TestApply_PaymentFailedMarksPastDue(t *testing.T) {
	f := newFixture(t)
	res, err := f.rec.Apply(context.Background(), PaymentFailed{
		EventMeta: EventMeta{ID: "evt_fail", Type: TypeInvoiceFailed, GatewaySubscriptionID: "sub_gw_1", Created: base.AddDate(0, 1, 0)},
		InvoiceID: "in_2",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, models.StatusPastDue, f.current(t).Status)
}

func TestApply_UnknownSubscriptionIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ev := changed("evt_x", base, "active", base.AddDate(0, 1, 0))
	ev.GatewaySubscriptionID = "sub_unknown"

	_, _, err := f.rec.applyChanged(context.Background(), ev)
	assert.ErrorIs(t, err, apperrors.ErrWebhookUnmatched)

	res, err := f.rec.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
	assert.Empty(t, f.cache.invalidated)
}

func signed(t *testing.T, payload map[string]interface{}) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   raw,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func subscriptionEvent(id, eventType, status string, created, periodEnd time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2020-08-27",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                   "sub_gw_1",
				"object":               "subscription",
				"customer":             "cus_1",
				"status":               status,
				"cancel_at_period_end": false,
				"items": map[string]interface{}{
					"data": []interface{}{
						map[string]interface{}{
							"current_period_end": periodEnd.Unix(),
							"price":              map[string]interface{}{"id": "price_basic_m"},
						},
					},
				},
			},
		},
	}
}

func TestHandle_SignedDelivery(t *testing.T) {
	f := newFixture(t)
	payload, header := signed(t, subscriptionEvent("evt_signed", TypeSubscriptionUpdated, "unpaid", base.AddDate(0, 0, 4), base.AddDate(0, 1, 0)))

	res, err := f.rec.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, models.StatusUnpaid, f.current(t).Status)
}

func TestHandle_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	payload, _ := signed(t, subscriptionEvent("evt_1", TypeSubscriptionUpdated, "unpaid", base, base.AddDate(0, 1, 0)))

	_, err := f.rec.Handle(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, apperrors.ErrWebhookSignatureInvalid)

	_, err = f.rec.Handle(context.Background(), payload, "")
	assert.ErrorIs(t, err, apperrors.ErrWebhookSignatureInvalid)
	assert.Equal(t, models.StatusActive, f.current(t).Status)
}

func TestHandle_IgnoresUnsupportedTypes(t *testing.T) {
	f := newFixture(t)
	payload, header := signed(t, map[string]interface{}{
		"id":      "evt_c",
		"object":  "event",
		"type":    "customer.created",
		"created": base.Unix(),
		"data":    map[string]interface{}{"object": map[string]interface{}{"id": "cus_1"}},
	})

	res, err := f.rec.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}
