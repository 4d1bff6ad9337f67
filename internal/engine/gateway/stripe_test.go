package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"praxis/internal/platform/config"
	"praxis/internal/platform/models"
)

func TestSwapPriceProratesFirstItem(t *testing.T) {
	g := NewStripeGateway("sk_test", time.Second)
	g.getSubscription = func(id string, p *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		assert.Equal(t, "sub_123", id)
		require.NotNil(t, p.Context)
		_, hasDeadline := p.Context.Deadline()
		assert.True(t, hasDeadline, "calls must be bounded")
		return &stripe.Subscription{ID: id, Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{ID: "si_1"}}}}, nil
	}
	var sent *stripe.SubscriptionParams
	g.updateSubscription = func(id string, p *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		sent = p
		return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive, Customer: &stripe.Customer{ID: "cus_1"}}, nil
	}

	rs, err := g.SwapPrice(context.Background(), "sub_123", "price_pro_m")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", rs.CustomerID)
	assert.Equal(t, "active", rs.Status)

	require.NotNil(t, sent)
	require.Len(t, sent.Items, 1)
	assert.Equal(t, "si_1", *sent.Items[0].ID)
	assert.Equal(t, "price_pro_m", *sent.Items[0].Price)
	assert.Equal(t, "create_prorations", *sent.ProrationBehavior)
}

func TestSwapPriceSurfacesErrors(t *testing.T) {
	g := NewStripeGateway("sk_test", time.Second)
	g.getSubscription = func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		return nil, errors.New("network down")
	}
	updated := false
	g.updateSubscription = func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		updated = true
		return nil, nil
	}

	_, err := g.SwapPrice(context.Background(), "sub_123", "price_pro_m")
	assert.Error(t, err)
	assert.False(t, updated)

	g.getSubscription = func(id string, _ *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		return &stripe.Subscription{ID: id}, nil
	}
	_, err = g.SwapPrice(context.Background(), "sub_123", "price_pro_m")
	assert.ErrorContains(t, err, "no items")
}

func TestCancelSubscription(t *testing.T) {
	g := NewStripeGateway("sk_test", time.Second)
	var scheduled, immediate bool
	g.updateSubscription = func(_ string, p *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		scheduled = p.CancelAtPeriodEnd != nil && *p.CancelAtPeriodEnd
		return &stripe.Subscription{}, nil
	}
	g.cancelSubscription = func(string, *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
		immediate = true
		return &stripe.Subscription{}, nil
	}

	require.NoError(t, g.CancelSubscription(context.Background(), "sub_1", true))
	assert.True(t, scheduled)
	assert.False(t, immediate)

	require.NoError(t, g.CancelSubscription(context.Background(), "sub_1", false))
	assert.True(t, immediate)
}

func TestPriceBook(t *testing.T) {
	pb := NewPriceBook(map[string]config.PriceConfig{
		"basic":        {Monthly: "price_b_m", Yearly: "price_b_y"},
		"professional": {Monthly: "price_p_m"},
	})

	id, ok := pb.PriceFor("basic", models.CycleYearly)
	assert.True(t, ok)
	assert.Equal(t, "price_b_y", id)

	_, ok = pb.PriceFor("professional", models.CycleYearly)
	assert.False(t, ok)

	plan, cycle, ok := pb.Lookup("price_p_m")
	assert.True(t, ok)
	assert.Equal(t, "professional", plan)
	assert.Equal(t, models.CycleMonthly, cycle)

	_, _, ok = pb.Lookup("price_unknown")
	assert.False(t, ok)
}
