package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"praxis/internal/pkg/metrics"
)

// StripeGateway implements Gateway on the Stripe API. Every call is bounded
// by timeout.
type StripeGateway struct {
	timeout time.Duration

	newCustomer        func(*stripe.CustomerParams) (*stripe.Customer, error)
	newSubscription    func(*stripe.SubscriptionParams) (*stripe.Subscription, error)
	getSubscription    func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error)
	updateSubscription func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error)
	cancelSubscription func(string, *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

func NewStripeGateway(apiKey string, timeout time.Duration) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{
		timeout:            timeout,
		newCustomer:        customer.New,
		newSubscription:    subscription.New,
		getSubscription:    subscription.Get,
		updateSubscription: subscription.Update,
		cancelSubscription: subscription.Cancel,
	}
}

func (g *StripeGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Warn().Err(err).Str("operation", op).Msg("stripe call failed")
	}
	metrics.GatewayCalls.WithLabelValues(op, outcome).Inc()
}

func remote(s *stripe.Subscription) *RemoteSubscription {
	r := &RemoteSubscription{ID: s.ID, Status: string(s.Status)}
	if s.Customer != nil {
		r.CustomerID = s.Customer.ID
	}
	return r
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, orgID, email string) (id string, err error) {
	defer func() { observe("create_customer", err) }()
	ctx, cancel := g.bound(ctx)
	defer cancel()

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("organization_id", orgID)

	c, err := g.newCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, orgID, customerID, priceID string, trialEnd *time.Time) (rs *RemoteSubscription, err error) {
	defer func() { observe("create_subscription", err) }()
	ctx, cancel := g.bound(ctx)
	defer cancel()

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	if trialEnd != nil && trialEnd.After(time.Now()) {
		params.TrialEnd = stripe.Int64(trialEnd.Unix())
	}
	params.Context = ctx
	params.AddMetadata("organization_id", orgID)

	s, err := g.newSubscription(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}
	return remote(s), nil
}

func (g *StripeGateway) SwapPrice(ctx context.Context, subscriptionID, priceID string) (rs *RemoteSubscription, err error) {
	defer func() { observe("swap_price", err) }()
	ctx, cancel := g.bound(ctx)
	defer cancel()

	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := g.getSubscription(subscriptionID, getParams)
	if err != nil {
		return nil, fmt.Errorf("load stripe subscription: %w", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe subscription %s has no items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	s, err := g.updateSubscription(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update stripe subscription: %w", err)
	}
	return remote(s), nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (err error) {
	defer func() { observe("cancel_subscription", err) }()
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		if _, err := g.updateSubscription(subscriptionID, params); err != nil {
			return fmt.Errorf("schedule stripe cancellation: %w", err)
		}
		return nil
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.cancelSubscription(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel stripe subscription: %w", err)
	}
	return nil
}
