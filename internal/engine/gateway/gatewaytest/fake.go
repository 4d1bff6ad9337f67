// Package gatewaytest provides an in-memory payment gateway.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"praxis/internal/engine/gateway"
)

// Call records one request made to the fake.
type Call struct {
	Op             string
	SubscriptionID string
	PriceID        string
	AtPeriodEnd    bool
}

// Gateway is an in-memory gateway. Err fails every call; Delay holds each
// call until it elapses or the context ends.
type Gateway struct {
	mu    sync.Mutex
	Err   error
	Delay time.Duration
	Calls []Call
	seq   int
}

func (g *Gateway) do(ctx context.Context, c Call) error {
	g.mu.Lock()
	g.Calls = append(g.Calls, c)
	delay, err := g.Delay, g.Err
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *Gateway) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *Gateway) CreateCustomer(ctx context.Context, orgID, email string) (string, error) {
	if err := g.do(ctx, Call{Op: "create_customer"}); err != nil {
		return "", err
	}
	return g.next("cus"), nil
}

func (g *Gateway) CreateSubscription(ctx context.Context, orgID, customerID, priceID string, trialEnd *time.Time) (*gateway.RemoteSubscription, error) {
	if err := g.do(ctx, Call{Op: "create_subscription", PriceID: priceID}); err != nil {
		return nil, err
	}
	status := "active"
	if trialEnd != nil {
		status = "trialing"
	}
	return &gateway.RemoteSubscription{ID: g.next("sub"), CustomerID: customerID, Status: status}, nil
}

func (g *Gateway) SwapPrice(ctx context.Context, subscriptionID, priceID string) (*gateway.RemoteSubscription, error) {
	if err := g.do(ctx, Call{Op: "swap_price", SubscriptionID: subscriptionID, PriceID: priceID}); err != nil {
		return nil, err
	}
	return &gateway.RemoteSubscription{ID: subscriptionID, Status: "active"}, nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	return g.do(ctx, Call{Op: "cancel_subscription", SubscriptionID: subscriptionID, AtPeriodEnd: atPeriodEnd})
}

// CallCount returns how many calls of op were made.
func (g *Gateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
