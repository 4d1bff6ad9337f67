// Package gateway talks to the external payment gateway.
package gateway

import (
	"context"
	"errors"
	"time"

	"praxis/internal/platform/config"
	"praxis/internal/platform/models"
)

// ErrNotConfigured is returned by Unconfigured for every call.
var ErrNotConfigured = errors.New("payment gateway not configured")

// RemoteSubscription is the gateway's view of a subscription after a call.
type RemoteSubscription struct {
	ID         string
	CustomerID string
	Status     string
}

type Gateway interface {
	CreateCustomer(ctx context.Context, orgID, email string) (string, error)
	CreateSubscription(ctx context.Context, orgID, customerID, priceID string, trialEnd *time.Time) (*RemoteSubscription, error)
	// SwapPrice replaces the priced item of a live subscription, prorating
	// the remainder of the period.
	SwapPrice(ctx context.Context, subscriptionID, priceID string) (*RemoteSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
}

// Unconfigured refuses every call. It backs deployments that only collect
// payments manually.
type Unconfigured struct{}

func (Unconfigured) CreateCustomer(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) CreateSubscription(context.Context, string, string, string, *time.Time) (*RemoteSubscription, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) SwapPrice(context.Context, string, string) (*RemoteSubscription, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CancelSubscription(context.Context, string, bool) error {
	return ErrNotConfigured
}

type priceKey struct {
	plan  string
	cycle models.BillingCycle
}

type priceRef struct {
	PlanID string
	Cycle  models.BillingCycle
}

// PriceBook maps catalog plans to gateway price ids and back.
type PriceBook struct {
	forward map[priceKey]string
	reverse map[string]priceRef
}

func NewPriceBook(prices map[string]config.PriceConfig) *PriceBook {
	pb := &PriceBook{forward: map[priceKey]string{}, reverse: map[string]priceRef{}}
	for planID, p := range prices {
		pb.add(planID, models.CycleMonthly, p.Monthly)
		pb.add(planID, models.CycleYearly, p.Yearly)
	}
	return pb
}

func (pb *PriceBook) add(planID string, cycle models.BillingCycle, priceID string) {
	if priceID == "" {
		return
	}
	pb.forward[priceKey{planID, cycle}] = priceID
	pb.reverse[priceID] = priceRef{PlanID: planID, Cycle: cycle}
}

func (pb *PriceBook) PriceFor(planID string, cycle models.BillingCycle) (string, bool) {
	if pb == nil {
		return "", false
	}
	id, ok := pb.forward[priceKey{planID, cycle}]
	return id, ok
}

// Lookup resolves a gateway price id to the plan and cycle it sells.
func (pb *PriceBook) Lookup(priceID string) (string, models.BillingCycle, bool) {
	if pb == nil {
		return "", "", false
	}
	ref, ok := pb.reverse[priceID]
	return ref.PlanID, ref.Cycle, ok
}
