package models

import "time"

type SubscriptionStatus string

const (
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusUnpaid    SubscriptionStatus = "unpaid"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusInactive  SubscriptionStatus = "inactive"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid, StatusCancelled, StatusInactive:
		return true
	}
	return false
}

// Entitled reports whether the status grants access while the period lasts.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Advance returns t moved forward by one billing period.
func (c BillingCycle) Advance(t time.Time) time.Time {
	if c == CycleYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Payment method tags.
const (
	PaymentMethodNone         = ""
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCash         = "cash"
)

// Subscription is the lifecycle record of one organization. Amount and
// Currency are snapshots taken when the plan was assigned.
type Subscription struct {
	ID                    string             `json:"id"`
	OrganizationID        string             `json:"organization_id"`
	PlanID                string             `json:"plan_id,omitempty"`
	Status                SubscriptionStatus `json:"status"`
	BillingCycle          BillingCycle       `json:"billing_cycle"`
	Amount                int64              `json:"amount"`
	Currency              string             `json:"currency"`
	StartDate             time.Time          `json:"start_date"`
	EndDate               time.Time          `json:"end_date"`
	TrialEndDate          *time.Time         `json:"trial_end_date,omitempty"`
	GatewayCustomerID     string             `json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string             `json:"gateway_subscription_id,omitempty"`
	PaymentMethod         string             `json:"payment_method,omitempty"`
	LastPaymentDate       *time.Time         `json:"last_payment_date,omitempty"`
	NextPaymentDate       *time.Time         `json:"next_payment_date,omitempty"`
	AutoRenew             bool               `json:"auto_renew"`
	CancelAtPeriodEnd     bool               `json:"cancel_at_period_end"`
	CancelledAt           *time.Time         `json:"cancelled_at,omitempty"`
	CancellationReason    string             `json:"cancellation_reason,omitempty"`
	LastEventAt           *time.Time         `json:"-"`
	Version               int64              `json:"-"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// HasGateway reports whether the record is mirrored by a live gateway
// subscription.
func (s *Subscription) HasGateway() bool {
	return s.GatewaySubscriptionID != ""
}

// Payment is a locally recorded, manually collected payment.
type Payment struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	SubscriptionID string       `json:"subscription_id"`
	PlanID         string       `json:"plan_id"`
	BillingCycle   BillingCycle `json:"billing_cycle"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
	Method         string       `json:"method"`
	Reference      string       `json:"reference,omitempty"`
	RecordedBy     string       `json:"recorded_by"`
	PaidAt         time.Time    `json:"paid_at"`
}
