package reconciler

import "time"

// Event is one gateway notification converted into a typed value. The set
// of implementations is closed.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// EventMeta is common to every event.
type EventMeta struct {
	ID                    string
	Type                  string
	GatewaySubscriptionID string
	Created               time.Time
}

// SubscriptionChanged covers subscription creation and updates.
type SubscriptionChanged struct {
	EventMeta
	Status            string
	CustomerID        string
	PriceID           string
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool
}

type SubscriptionDeleted struct {
	EventMeta
	EndedAt time.Time
}

type PaymentSucceeded struct {
	EventMeta
	InvoiceID string
	Amount    int64
	Currency  string
	PaidAt    time.Time
	PeriodEnd *time.Time
}

type PaymentFailed struct {
	EventMeta
	InvoiceID   string
	NextAttempt *time.Time
}

func (e SubscriptionChanged) Meta() EventMeta { return e.EventMeta }
func (e SubscriptionDeleted) Meta() EventMeta { return e.EventMeta }
func (e PaymentSucceeded) Meta() EventMeta    { return e.EventMeta }
func (e PaymentFailed) Meta() EventMeta       { return e.EventMeta }

func (SubscriptionChanged) isEvent() {}
func (SubscriptionDeleted) isEvent() {}
func (PaymentSucceeded) isEvent()    {}
func (PaymentFailed) isEvent()       {}
