package reconciler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

var (
	// ErrUnsupportedEvent marks event types the reconciler does not act on.
	ErrUnsupportedEvent = errors.New("unsupported event type")
	// ErrMalformedEvent marks payloads that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event payload")
)

const (
	TypeSubscriptionCreated = "customer.subscription.created"
	TypeSubscriptionUpdated = "customer.subscription.updated"
	TypeSubscriptionDeleted = "customer.subscription.deleted"
	TypeInvoicePaid         = "invoice.paid"
	TypeInvoiceSucceeded    = "invoice.payment_succeeded"
	TypeInvoiceFailed       = "invoice.payment_failed"
)

// expandable decodes a field that is either an id string or an expanded
// object carrying an id.
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

type subscriptionPayload struct {
	ID                string     `json:"id"`
	Customer          expandable `json:"customer"`
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64      `json:"current_period_end"`
	TrialEnd          int64      `json:"trial_end"`
	EndedAt           int64      `json:"ended_at"`
	CanceledAt        int64      `json:"canceled_at"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// periodEnd prefers the subscription-level field and falls back to the
// latest item period, where newer API versions report it.
func (p *subscriptionPayload) periodEnd() int64 {
	end := p.CurrentPeriodEnd
	for _, item := range p.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	return end
}

type invoicePayload struct {
	ID           string     `json:"id"`
	Subscription expandable `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid         int64  `json:"amount_paid"`
	Currency           string `json:"currency"`
	NextPaymentAttempt int64  `json:"next_payment_attempt"`
	StatusTransitions  struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Lines struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return string(p.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (p *invoicePayload) periodEnd() int64 {
	var end int64
	for _, line := range p.Lines.Data {
		if line.Period.End > end {
			end = line.Period.End
		}
	}
	return end
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// Parse converts a verified gateway event into the typed union.
func Parse(ev stripe.Event) (Event, error) {
	meta := EventMeta{ID: ev.ID, Type: string(ev.Type), Created: time.Unix(ev.Created, 0).UTC()}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, ev.ID)
	}

	switch meta.Type {
	case TypeSubscriptionCreated, TypeSubscriptionUpdated, TypeSubscriptionDeleted:
		var p subscriptionPayload
		if err := json.Unmarshal(ev.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
		}
		meta.GatewaySubscriptionID = p.ID

		if meta.Type == TypeSubscriptionDeleted {
			ended := meta.Created
			if p.EndedAt > 0 {
				ended = time.Unix(p.EndedAt, 0).UTC()
			} else if p.CanceledAt > 0 {
				ended = time.Unix(p.CanceledAt, 0).UTC()
			}
			return SubscriptionDeleted{EventMeta: meta, EndedAt: ended}, nil
		}

		changed := SubscriptionChanged{
			EventMeta:         meta,
			Status:            p.Status,
			CustomerID:        string(p.Customer),
			CurrentPeriodEnd:  unixPtr(p.periodEnd()),
			TrialEnd:          unixPtr(p.TrialEnd),
			CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		}
		if len(p.Items.Data) > 0 {
			changed.PriceID = p.Items.Data[0].Price.ID
		}
		return changed, nil

	case TypeInvoicePaid, TypeInvoiceSucceeded, TypeInvoiceFailed:
		var p invoicePayload
		if err := json.Unmarshal(ev.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		meta.GatewaySubscriptionID = p.subscriptionID()
		if meta.GatewaySubscriptionID == "" {
			// One-off invoices are not part of a subscription lifecycle.
			return nil, fmt.Errorf("%w: invoice %s has no subscription", ErrUnsupportedEvent, p.ID)
		}

		if meta.Type == TypeInvoiceFailed {
			return PaymentFailed{EventMeta: meta, InvoiceID: p.ID, NextAttempt: unixPtr(p.NextPaymentAttempt)}, nil
		}
		paidAt := meta.Created
		if p.StatusTransitions.PaidAt > 0 {
			paidAt = time.Unix(p.StatusTransitions.PaidAt, 0).UTC()
		}
		return PaymentSucceeded{
			EventMeta: meta,
			InvoiceID: p.ID,
			Amount:    p.AmountPaid,
			Currency:  p.Currency,
			PaidAt:    paidAt,
			PeriodEnd: unixPtr(p.periodEnd()),
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, meta.Type)
}
