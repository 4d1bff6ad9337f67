// Package subscriptions decides whether an organization may use the product
// right now.
package subscriptions

import (
	"math"
	"time"

	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/models"
)

const (
	ReasonOrganizationDeactivated = "organization deactivated"
	ReasonNoSubscription          = "no active subscription found"
	ReasonSubscriptionExpired     = "subscription expired"
	ReasonTrialExpired            = "trial period expired"
)

// Window is a half-open entitlement interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// TrialWindow is the implicit trial of an organization without a record.
func TrialWindow(createdAt time.Time, days int) Window {
	return Window{Start: createdAt, End: createdAt.AddDate(0, 0, days)}
}

// DaysRemaining counts started days left until end, rounding up.
func DaysRemaining(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// Outcome is the evaluator's verdict. Inactive outcomes carry a Reason and
// the Kind that selects the remediation page.
type Outcome struct {
	Active        bool                      `json:"active"`
	Status        models.SubscriptionStatus `json:"status,omitempty"`
	PlanID        string                    `json:"plan_id,omitempty"`
	DaysRemaining int                       `json:"days_remaining,omitempty"`
	EndsAt        *time.Time                `json:"ends_at,omitempty"`
	Unlimited     bool                      `json:"unlimited,omitempty"`
	Implicit      bool                      `json:"implicit_trial,omitempty"`
	Reason        string                    `json:"reason,omitempty"`
	Kind          apperrors.InactiveKind    `json:"reason_kind,omitempty"`
}

// Err converts an inactive outcome into its typed error.
func (o Outcome) Err() error {
	if o.Active {
		return nil
	}
	return &apperrors.SubscriptionInactiveError{Kind: o.Kind, Reason: o.Reason}
}

// ExpireCommand asks the store to flip a lapsed record to inactive.
type ExpireCommand struct {
	SubscriptionID string
	OrganizationID string
	At             time.Time
}

type EvaluationInput struct {
	Organization *models.Organization
	Subscription *models.Subscription
	TrialDays    int
	TrialPlan    string
	Now          time.Time
}

func inactive(reason string, kind apperrors.InactiveKind) Outcome {
	return Outcome{Active: false, Reason: reason, Kind: kind}
}

// Evaluate interprets the stored state. It never writes; a lapsed record
// yields an ExpireCommand for the caller to apply.
func Evaluate(in EvaluationInput) (Outcome, *ExpireCommand) {
	org, sub, now := in.Organization, in.Subscription, in.Now

	if !org.Active {
		return inactive(ReasonOrganizationDeactivated, apperrors.KindOrganizationDeactivated), nil
	}
	if org.UnlimitedOverride {
		out := Outcome{Active: true, Unlimited: true, Status: models.StatusActive}
		if sub != nil {
			out.PlanID = sub.PlanID
		}
		return out, nil
	}

	if sub == nil {
		trial := TrialWindow(org.CreatedAt, in.TrialDays)
		if now.Before(trial.End) {
			return Outcome{
				Active:        true,
				Status:        models.StatusTrialing,
				PlanID:        in.TrialPlan,
				DaysRemaining: DaysRemaining(trial.End, now),
				EndsAt:        &trial.End,
				Implicit:      true,
			}, nil
		}
		return inactive(ReasonNoSubscription, apperrors.KindBilling), nil
	}

	if !sub.Status.Entitled() {
		return inactive("subscription "+string(sub.Status), apperrors.KindBilling), nil
	}

	if sub.EndDate.Before(now) {
		return inactive(ReasonSubscriptionExpired, apperrors.KindBilling), &ExpireCommand{
			SubscriptionID: sub.ID,
			OrganizationID: sub.OrganizationID,
			At:             now,
		}
	}

	end := sub.EndDate
	if sub.Status == models.StatusTrialing && sub.TrialEndDate != nil {
		if sub.TrialEndDate.Before(now) {
			return inactive(ReasonTrialExpired, apperrors.KindBilling), nil
		}
		if sub.TrialEndDate.Before(end) {
			end = *sub.TrialEndDate
		}
	}

	planID := sub.PlanID
	if planID == "" {
		planID = in.TrialPlan
	}
	return Outcome{
		Active:        true,
		Status:        sub.Status,
		PlanID:        planID,
		DaysRemaining: DaysRemaining(end, now),
		EndsAt:        &end,
	}, nil
}
