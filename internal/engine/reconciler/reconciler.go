// Package reconciler applies payment gateway webhooks to local subscription
// records. Delivery is at-least-once and unordered, so every handler is
// idempotent and refuses to move state backwards.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog/log"
	"praxis/internal/engine/gateway"
	"praxis/internal/engine/plans"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/pkg/metrics"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeStale     Outcome = "stale"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Outcome        Outcome `json:"outcome"`
	EventID        string  `json:"event_id,omitempty"`
	OrganizationID string  `json:"organization_id,omitempty"`
}

// Invalidator drops cached status after a write.
type Invalidator interface {
	Invalidate(orgID string)
}

type PlanSource interface {
	Get(ctx context.Context, id string) (*plans.Plan, error)
}

type Reconciler struct {
	verifier *Verifier
	subs     *repositories.SubscriptionRepository
	orgs     *repositories.OrganizationRepository
	audit    *audit.Logger
	prices   *gateway.PriceBook
	plans    PlanSource
	cache    Invalidator
	dedup    *DedupWindow
	now      func() time.Time
}

func New(verifier *Verifier, subs *repositories.SubscriptionRepository, orgs *repositories.OrganizationRepository, auditLogger *audit.Logger,
	prices *gateway.PriceBook, planSource PlanSource, cache Invalidator, dedup *DedupWindow) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		subs:     subs,
		orgs:     orgs,
		audit:    auditLogger,
		prices:   prices,
		plans:    planSource,
		cache:    cache,
		dedup:    dedup,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Handle verifies, decodes and applies one delivery. Only signature and
// store failures are returned; undecodable or irrelevant events are
// acknowledged so the gateway stops retrying them.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	start := time.Now()
	raw, err := r.verifier.Verify(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		log.Warn().Err(err).Msg("webhook signature rejected")
		return Result{}, err
	}
	defer func() {
		metrics.WebhookDuration.WithLabelValues(string(raw.Type)).Observe(time.Since(start).Seconds())
	}()

	ev, err := Parse(raw)
	switch {
	case errors.Is(err, ErrUnsupportedEvent):
		log.Debug().Str("event_id", raw.ID).Str("event_type", string(raw.Type)).Msg("webhook event ignored")
		metrics.WebhookEvents.WithLabelValues(string(raw.Type), string(OutcomeIgnored)).Inc()
		return Result{Outcome: OutcomeIgnored, EventID: raw.ID}, nil
	case err != nil:
		log.Warn().Err(err).Str("event_id", raw.ID).Str("event_type", string(raw.Type)).Msg("malformed webhook event acknowledged")
		metrics.WebhookEvents.WithLabelValues(string(raw.Type), "malformed").Inc()
		return Result{Outcome: OutcomeIgnored, EventID: raw.ID}, nil
	}
	return r.Apply(ctx, ev)
}

// Apply reconciles one event. Store failures are returned so the gateway
// redelivers; everything else is acknowledged with an outcome.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (res Result, err error) {
	meta := ev.Meta()
	res.EventID = meta.ID

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic applying %s %s: %v", meta.Type, meta.ID, p)
		}
		outcome := string(res.Outcome)
		if err != nil {
			outcome = "error"
		}
		metrics.WebhookEvents.WithLabelValues(meta.Type, outcome).Inc()
	}()

	if r.dedup.Seen(meta.ID) {
		log.Debug().Str("event_id", meta.ID).Str("event_type", meta.Type).Msg("duplicate webhook event")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	var sub *models.Subscription
	var outcome Outcome
	switch e := ev.(type) {
	case SubscriptionChanged:
		sub, outcome, err = r.applyChanged(ctx, e)
	case SubscriptionDeleted:
		sub, outcome, err = r.applyDeleted(ctx, e)
	case PaymentSucceeded:
		sub, outcome, err = r.applyPaymentSucceeded(ctx, e)
	case PaymentFailed:
		sub, outcome, err = r.applyPaymentFailed(ctx, e)
	default:
		outcome = OutcomeIgnored
	}

	logger := log.With().Str("event_id", meta.ID).Str("event_type", meta.Type).Str("gateway_subscription_id", meta.GatewaySubscriptionID).Logger()
	if errors.Is(err, apperrors.ErrWebhookUnmatched) {
		logger.Info().Msg("webhook event has no matching subscription")
		res.Outcome = OutcomeUnmatched
		r.dedup.Mark(meta.ID)
		return res, nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("webhook reconciliation failed")
		return res, err
	}

	res.Outcome = outcome
	if sub != nil {
		res.OrganizationID = sub.OrganizationID
	}
	r.dedup.Mark(meta.ID)

	switch outcome {
	case OutcomeApplied:
		logger.Info().Str("org_id", res.OrganizationID).Str("status", string(sub.Status)).Msg("webhook event applied")
		r.cache.Invalidate(sub.OrganizationID)
		r.audit.Record(audit.WithActor(ctx, audit.Actor{UserID: audit.SystemGateway}), sub.OrganizationID, audit.ActionWebhookApplied, "subscription", sub.ID, map[string]interface{}{
			"event_id":   meta.ID,
			"event_type": meta.Type,
			"status":     sub.Status,
		})
	case OutcomeStale:
		logger.Info().Str("org_id", res.OrganizationID).Msg("stale webhook event skipped")
	}
	return res, nil
}

func laterOf(a *time.Time, b time.Time) *time.Time {
	if a != nil && a.After(b) {
		return a
	}
	return &b
}

func touch(s *models.Subscription, created time.Time) {
	s.LastEventAt = laterOf(s.LastEventAt, created)
}

// olderThanLast reports whether the event predates the newest one applied.
func olderThanLast(s *models.Subscription, created time.Time) bool {
	return s.LastEventAt != nil && created.Before(*s.LastEventAt)
}

// endedBefore reports whether the record was terminated by a deletion the
// event does not postdate.
func endedBefore(s *models.Subscription, created time.Time) bool {
	return s.Status == models.StatusCancelled && s.CancelledAt != nil && !created.After(*s.CancelledAt)
}

// staleByPeriod compares an incoming period end against the stored one;
// equal periods fall back to event age.
func staleByPeriod(s *models.Subscription, periodEnd *time.Time, created time.Time) bool {
	if periodEnd == nil || s.NextPaymentDate == nil {
		return olderThanLast(s, created)
	}
	if periodEnd.Before(*s.NextPaymentDate) {
		return true
	}
	return periodEnd.Equal(*s.NextPaymentDate) && olderThanLast(s, created)
}

// mapStatus converts a gateway status; unknown values keep the current one.
func mapStatus(gw string, current models.SubscriptionStatus) models.SubscriptionStatus {
	switch gw {
	case "active":
		return models.StatusActive
	case "trialing":
		return models.StatusTrialing
	case "past_due":
		return models.StatusPastDue
	case "unpaid":
		return models.StatusUnpaid
	case "canceled":
		return models.StatusCancelled
	case "incomplete", "incomplete_expired", "paused":
		return models.StatusInactive
	}
	return current
}

// mutate wraps MutateByGatewayID with staleness reporting and skips writes
// that would not change anything.
func (r *Reconciler) mutate(ctx context.Context, gatewayID string, fn func(s *models.Subscription) (stale bool)) (*models.Subscription, Outcome, error) {
	var stale, same bool
	sub, err := r.subs.MutateByGatewayID(ctx, gatewayID, func(s *models.Subscription) error {
		before := *s
		stale = fn(s)
		same = reflect.DeepEqual(before, *s)
		if stale || same {
			return repositories.ErrNoChange
		}
		return nil
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s", apperrors.ErrWebhookUnmatched, gatewayID)
	}
	if err != nil {
		return nil, "", err
	}
	switch {
	case stale:
		return sub, OutcomeStale, nil
	case same:
		return sub, OutcomeUnchanged, nil
	}
	return sub, OutcomeApplied, nil
}

func (r *Reconciler) applyChanged(ctx context.Context, e SubscriptionChanged) (*models.Subscription, Outcome, error) {
	var target *plans.Plan
	var targetCycle models.BillingCycle
	if planID, cycle, ok := r.prices.Lookup(e.PriceID); ok {
		p, err := r.plans.Get(ctx, planID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", err
		}
		target, targetCycle = p, cycle
	}

	return r.mutate(ctx, e.GatewaySubscriptionID, func(s *models.Subscription) bool {
		if endedBefore(s, e.Created) || staleByPeriod(s, e.CurrentPeriodEnd, e.Created) {
			return true
		}

		status := mapStatus(e.Status, s.Status)
		if s.Status == models.StatusTrialing && status != models.StatusTrialing && s.TrialEndDate == nil {
			end := e.Created
			if e.TrialEnd != nil {
				end = *e.TrialEnd
			}
			s.TrialEndDate = &end
		}
		if status == models.StatusTrialing && e.TrialEnd != nil {
			s.TrialEndDate = e.TrialEnd
		}
		s.Status = status

		if e.CurrentPeriodEnd != nil {
			s.NextPaymentDate = laterOf(s.NextPaymentDate, *e.CurrentPeriodEnd)
			if e.CurrentPeriodEnd.After(s.EndDate) {
				s.EndDate = *e.CurrentPeriodEnd
			}
		}
		s.CancelAtPeriodEnd = e.CancelAtPeriodEnd
		s.AutoRenew = !e.CancelAtPeriodEnd
		if s.GatewayCustomerID == "" {
			s.GatewayCustomerID = e.CustomerID
		}
		if status == models.StatusCancelled && s.CancelledAt == nil {
			at := e.Created
			s.CancelledAt = &at
		}

		// A price change confirmed remotely but never recorded locally.
		if target != nil && (target.ID != s.PlanID || targetCycle != s.BillingCycle) {
			s.PlanID = target.ID
			s.BillingCycle = targetCycle
			s.Amount = target.PriceFor(targetCycle)
			s.Currency = target.Currency
		}
		touch(s, e.Created)
		return false
	})
}

func (r *Reconciler) applyDeleted(ctx context.Context, e SubscriptionDeleted) (*models.Subscription, Outcome, error) {
	sub, outcome, err := r.mutate(ctx, e.GatewaySubscriptionID, func(s *models.Subscription) bool {
		if s.Status == models.StatusCancelled && s.CancelledAt != nil {
			return false
		}
		s.Status = models.StatusCancelled
		ended := e.EndedAt
		s.CancelledAt = &ended
		s.AutoRenew = false
		s.CancelAtPeriodEnd = false
		if s.CancellationReason == "" {
			s.CancellationReason = "subscription ended at payment gateway"
		}
		touch(s, e.Created)
		return false
	})
	if err != nil {
		return nil, "", err
	}

	// Access ends now rather than at the next lazy evaluation.
	off, err := r.orgs.DeactivateIfActive(ctx, sub.OrganizationID, models.DeactivatedByBilling, r.now())
	if err != nil {
		return nil, "", fmt.Errorf("deactivate organization: %w", err)
	}
	if off {
		r.audit.Record(audit.WithActor(ctx, audit.Actor{UserID: audit.SystemGateway}), sub.OrganizationID, audit.ActionOrgDeactivated, "organization", sub.OrganizationID, map[string]interface{}{
			"source":   models.DeactivatedByBilling,
			"event_id": e.ID,
		})
		outcome = OutcomeApplied
	}
	return sub, outcome, nil
}

func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, e PaymentSucceeded) (*models.Subscription, Outcome, error) {
	sub, outcome, err := r.mutate(ctx, e.GatewaySubscriptionID, func(s *models.Subscription) bool {
		if endedBefore(s, e.Created) {
			return true
		}
		if e.PeriodEnd != nil && s.NextPaymentDate != nil && e.PeriodEnd.Before(*s.NextPaymentDate) {
			return true
		}

		next := e.PeriodEnd
		if next == nil {
			if s.LastPaymentDate != nil && !e.PaidAt.After(*s.LastPaymentDate) {
				// Same payment seen again without period data.
				return false
			}
			from := s.EndDate
			if s.NextPaymentDate != nil && s.NextPaymentDate.After(from) {
				from = *s.NextPaymentDate
			}
			advanced := s.BillingCycle.Advance(from)
			next = &advanced
		}

		s.Status = models.StatusActive
		s.LastPaymentDate = laterOf(s.LastPaymentDate, e.PaidAt)
		s.NextPaymentDate = laterOf(s.NextPaymentDate, *next)
		if next.After(s.EndDate) {
			s.EndDate = *next
		}
		if s.PaymentMethod == models.PaymentMethodNone {
			s.PaymentMethod = models.PaymentMethodCard
		}
		touch(s, e.Created)
		return false
	})
	if err != nil || outcome == OutcomeStale {
		return sub, outcome, err
	}

	on, err := r.orgs.ReactivateIfBilling(ctx, sub.OrganizationID, r.now())
	if err != nil {
		return nil, "", fmt.Errorf("reactivate organization: %w", err)
	}
	if on {
		log.Info().Str("org_id", sub.OrganizationID).Msg("organization reactivated after payment")
		r.audit.Record(audit.WithActor(ctx, audit.Actor{UserID: audit.SystemGateway}), sub.OrganizationID, audit.ActionOrganizationActivated, "organization", sub.OrganizationID, map[string]interface{}{
			"event_id": e.ID,
		})
		outcome = OutcomeApplied
	}
	return sub, outcome, nil
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, e PaymentFailed) (*models.Subscription, Outcome, error) {
	return r.mutate(ctx, e.GatewaySubscriptionID, func(s *models.Subscription) bool {
		if endedBefore(s, e.Created) || s.Status == models.StatusCancelled || olderThanLast(s, e.Created) {
			return true
		}
		s.Status = models.StatusPastDue
		touch(s, e.Created)
		return false
	})
}
