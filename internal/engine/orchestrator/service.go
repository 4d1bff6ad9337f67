// Package orchestrator performs plan changes, cancellations and manual
// collections. Gateway calls always happen before the local write so a
// failed or timed out call leaves the record as it was.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"praxis/internal/engine/gateway"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/subscriptions"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/pkg/metrics"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/config"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

// ErrInvalidRequest wraps input validation failures.
var ErrInvalidRequest = errors.New("invalid request")

type Invalidator interface {
	Invalidate(orgID string)
}

type ChangeRequest struct {
	OrganizationID string
	PlanID         string
	Cycle          models.BillingCycle
	// PaymentMethod replaces the method on file when set.
	PaymentMethod string
	// Email is the billing contact used when a gateway customer is created.
	Email string
}

type ManualPayment struct {
	OrganizationID string
	// Amount defaults to the plan price for the record's cycle.
	Amount    int64
	Method    string
	Reference string
	PaidAt    time.Time
}

// AdminSubscription sets locally managed terms for an organization.
type AdminSubscription struct {
	OrganizationID string
	PlanID         string
	Cycle          models.BillingCycle
	Status         models.SubscriptionStatus
	StartDate      time.Time
	EndDate        time.Time
	PaymentMethod  string
}

type Service struct {
	db        *sql.DB
	orgs      *repositories.OrganizationRepository
	subs      *repositories.SubscriptionRepository
	payments  *repositories.PaymentRepository
	plans     *plans.Service
	gateway   gateway.Gateway
	prices    *gateway.PriceBook
	audit     *audit.Logger
	cache     Invalidator
	trialDays int
	timeout   time.Duration
	now       func() time.Time
}

func NewService(db *sql.DB, orgs *repositories.OrganizationRepository, subs *repositories.SubscriptionRepository,
	payments *repositories.PaymentRepository, planSvc *plans.Service, gw gateway.Gateway, prices *gateway.PriceBook,
	auditLogger *audit.Logger, cache Invalidator, cfg config.BillingConfig) *Service {
	return &Service{
		db:        db,
		orgs:      orgs,
		subs:      subs,
		payments:  payments,
		plans:     planSvc,
		gateway:   gw,
		prices:    prices,
		audit:     auditLogger,
		cache:     cache,
		trialDays: cfg.TrialDays,
		timeout:   cfg.GatewayTimeout,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func manualMethod(m string) bool {
	return m == models.PaymentMethodBankTransfer || m == models.PaymentMethodCash
}

func validMethod(m string) bool {
	return m == models.PaymentMethodNone || m == models.PaymentMethodCard || manualMethod(m)
}

func (s *Service) target(ctx context.Context, planID string, cycle models.BillingCycle) (*plans.Plan, models.BillingCycle, error) {
	if cycle == "" {
		cycle = models.CycleMonthly
	}
	if !cycle.Valid() {
		return nil, "", fmt.Errorf("%w: unknown billing cycle %q", ErrInvalidRequest, cycle)
	}
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, planID)
		}
		return nil, "", err
	}
	if !plan.Active {
		return nil, "", fmt.Errorf("%w: plan %q is retired", ErrInvalidRequest, planID)
	}
	return plan, cycle, nil
}

// call bounds one gateway request by the configured timeout and wraps
// failures.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(cctx); err != nil {
		return &apperrors.GatewayCallFailedError{Op: op, Err: err}
	}
	return nil
}

func (s *Service) written(ctx context.Context, sub *models.Subscription, action string, meta map[string]interface{}) {
	s.cache.Invalidate(sub.OrganizationID)
	s.audit.Record(ctx, sub.OrganizationID, action, "subscription", sub.ID, meta)
}

// ChangePlan moves an organization to another plan or billing cycle.
// Organizations without a record are subscribed.
func (s *Service) ChangePlan(ctx context.Context, req ChangeRequest) (*models.Subscription, error) {
	if !validMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, req.PaymentMethod)
	}
	plan, cycle, err := s.target(ctx, req.PlanID, req.Cycle)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.GetByOrg(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return s.subscribe(ctx, req, plan, cycle)
	}

	logger := log.With().Str("org_id", req.OrganizationID).Str("plan_id", plan.ID).Str("cycle", string(cycle)).Logger()
	if sub.PlanID == plan.ID && sub.BillingCycle == cycle && sub.Status.Entitled() {
		logger.Debug().Msg("plan change is a no-op")
		metrics.PlanChanges.WithLabelValues("noop").Inc()
		return sub, nil
	}

	method := sub.PaymentMethod
	if req.PaymentMethod != "" {
		method = req.PaymentMethod
	}
	if method == models.PaymentMethodNone && plan.Paid() {
		metrics.PlanChanges.WithLabelValues("payment_method_required").Inc()
		return nil, apperrors.ErrPaymentMethodRequired
	}

	var out *models.Subscription
	switch {
	case sub.HasGateway() && sub.Status != models.StatusCancelled:
		out, err = s.swap(ctx, sub, plan, cycle, method)
	case manualMethod(method):
		out, err = s.collect(ctx, ManualPayment{OrganizationID: sub.OrganizationID, Method: method}, plan, cycle)
	default:
		out, err = s.provision(ctx, sub, req, plan, cycle)
	}
	if err != nil {
		var gwErr *apperrors.GatewayCallFailedError
		if errors.As(err, &gwErr) {
			metrics.PlanChanges.WithLabelValues("gateway_failed").Inc()
			logger.Warn().Err(err).Msg("plan change aborted, record left unchanged")
		}
		return nil, err
	}

	metrics.PlanChanges.WithLabelValues("changed").Inc()
	logger.Info().Str("from_plan", sub.PlanID).Msg("plan changed")
	return out, nil
}

// swap changes the price of a live gateway subscription, then mirrors it.
func (s *Service) swap(ctx context.Context, sub *models.Subscription, plan *plans.Plan, cycle models.BillingCycle, method string) (*models.Subscription, error) {
	priceID, ok := s.prices.PriceFor(plan.ID, cycle)
	if !ok {
		return nil, fmt.Errorf("%w: plan %s has no %s gateway price", ErrInvalidRequest, plan.ID, cycle)
	}
	err := s.call(ctx, "swap_price", func(ctx context.Context) error {
		_, err := s.gateway.SwapPrice(ctx, sub.GatewaySubscriptionID, priceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	from := sub.PlanID
	out, err := s.subs.Mutate(ctx, sub.OrganizationID, func(r *models.Subscription) error {
		r.PlanID = plan.ID
		r.BillingCycle = cycle
		r.Amount = plan.PriceFor(cycle)
		r.Currency = plan.Currency
		r.PaymentMethod = method
		return nil
	})
	if err != nil {
		// The gateway already moved; the next subscription.updated event
		// carries the new price and heals the record.
		return nil, fmt.Errorf("record plan change: %w", err)
	}
	s.written(ctx, out, audit.ActionPlanChanged, map[string]interface{}{
		"from_plan": from,
		"to_plan":   plan.ID,
		"cycle":     cycle,
		"amount":    out.Amount,
	})
	return out, nil
}

// provision opens a gateway subscription for a record that has none, or
// whose previous one ended.
func (s *Service) provision(ctx context.Context, sub *models.Subscription, req ChangeRequest, plan *plans.Plan, cycle models.BillingCycle) (*models.Subscription, error) {
	remote, trialEnd, err := s.openRemote(ctx, sub.OrganizationID, sub.GatewayCustomerID, req.Email, plan, cycle, nil)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out, err := s.subs.Mutate(ctx, sub.OrganizationID, func(r *models.Subscription) error {
		applyRemote(r, remote, plan, cycle, now, trialEnd)
		return nil
	})
	if err != nil {
		s.abandon(ctx, remote.ID)
		return nil, fmt.Errorf("record gateway subscription: %w", err)
	}
	// The gateway subscription and the record are in place; a failed
	// reactivation is left for the next invoice.paid event.
	if _, err := s.orgs.ReactivateIfBilling(ctx, sub.OrganizationID, now); err != nil {
		log.Error().Err(err).Str("org_id", sub.OrganizationID).Msg("reactivate organization after resubscribe")
	}
	s.written(ctx, out, audit.ActionPlanChanged, map[string]interface{}{
		"from_plan":               sub.PlanID,
		"to_plan":                 plan.ID,
		"cycle":                   cycle,
		"gateway_subscription_id": remote.ID,
	})
	return out, nil
}

// Subscribe creates the first subscription of an organization.
func (s *Service) Subscribe(ctx context.Context, req ChangeRequest) (*models.Subscription, error) {
	if !validMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, req.PaymentMethod)
	}
	plan, cycle, err := s.target(ctx, req.PlanID, req.Cycle)
	if err != nil {
		return nil, err
	}
	existing, err := s.subs.GetByOrg(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: organization already has a subscription", apperrors.ErrConflict)
	}
	return s.subscribe(ctx, req, plan, cycle)
}

func (s *Service) subscribe(ctx context.Context, req ChangeRequest, plan *plans.Plan, cycle models.BillingCycle) (*models.Subscription, error) {
	org, err := s.orgs.GetByID(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, apperrors.ErrNotFound
	}
	if req.PaymentMethod == models.PaymentMethodNone && plan.Paid() {
		metrics.PlanChanges.WithLabelValues("payment_method_required").Inc()
		return nil, apperrors.ErrPaymentMethodRequired
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		ID:             "sub_" + uuid.New().String(),
		OrganizationID: org.ID,
		PlanID:         plan.ID,
		BillingCycle:   cycle,
		Amount:         plan.PriceFor(cycle),
		Currency:       plan.Currency,
		StartDate:      now,
		PaymentMethod:  req.PaymentMethod,
		AutoRenew:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if manualMethod(req.PaymentMethod) {
		// Collected by hand: the record starts inactive and the payment
		// below activates it.
		sub.Status = models.StatusInactive
		sub.EndDate = now
		if err := s.subs.Create(ctx, nil, sub); err != nil {
			return nil, translateCreate(err)
		}
		return s.collect(ctx, ManualPayment{OrganizationID: org.ID, Method: req.PaymentMethod}, plan, cycle)
	}

	// Time left in the implicit trial carries over to the paid record.
	var trial *time.Time
	if w := subscriptions.TrialWindow(org.CreatedAt, s.trialDays); w.Contains(now) {
		end := w.End
		trial = &end
	}
	remote, trialEnd, err := s.openRemote(ctx, org.ID, "", req.Email, plan, cycle, trial)
	if err != nil {
		return nil, err
	}
	applyRemote(sub, remote, plan, cycle, now, trialEnd)
	if err := s.subs.Create(ctx, nil, sub); err != nil {
		s.abandon(ctx, remote.ID)
		return nil, translateCreate(err)
	}

	s.written(ctx, sub, audit.ActionSubscriptionCreated, map[string]interface{}{
		"plan_id":                 plan.ID,
		"cycle":                   cycle,
		"gateway_subscription_id": remote.ID,
	})
	metrics.PlanChanges.WithLabelValues("subscribed").Inc()
	log.Info().Str("org_id", org.ID).Str("plan_id", plan.ID).Str("status", string(sub.Status)).Msg("subscription created")
	return sub, nil
}

func translateCreate(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: organization already has a subscription", apperrors.ErrConflict)
	}
	return err
}

// openRemote creates the gateway customer when needed and a subscription
// on the plan's price.
func (s *Service) openRemote(ctx context.Context, orgID, customerID, email string, plan *plans.Plan, cycle models.BillingCycle, trial *time.Time) (*gateway.RemoteSubscription, *time.Time, error) {
	priceID, ok := s.prices.PriceFor(plan.ID, cycle)
	if !ok {
		return nil, nil, fmt.Errorf("%w: plan %s has no %s gateway price", ErrInvalidRequest, plan.ID, cycle)
	}
	if customerID == "" {
		err := s.call(ctx, "create_customer", func(ctx context.Context) error {
			var err error
			customerID, err = s.gateway.CreateCustomer(ctx, orgID, email)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
	}

	var remote *gateway.RemoteSubscription
	err := s.call(ctx, "create_subscription", func(ctx context.Context) error {
		var err error
		remote, err = s.gateway.CreateSubscription(ctx, orgID, customerID, priceID, trial)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if remote.CustomerID == "" {
		remote.CustomerID = customerID
	}
	return remote, trial, nil
}

// abandon cancels a gateway subscription whose local record could not be
// written, so the organization is not billed for it.
func (s *Service) abandon(ctx context.Context, remoteID string) {
	err := s.call(context.WithoutCancel(ctx), "cancel_subscription", func(ctx context.Context) error {
		return s.gateway.CancelSubscription(ctx, remoteID, false)
	})
	if err != nil {
		log.Error().Err(err).Str("gateway_subscription_id", remoteID).Msg("failed to cancel orphaned gateway subscription")
	}
}

func applyRemote(r *models.Subscription, remote *gateway.RemoteSubscription, plan *plans.Plan, cycle models.BillingCycle, now time.Time, trialEnd *time.Time) {
	r.PlanID = plan.ID
	r.BillingCycle = cycle
	r.Amount = plan.PriceFor(cycle)
	r.Currency = plan.Currency
	r.GatewayCustomerID = remote.CustomerID
	r.GatewaySubscriptionID = remote.ID
	r.PaymentMethod = models.PaymentMethodCard
	r.AutoRenew = true
	r.CancelAtPeriodEnd = false
	r.CancelledAt = nil
	r.CancellationReason = ""
	r.LastEventAt = nil
	r.StartDate = now

	end := cycle.Advance(now)
	if remote.Status == "trialing" && trialEnd != nil {
		r.Status = models.StatusTrialing
		r.TrialEndDate = trialEnd
		end = *trialEnd
	} else {
		r.Status = models.StatusActive
		r.TrialEndDate = nil
	}
	r.EndDate = end
	r.NextPaymentDate = &end
}

// RecordManualPayment books a locally collected payment against the
// organization's current plan.
func (s *Service) RecordManualPayment(ctx context.Context, p ManualPayment) (*models.Subscription, error) {
	if !manualMethod(p.Method) {
		return nil, fmt.Errorf("%w: manual payments must use bank_transfer or cash", ErrInvalidRequest)
	}
	if p.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}
	sub, err := s.subs.GetByOrg(ctx, p.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return nil, apperrors.ErrNotFound
	}
	if sub.HasGateway() && sub.Status != models.StatusCancelled {
		return nil, fmt.Errorf("%w: subscription is billed by the payment gateway", apperrors.ErrConflict)
	}
	plan, err := s.plans.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return s.collect(ctx, p, plan, sub.BillingCycle)
}

// collect writes the payment and activates the record in one transaction.
// Coverage extends from the later of now and the current end date.
func (s *Service) collect(ctx context.Context, p ManualPayment, plan *plans.Plan, cycle models.BillingCycle) (*models.Subscription, error) {
	now := s.now().UTC()
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	amount := p.Amount
	if amount == 0 {
		amount = plan.PriceFor(cycle)
	}
	actor := audit.ActorFrom(ctx)

	var out *models.Subscription
	payment := &models.Payment{
		ID:             "pay_" + uuid.New().String(),
		OrganizationID: p.OrganizationID,
		PlanID:         plan.ID,
		BillingCycle:   cycle,
		Amount:         amount,
		Currency:       plan.Currency,
		Method:         p.Method,
		Reference:      p.Reference,
		RecordedBy:     actor.UserID,
		PaidAt:         paidAt,
	}
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		out, err = s.subs.MutateTx(ctx, tx, p.OrganizationID, func(r *models.Subscription) error {
			from := r.EndDate
			if !r.Status.Entitled() || from.Before(now) {
				from = now
				r.StartDate = now
			}
			end := cycle.Advance(from)
			r.PlanID = plan.ID
			r.BillingCycle = cycle
			r.Amount = plan.PriceFor(cycle)
			r.Currency = plan.Currency
			r.Status = models.StatusActive
			r.EndDate = end
			r.NextPaymentDate = &end
			r.LastPaymentDate = &paidAt
			r.PaymentMethod = p.Method
			r.CancelledAt = nil
			r.CancellationReason = ""
			r.CancelAtPeriodEnd = false
			r.GatewaySubscriptionID = ""
			return nil
		})
		if err != nil {
			return err
		}
		payment.SubscriptionID = out.ID
		if err := s.payments.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return s.audit.Log(ctx, tx, p.OrganizationID, audit.ActionPaymentRecorded, "payment", payment.ID, map[string]interface{}{
			"amount":    amount,
			"method":    p.Method,
			"plan_id":   plan.ID,
			"reference": p.Reference,
		})
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.orgs.ReactivateIfBilling(ctx, p.OrganizationID, now); err != nil {
		return nil, fmt.Errorf("reactivate organization: %w", err)
	}
	s.cache.Invalidate(p.OrganizationID)
	log.Info().Str("org_id", p.OrganizationID).Str("plan_id", plan.ID).Int64("amount", amount).Time("end_date", out.EndDate).Msg("manual payment recorded")
	return out, nil
}

// CreateSubscription sets locally managed terms, replacing any record that
// is not billed by the gateway.
func (s *Service) CreateSubscription(ctx context.Context, a AdminSubscription) (*models.Subscription, error) {
	plan, cycle, err := s.target(ctx, a.PlanID, a.Cycle)
	if err != nil {
		return nil, err
	}
	if !validMethod(a.PaymentMethod) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, a.PaymentMethod)
	}
	status := a.Status
	if status == "" {
		status = models.StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	now := s.now().UTC()
	start := a.StartDate
	if start.IsZero() {
		start = now
	}
	end := a.EndDate
	if end.IsZero() {
		end = cycle.Advance(start)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidRequest)
	}

	org, err := s.orgs.GetByID(ctx, a.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, apperrors.ErrNotFound
	}

	terms := func(r *models.Subscription) {
		r.PlanID = plan.ID
		r.Status = status
		r.BillingCycle = cycle
		r.Amount = plan.PriceFor(cycle)
		r.Currency = plan.Currency
		r.StartDate = start
		r.EndDate = end
		r.NextPaymentDate = &end
		r.PaymentMethod = a.PaymentMethod
		r.AutoRenew = true
		r.CancelAtPeriodEnd = false
		r.CancelledAt = nil
		r.CancellationReason = ""
		if status == models.StatusTrialing {
			r.TrialEndDate = &end
		}
	}

	existing, err := s.subs.GetByOrg(ctx, a.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	var out *models.Subscription
	if existing == nil {
		out = &models.Subscription{
			ID:             "sub_" + uuid.New().String(),
			OrganizationID: a.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		terms(out)
		if err := s.subs.Create(ctx, nil, out); err != nil {
			return nil, translateCreate(err)
		}
	} else {
		out, err = s.subs.Mutate(ctx, a.OrganizationID, func(r *models.Subscription) error {
			if r.HasGateway() && r.Status != models.StatusCancelled {
				return fmt.Errorf("%w: subscription is billed by the payment gateway", apperrors.ErrConflict)
			}
			terms(r)
			r.GatewaySubscriptionID = ""
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	s.written(ctx, out, audit.ActionSubscriptionCreated, map[string]interface{}{
		"plan_id":  plan.ID,
		"status":   status,
		"end_date": end,
		"source":   "admin",
	})
	return out, nil
}

// Cancel ends the subscription now or at the end of the paid period. The
// gateway is told first.
func (s *Service) Cancel(ctx context.Context, orgID, reason string, atPeriodEnd bool) (*models.Subscription, error) {
	sub, err := s.subs.GetByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return nil, apperrors.ErrNotFound
	}
	if sub.Status == models.StatusCancelled {
		return sub, nil
	}

	if sub.HasGateway() {
		err := s.call(ctx, "cancel_subscription", func(ctx context.Context) error {
			return s.gateway.CancelSubscription(ctx, sub.GatewaySubscriptionID, atPeriodEnd)
		})
		if err != nil {
			log.Warn().Err(err).Str("org_id", orgID).Msg("cancellation aborted, record left unchanged")
			return nil, err
		}
	}

	now := s.now().UTC()
	out, err := s.subs.Mutate(ctx, orgID, func(r *models.Subscription) error {
		r.AutoRenew = false
		r.CancellationReason = reason
		if atPeriodEnd {
			r.CancelAtPeriodEnd = true
			return nil
		}
		r.Status = models.StatusCancelled
		r.CancelledAt = &now
		r.CancelAtPeriodEnd = false
		if r.EndDate.After(now) {
			r.EndDate = now
			if r.StartDate.After(now) {
				r.StartDate = now
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record cancellation: %w", err)
	}

	s.written(ctx, out, audit.ActionSubscriptionCancelled, map[string]interface{}{
		"reason":        reason,
		"at_period_end": atPeriodEnd,
	})
	log.Info().Str("org_id", orgID).Bool("at_period_end", atPeriodEnd).Msg("subscription cancelled")
	return out, nil
}

// SetOrganizationActive is the administrative switch. Deactivation by an
// administrator is never lifted by a payment.
func (s *Service) SetOrganizationActive(ctx context.Context, orgID string, active bool) error {
	found, err := s.orgs.SetActive(ctx, orgID, active, models.DeactivatedByAdmin, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if !found {
		return apperrors.ErrNotFound
	}

	action := audit.ActionOrgDeactivated
	if active {
		action = audit.ActionOrganizationActivated
	}
	s.cache.Invalidate(orgID)
	s.audit.Record(ctx, orgID, action, "organization", orgID, map[string]interface{}{"source": models.DeactivatedByAdmin})
	return nil
}

// SetUnlimited grants or withdraws the unlimited override, which bypasses
// both plan limits and subscription status.
func (s *Service) SetUnlimited(ctx context.Context, orgID string, unlimited bool) error {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return apperrors.ErrNotFound
	}
	if err := s.orgs.SetUnlimited(ctx, orgID, unlimited, s.now().UTC()); err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	s.cache.Invalidate(orgID)
	s.audit.Record(ctx, orgID, audit.ActionOrganizationUnlimited, "organization", orgID, map[string]interface{}{"unlimited": unlimited})
	return nil
}
