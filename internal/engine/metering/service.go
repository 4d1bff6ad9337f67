package metering

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/subscriptions"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/pkg/metrics"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

// Recounter derives usage from the authoritative record tables. since is
// the start of the period for monthly resources and zero otherwise.
type Recounter interface {
	Count(ctx context.Context, q database.Querier, orgID string, r models.Resource, since time.Time) (int64, error)
}

// StatusSource yields the organization's current entitlement.
type StatusSource interface {
	Status(ctx context.Context, orgID string) (subscriptions.Outcome, error)
}

type UsageRequest struct {
	OrganizationID string
	Role           string
	Resource       models.Resource
	Delta          int64
}

type ResourceUsage struct {
	Resource models.Resource `json:"resource"`
	Current  int64           `json:"current"`
	Limit    int64           `json:"limit"`
	Monthly  bool            `json:"monthly"`
}

type UsageReport struct {
	OrganizationID string          `json:"organization_id"`
	PlanID         string          `json:"plan_id"`
	Period         string          `json:"period"`
	LastResetAt    time.Time       `json:"last_reset_at"`
	Resources      []ResourceUsage `json:"resources"`
}

// LimitDecision answers "may one more be created".
type LimitDecision struct {
	Resource models.Resource `json:"resource"`
	Allowed  bool            `json:"allowed"`
	Current  int64           `json:"current"`
	Limit    int64           `json:"limit"`
	PlanID   string          `json:"plan_id"`
}

var allResources = []models.Resource{models.ResourcePatient, models.ResourceUser, models.ResourceAppointment}

type Service struct {
	db        *sql.DB
	usage     *repositories.UsageRepository
	orgs      *repositories.OrganizationRepository
	plans     *plans.Service
	status    StatusSource
	recounter Recounter
	now       func() time.Time
}

func NewService(db *sql.DB, usage *repositories.UsageRepository, orgs *repositories.OrganizationRepository, planSvc *plans.Service, status StatusSource, recounter Recounter) *Service {
	return &Service{
		db:        db,
		usage:     usage,
		orgs:      orgs,
		plans:     planSvc,
		status:    status,
		recounter: recounter,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func since(r models.Resource, now time.Time) time.Time {
	if r.Monthly() {
		return models.PeriodStart(now)
	}
	return time.Time{}
}

// limitFor resolves the organization's ceiling for r under its current
// entitlement. Inactive organizations get a SubscriptionInactiveError.
func (s *Service) limitFor(ctx context.Context, orgID, role string, r models.Resource) (int64, string, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return 0, "", err
	}
	if org == nil {
		return 0, "", apperrors.ErrNotFound
	}
	out, err := s.status.Status(ctx, orgID)
	if err != nil {
		return 0, "", err
	}
	if !out.Active && role != models.RoleSuperAdmin {
		return 0, out.PlanID, out.Err()
	}

	var plan *plans.Plan
	if out.PlanID != "" && !org.UnlimitedOverride {
		plan, err = s.plans.Get(ctx, out.PlanID)
		if err != nil {
			return 0, out.PlanID, fmt.Errorf("resolve plan: %w", err)
		}
	}
	return EffectiveLimit(org, role, plan, r), out.PlanID, nil
}

// Consume reserves req.Delta units and runs create in the same transaction.
// The ceiling check and the increment are one atomic statement; a refusal
// is double-checked against a fresh recount before it is reported.
func (s *Service) Consume(ctx context.Context, req UsageRequest, create func(tx *sql.Tx) error) error {
	if !req.Resource.Valid() {
		return fmt.Errorf("unknown resource %q", req.Resource)
	}
	if req.Delta <= 0 {
		req.Delta = 1
	}
	limit, _, err := s.limitFor(ctx, req.OrganizationID, req.Role, req.Resource)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	var denied error
	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.usage.Ensure(ctx, tx, req.OrganizationID, now); err != nil {
			return err
		}
		ok, err := s.usage.IncrementWithCeiling(ctx, tx, req.OrganizationID, req.Resource, req.Delta, limit, now)
		if err != nil {
			return err
		}
		if !ok {
			actual, err := s.resync(ctx, tx, req.OrganizationID, req.Resource, now)
			if err != nil {
				return err
			}
			ok, err = s.usage.IncrementWithCeiling(ctx, tx, req.OrganizationID, req.Resource, req.Delta, limit, now)
			if err != nil {
				return err
			}
			if !ok {
				// Commit the corrected counter; nothing was created.
				denied = &apperrors.LimitExceededError{Resource: string(req.Resource), Current: actual, Limit: limit}
				return nil
			}
		}
		if create == nil {
			return nil
		}
		return create(tx)
	})
	if err != nil {
		return err
	}
	if denied != nil {
		metrics.LimitDenials.WithLabelValues(string(req.Resource)).Inc()
		log.Info().Str("org_id", req.OrganizationID).Str("resource", string(req.Resource)).Int64("limit", limit).Msg("limit reached")
		return denied
	}
	return nil
}

// resync replaces the cached counter with the authoritative count.
func (s *Service) resync(ctx context.Context, tx *sql.Tx, orgID string, r models.Resource, now time.Time) (int64, error) {
	cached, err := s.usage.Get(ctx, tx, orgID, now)
	if err != nil {
		return 0, err
	}
	actual, err := s.recounter.Count(ctx, tx, orgID, r, since(r, now))
	if err != nil {
		return 0, fmt.Errorf("recount %s: %w", r, err)
	}
	if cached.Get(r) != actual {
		metrics.CounterDrift.WithLabelValues(string(r)).Inc()
		log.Debug().Str("org_id", orgID).Str("resource", string(r)).Int64("cached", cached.Get(r)).Int64("actual", actual).Msg("usage counter corrected")
		if err := s.usage.Set(ctx, tx, orgID, r, actual, now); err != nil {
			return 0, err
		}
	}
	return actual, nil
}

// Release runs remove and, when it deleted something, frees a seat.
// Monthly allowances are not given back.
func (s *Service) Release(ctx context.Context, orgID string, r models.Resource, remove func(tx *sql.Tx) (bool, error)) error {
	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		removed, err := remove(tx)
		if err != nil {
			return err
		}
		if !removed {
			return apperrors.ErrNotFound
		}
		if r.Monthly() {
			return nil
		}
		return s.usage.Decrement(ctx, tx, orgID, r)
	})
}

// Usage recomputes every counter from the records, stores the result and
// reports it against the organization's limits.
func (s *Service) Usage(ctx context.Context, orgID, role string) (*UsageReport, error) {
	now := s.now().UTC()
	report := &UsageReport{OrganizationID: orgID, Period: models.PeriodKey(now), LastResetAt: models.PeriodStart(now)}

	counts := make(map[models.Resource]int64, len(allResources))
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.usage.Ensure(ctx, tx, orgID, now); err != nil {
			return err
		}
		for _, r := range allResources {
			n, err := s.resync(ctx, tx, orgID, r, now)
			if err != nil {
				return err
			}
			counts[r] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range allResources {
		limit, planID, err := s.limitFor(ctx, orgID, role, r)
		if err != nil {
			return nil, err
		}
		report.PlanID = planID
		report.Resources = append(report.Resources, ResourceUsage{Resource: r, Current: counts[r], Limit: limit, Monthly: r.Monthly()})
	}
	return report, nil
}

// Decide answers whether one more r may be created, without reserving it.
// A refusal from the counter is confirmed against a recount, as Consume
// does, so the answer matches what a create would get.
func (s *Service) Decide(ctx context.Context, orgID, role string, r models.Resource) (*LimitDecision, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown resource %q", r)
	}
	limit, planID, err := s.limitFor(ctx, orgID, role, r)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var current int64
	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.usage.Ensure(ctx, tx, orgID, now); err != nil {
			return err
		}
		counter, err := s.usage.Get(ctx, tx, orgID, now)
		if err != nil {
			return err
		}
		current = counter.Get(r)
		if Check(limit, current, 1) {
			return nil
		}
		current, err = s.resync(ctx, tx, orgID, r, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LimitDecision{Resource: r, Allowed: Check(limit, current, 1), Current: current, Limit: limit, PlanID: planID}, nil
}

// ResetMonthly rolls every organization's monthly counters into the
// current period.
func (s *Service) ResetMonthly(ctx context.Context) (int64, error) {
	return s.usage.ResetMonthly(ctx, s.now().UTC())
}

// Initialize records the founding owner seat of a new organization.
func (s *Service) Initialize(ctx context.Context, tx *sql.Tx, orgID string, seats int64) error {
	now := s.now().UTC()
	if err := s.usage.Ensure(ctx, tx, orgID, now); err != nil {
		return err
	}
	return s.usage.Set(ctx, tx, orgID, models.ResourceUser, seats, now)
}
