package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/pkg/metrics"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/config"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

type Service struct {
	orgs      *repositories.OrganizationRepository
	subs      *repositories.SubscriptionRepository
	audit     *audit.Logger
	cache     *StatusCache
	trialDays int
	trialPlan string
	now       func() time.Time
}

func NewService(orgs *repositories.OrganizationRepository, subs *repositories.SubscriptionRepository, auditLogger *audit.Logger, cache *StatusCache, cfg config.BillingConfig) *Service {
	return &Service{
		orgs:      orgs,
		subs:      subs,
		audit:     auditLogger,
		cache:     cache,
		trialDays: cfg.TrialDays,
		trialPlan: cfg.TrialPlan,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) TrialPlan() string {
	return s.trialPlan
}

// Status evaluates the organization and applies lazy expiry when the
// evaluation asks for it.
func (s *Service) Status(ctx context.Context, orgID string) (Outcome, error) {
	now := s.now().UTC()
	if s.cache != nil {
		if out, ok := s.cache.Get(orgID, now); ok {
			metrics.StatusEvaluations.WithLabelValues("active", "cache").Inc()
			return out, nil
		}
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return Outcome{}, apperrors.ErrNotFound
	}
	sub, err := s.subs.GetByOrg(ctx, orgID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load subscription: %w", err)
	}

	out, cmd := Evaluate(EvaluationInput{
		Organization: org,
		Subscription: sub,
		TrialDays:    s.trialDays,
		TrialPlan:    s.trialPlan,
		Now:          now,
	})

	if cmd != nil {
		if err := s.expire(ctx, cmd); err != nil {
			return Outcome{}, err
		}
	}

	label := "active"
	if !out.Active {
		label = "inactive"
	}
	metrics.StatusEvaluations.WithLabelValues(label, "store").Inc()

	if s.cache != nil {
		s.cache.Put(orgID, out)
	}
	return out, nil
}

// Require returns the outcome when active and a SubscriptionInactiveError
// otherwise.
func (s *Service) Require(ctx context.Context, orgID string) (Outcome, error) {
	out, err := s.Status(ctx, orgID)
	if err != nil {
		return Outcome{}, err
	}
	return out, out.Err()
}

func (s *Service) expire(ctx context.Context, cmd *ExpireCommand) error {
	ok, err := s.subs.ExpireIfDue(ctx, cmd.SubscriptionID, cmd.At)
	if err != nil {
		return fmt.Errorf("expire subscription %s: %w", cmd.SubscriptionID, err)
	}
	if !ok {
		return nil
	}
	metrics.LazyExpirations.WithLabelValues("lazy").Inc()
	log.Info().Str("org_id", cmd.OrganizationID).Str("subscription_id", cmd.SubscriptionID).Msg("subscription expired")
	s.audit.Record(ctx, cmd.OrganizationID, audit.ActionSubscriptionExpired, "subscription", cmd.SubscriptionID, map[string]interface{}{
		"status": models.StatusInactive,
		"path":   "lazy",
	})
	return nil
}

// Invalidate drops the cached outcome of an organization.
func (s *Service) Invalidate(orgID string) {
	if s.cache != nil {
		s.cache.Invalidate(orgID)
	}
}
