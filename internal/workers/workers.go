// Package workers holds the scheduled billing jobs run by cmd/worker.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"praxis/internal/pkg/metrics"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/config"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

// Invalidator drops cached status for an organization. Optional.
type Invalidator interface {
	Invalidate(orgID string)
}

// ExpirySweep proactively flips lapsed subscriptions to inactive, using
// the same conditional update as lazy expiry so both paths can race
// safely.
type ExpirySweep struct {
	subs        *repositories.SubscriptionRepository
	audit       *audit.Logger
	cache       Invalidator
	batchSize   int
	concurrency int
	now         func() time.Time
}

func NewExpirySweep(subs *repositories.SubscriptionRepository, auditLogger *audit.Logger, cache Invalidator) *ExpirySweep {
	return &ExpirySweep{
		subs:        subs,
		audit:       auditLogger,
		cache:       cache,
		batchSize:   200,
		concurrency: 4,
		now:         time.Now,
	}
}

// Run expires every due record and returns how many it flipped.
func (w *ExpirySweep) Run(ctx context.Context) (int, error) {
	now := w.now().UTC()
	total := 0
	for {
		due, err := w.subs.ListExpired(ctx, now, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("list expired subscriptions: %w", err)
		}
		if len(due) == 0 {
			return total, nil
		}

		flipped := make([]bool, len(due))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.concurrency)
		for i, sub := range due {
			i, sub := i, sub
			g.Go(func() error {
				ok, err := w.subs.ExpireIfDue(gctx, sub.ID, now)
				if err != nil {
					return fmt.Errorf("expire %s: %w", sub.ID, err)
				}
				flipped[i] = ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return total, err
		}

		batch := 0
		for i, sub := range due {
			if !flipped[i] {
				continue
			}
			batch++
			w.expired(ctx, sub)
		}
		total += batch

		// A full batch where nothing changed means other writers hold
		// these rows; leave them for the next run.
		if len(due) < w.batchSize || batch == 0 {
			return total, nil
		}
	}
}

func (w *ExpirySweep) expired(ctx context.Context, sub *models.Subscription) {
	metrics.LazyExpirations.WithLabelValues("sweep").Inc()
	if w.cache != nil {
		w.cache.Invalidate(sub.OrganizationID)
	}
	log.Info().Str("org_id", sub.OrganizationID).Str("subscription_id", sub.ID).Msg("subscription expired by sweep")
	w.audit.Record(ctx, sub.OrganizationID, audit.ActionSubscriptionExpired, "subscription", sub.ID, map[string]interface{}{
		"status": models.StatusInactive,
		"path":   "sweep",
	})
}

// Resetter rolls monthly usage counters into the current period.
type Resetter interface {
	ResetMonthly(ctx context.Context) (int64, error)
}

// UsageReset resets monthly counters. Counters also roll over lazily on
// first use in a new period, so a missed run only delays the reset.
type UsageReset struct {
	usage Resetter
}

func NewUsageReset(usage Resetter) *UsageReset {
	return &UsageReset{usage: usage}
}

func (w *UsageReset) Run(ctx context.Context) (int, error) {
	n, err := w.usage.ResetMonthly(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset monthly usage: %w", err)
	}
	return int(n), nil
}

// Job is one scheduled unit of work.
type Job interface {
	Run(ctx context.Context) (int, error)
}

// NewScheduler registers the sweep and the usage reset on their cron
// schedules. Runs of the same job never overlap.
func NewScheduler(ctx context.Context, cfg config.WorkersConfig, sweep, reset Job) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	jobs := []struct {
		name string
		spec string
		job  Job
	}{
		{"expiry_sweep", cfg.ExpirySchedule, sweep},
		{"usage_reset", cfg.UsageResetSchedule, reset},
	}
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.spec, func() { runJob(ctx, j.name, j.job) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		log.Info().Str("job", j.name).Str("schedule", j.spec).Msg("job scheduled")
	}
	return c, nil
}

func runJob(ctx context.Context, name string, job Job) {
	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	log.Info().Str("job", name).Int("affected", n).Dur("took", time.Since(start)).Msg("job finished")
}
