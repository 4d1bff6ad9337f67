// Package metering enforces plan limits on metered resources and keeps the
// usage counter cache honest.
package metering

import (
	"praxis/internal/engine/plans"
	"praxis/internal/platform/models"
)

// EffectiveLimit resolves the ceiling for one resource. Unlimited
// organizations and platform administrators have none; a missing plan
// allows nothing.
func EffectiveLimit(org *models.Organization, role string, plan *plans.Plan, r models.Resource) int64 {
	if org != nil && org.UnlimitedOverride {
		return plans.Unlimited
	}
	if role == models.RoleSuperAdmin {
		return plans.Unlimited
	}
	if plan == nil {
		return 0
	}
	return plan.Limits.For(r)
}

// Check reports whether current+delta stays within limit.
func Check(limit, current, delta int64) bool {
	if limit < 0 {
		return true
	}
	return current+delta <= limit
}
