// Package entitlements decides which plan features a member may use.
package entitlements

import (
	"sort"

	"praxis/internal/engine/plans"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/models"
)

// restricted lists features a role may not use even when the plan has them.
var restricted = map[string]map[plans.Feature]bool{
	models.RoleStaff: {
		plans.FeatureCustomBranding: true,
		plans.FeatureAPIAccess:      true,
		plans.FeatureDataBackup:     true,
	},
}

// Capabilities returns the features available to role under plan. A nil
// plan grants nothing except to platform administrators. Organizations
// with the unlimited override get the whole catalog, still subject to the
// role policy.
func Capabilities(plan *plans.Plan, role string, unlimited bool) []plans.Feature {
	if role == models.RoleSuperAdmin {
		all := make([]plans.Feature, len(plans.AllFeatures))
		copy(all, plans.AllFeatures)
		return all
	}

	var granted []plans.Feature
	switch {
	case unlimited:
		granted = plans.AllFeatures
	case plan != nil:
		granted = plan.Features
	default:
		return nil
	}

	denied := restricted[role]
	var caps []plans.Feature
	for _, f := range granted {
		if !denied[f] {
			caps = append(caps, f)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Allowed reports whether role may use feature under plan.
func Allowed(plan *plans.Plan, role string, unlimited bool, feature plans.Feature) bool {
	for _, f := range Capabilities(plan, role, unlimited) {
		if f == feature {
			return true
		}
	}
	return false
}

// Require returns a FeatureUnavailableError naming the plan when the
// feature is not available.
func Require(plan *plans.Plan, role string, unlimited bool, feature plans.Feature) error {
	if Allowed(plan, role, unlimited, feature) {
		return nil
	}
	name := "none"
	if plan != nil {
		name = plan.ID
	}
	return &apperrors.FeatureUnavailableError{Feature: string(feature), Plan: name}
}
