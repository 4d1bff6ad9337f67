package metering

import (
	"testing"

	"praxis/internal/engine/plans"
	"praxis/internal/platform/models"
)

func TestEffectiveLimit(t *testing.T) {
	basic := &plans.Plan{ID: "basic", Limits: plans.Limits{MaxPatients: 100, MaxUsers: 3, MaxAppointments: 300}}
	enterprise := &plans.Plan{ID: "enterprise", Limits: plans.Limits{MaxPatients: plans.Unlimited, MaxUsers: plans.Unlimited, MaxAppointments: plans.Unlimited}}
	org := &models.Organization{ID: "org_1", Active: true}
	unlimitedOrg := &models.Organization{ID: "org_2", Active: true, UnlimitedOverride: true}

	tests := []struct {
		name string
		org  *models.Organization
		role string
		plan *plans.Plan
		res  models.Resource
		want int64
	}{
		{"plan patients", org, models.RoleOwner, basic, models.ResourcePatient, 100},
		{"plan seats", org, models.RoleStaff, basic, models.ResourceUser, 3},
		{"unlimited plan", org, models.RoleOwner, enterprise, models.ResourceAppointment, plans.Unlimited},
		{"override beats plan", unlimitedOrg, models.RoleOwner, basic, models.ResourcePatient, plans.Unlimited},
		{"platform admin", org, models.RoleSuperAdmin, basic, models.ResourceUser, plans.Unlimited},
		{"no plan", org, models.RoleOwner, nil, models.ResourcePatient, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveLimit(tt.org, tt.role, tt.plan, tt.res); got != tt.want {
				t.Errorf("EffectiveLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name                  string
		limit, current, delta int64
		want                  bool
	}{
		{"at limit denies", 100, 100, 1, false},
		{"one below allows", 100, 99, 1, true},
		{"unlimited never denies", plans.Unlimited, 1 << 40, 1, true},
		{"zero limit denies", 0, 0, 1, false},
		{"batch over limit", 10, 8, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Check(tt.limit, tt.current, tt.delta); got != tt.want {
				t.Errorf("Check(%d, %d, %d) = %v, want %v", tt.limit, tt.current, tt.delta, got, tt.want)
			}
		})
	}
}
