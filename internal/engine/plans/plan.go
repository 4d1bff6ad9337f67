package plans

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"praxis/internal/platform/models"
)

// ErrInvalidPlan wraps every catalog validation failure.
var ErrInvalidPlan = errors.New("invalid plan")

// Unlimited is the limit sentinel meaning "no ceiling".
const Unlimited int64 = -1

type Feature string

const (
	FeatureCustomBranding     Feature = "custom_branding"
	FeatureAPIAccess          Feature = "api_access"
	FeaturePrioritySupport    Feature = "priority_support"
	FeatureAdvancedReports    Feature = "advanced_reports"
	FeatureSMSNotifications   Feature = "sms_notifications"
	FeatureEmailNotifications Feature = "email_notifications"
	FeatureDataBackup         Feature = "data_backup"
)

var AllFeatures = []Feature{
	FeatureCustomBranding,
	FeatureAPIAccess,
	FeaturePrioritySupport,
	FeatureAdvancedReports,
	FeatureSMSNotifications,
	FeatureEmailNotifications,
	FeatureDataBackup,
}

func (f Feature) Valid() bool {
	for _, known := range AllFeatures {
		if f == known {
			return true
		}
	}
	return false
}

type Limits struct {
	MaxPatients     int64 `json:"max_patients"`
	MaxUsers        int64 `json:"max_users"`
	MaxAppointments int64 `json:"max_appointments"`
}

// For returns the ceiling for one metered resource.
func (l Limits) For(r models.Resource) int64 {
	switch r {
	case models.ResourcePatient:
		return l.MaxPatients
	case models.ResourceUser:
		return l.MaxUsers
	case models.ResourceAppointment:
		return l.MaxAppointments
	}
	return 0
}

type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PriceMonthly int64     `json:"price_monthly"`
	PriceYearly  int64     `json:"price_yearly"`
	Currency     string    `json:"currency"`
	Limits       Limits    `json:"limits"`
	Features     []Feature `json:"features"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p *Plan) HasFeature(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// PriceFor returns the amount in minor units charged per cycle.
func (p *Plan) PriceFor(cycle models.BillingCycle) int64 {
	if cycle == models.CycleYearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}

// Paid reports whether any cycle of the plan costs money.
func (p *Plan) Paid() bool {
	return p.PriceMonthly > 0 || p.PriceYearly > 0
}

func (p *Plan) Validate() error {
	if p.ID == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidPlan)
	}
	if p.PriceMonthly < 0 || p.PriceYearly < 0 {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidPlan)
	}
	for _, l := range []int64{p.Limits.MaxPatients, p.Limits.MaxUsers, p.Limits.MaxAppointments} {
		if l < Unlimited {
			return fmt.Errorf("%w: limit %d, use -1 for unlimited", ErrInvalidPlan, l)
		}
	}
	for _, f := range p.Features {
		if !f.Valid() {
			return fmt.Errorf("%w: unknown feature %q", ErrInvalidPlan, f)
		}
	}
	return nil
}
