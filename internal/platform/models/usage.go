package models

import "time"

type Resource string

const (
	ResourcePatient     Resource = "patient"
	ResourceUser        Resource = "user"
	ResourceAppointment Resource = "appointment"
)

func (r Resource) Valid() bool {
	return r == ResourcePatient || r == ResourceUser || r == ResourceAppointment
}

// Monthly reports whether the resource is metered per calendar month.
// Users are a standing seat count and never reset.
func (r Resource) Monthly() bool {
	return r == ResourcePatient || r == ResourceAppointment
}

// UsageCounter caches per-organization usage. It is always recomputable
// from the record tables.
type UsageCounter struct {
	OrganizationID string    `json:"organization_id"`
	Patients       int64     `json:"patients"`
	Users          int64     `json:"users"`
	Appointments   int64     `json:"appointments"`
	Period         string    `json:"period"`
	LastResetAt    time.Time `json:"last_reset_at"`
}

func (u *UsageCounter) Get(r Resource) int64 {
	switch r {
	case ResourcePatient:
		return u.Patients
	case ResourceUser:
		return u.Users
	case ResourceAppointment:
		return u.Appointments
	}
	return 0
}

// PeriodKey names the calendar month t falls in.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodStart returns the first instant of t's calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
