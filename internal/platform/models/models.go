package models

import "time"

const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleSuperAdmin = "super_admin"
)

// Deactivation sources. Billing deactivations are lifted automatically when
// a payment succeeds; administrative ones are not.
const (
	DeactivatedByAdmin   = "admin"
	DeactivatedByBilling = "billing"
)

type Organization struct {
	ID                string    `json:"id"`
	Slug              string    `json:"slug"`
	Name              string    `json:"name"`
	Active            bool      `json:"active"`
	DeactivatedBy     string    `json:"deactivated_by,omitempty"`
	UnlimitedOverride bool      `json:"unlimited_override"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type User struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	FullName       string     `json:"full_name"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}
