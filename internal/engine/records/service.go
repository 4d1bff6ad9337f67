package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"praxis/internal/engine/metering"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

type Patient struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	FullName       string    `json:"full_name"`
	CreatedAt      time.Time `json:"created_at"`
}

type Appointment struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	PatientID      string    `json:"patient_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewMember struct {
	Email    string
	FullName string
	Role     string
	Password string
}

// Actor is the member performing the operation.
type Actor struct {
	OrganizationID string
	Role           string
}

type Service struct {
	metering *metering.Service
	users    *repositories.UserRepository
	now      func() time.Time
}

func NewService(m *metering.Service, users *repositories.UserRepository) *Service {
	return &Service{metering: m, users: users, now: time.Now}
}

func (s *Service) request(a Actor, r models.Resource) metering.UsageRequest {
	return metering.UsageRequest{OrganizationID: a.OrganizationID, Role: a.Role, Resource: r, Delta: 1}
}

func (s *Service) CreatePatient(ctx context.Context, a Actor, fullName string) (*Patient, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalid)
	}
	p := &Patient{
		ID:             "pat_" + uuid.New().String(),
		OrganizationID: a.OrganizationID,
		FullName:       fullName,
		CreatedAt:      s.now().UTC(),
	}
	err := s.metering.Consume(ctx, s.request(a, models.ResourcePatient), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO patients (id, organization_id, full_name, created_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.OrganizationID, p.FullName, p.CreatedAt.Unix())
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, orgID, id string) error {
	return s.metering.Release(ctx, orgID, models.ResourcePatient, func(tx *sql.Tx) (bool, error) {
		return deleteRow(ctx, tx, `DELETE FROM patients WHERE id = ? AND organization_id = ?`, id, orgID)
	})
}

func (s *Service) CreateAppointment(ctx context.Context, a Actor, patientID string, scheduledAt time.Time) (*Appointment, error) {
	if scheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at is required", ErrInvalid)
	}
	appt := &Appointment{
		ID:             "apt_" + uuid.New().String(),
		OrganizationID: a.OrganizationID,
		PatientID:      patientID,
		ScheduledAt:    scheduledAt.UTC(),
		CreatedAt:      s.now().UTC(),
	}
	err := s.metering.Consume(ctx, s.request(a, models.ResourceAppointment), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO appointments (id, organization_id, patient_id, scheduled_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			appt.ID, appt.OrganizationID, appt.PatientID, appt.ScheduledAt.Unix(), appt.CreatedAt.Unix())
		return err
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, orgID, id string) error {
	return s.metering.Release(ctx, orgID, models.ResourceAppointment, func(tx *sql.Tx) (bool, error) {
		return deleteRow(ctx, tx, `DELETE FROM appointments WHERE id = ? AND organization_id = ?`, id, orgID)
	})
}

// AddMember takes a seat and creates the user in one transaction.
func (s *Service) AddMember(ctx context.Context, a Actor, m NewMember) (*models.User, error) {
	if m.Role == "" {
		m.Role = models.RoleStaff
	}
	if m.Role != models.RoleAdmin && m.Role != models.RoleStaff {
		return nil, fmt.Errorf("%w: role must be admin or staff", ErrInvalid)
	}
	if !strings.Contains(m.Email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", ErrInvalid)
	}

	var hash []byte
	if m.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(m.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	}
	now := s.now().UTC()
	user := &models.User{
		ID:             "usr_" + uuid.New().String(),
		OrganizationID: a.OrganizationID,
		Email:          strings.ToLower(strings.TrimSpace(m.Email)),
		PasswordHash:   string(hash),
		FullName:       m.FullName,
		Role:           m.Role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.metering.Consume(ctx, s.request(a, models.ResourceUser), func(tx *sql.Tx) error {
		return s.users.CreateTx(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RemoveMember soft-deletes the user and frees the seat.
func (s *Service) RemoveMember(ctx context.Context, orgID, id string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user != nil && user.Role == models.RoleOwner {
		return fmt.Errorf("%w: the owner cannot be removed", ErrInvalid)
	}
	return s.metering.Release(ctx, orgID, models.ResourceUser, func(tx *sql.Tx) (bool, error) {
		return s.users.SoftDeleteTx(ctx, tx, orgID, id, s.now().UTC())
	})
}

func deleteRow(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (bool, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
