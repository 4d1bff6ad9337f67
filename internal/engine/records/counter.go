// Package records holds the minimal patient, appointment and member
// operations that consume metered capacity.
package records

import (
	"context"
	"fmt"
	"time"

	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
)

// Counter counts live records straight from their tables.
type Counter struct{}

func (Counter) Count(ctx context.Context, q database.Querier, orgID string, r models.Resource, since time.Time) (int64, error) {
	var query string
	args := []interface{}{orgID}
	switch r {
	case models.ResourcePatient:
		query = `SELECT COUNT(*) FROM patients WHERE organization_id = ? AND created_at >= ?`
		args = append(args, since.Unix())
	case models.ResourceAppointment:
		query = `SELECT COUNT(*) FROM appointments WHERE organization_id = ? AND created_at >= ?`
		args = append(args, since.Unix())
	case models.ResourceUser:
		query = `SELECT COUNT(*) FROM users WHERE organization_id = ? AND deleted_at IS NULL`
	default:
		return 0, fmt.Errorf("unknown resource %q", r)
	}

	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
