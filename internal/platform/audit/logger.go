package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"praxis/internal/platform/database"
)

// Billing actions recorded in the trail.
const (
	ActionSubscriptionCreated   = "subscription.created"
	ActionPlanChanged           = "subscription.plan_changed"
	ActionSubscriptionCancelled = "subscription.cancelled"
	ActionSubscriptionExpired   = "subscription.expired"
	ActionPaymentRecorded       = "payment.recorded"
	ActionWebhookApplied        = "webhook.applied"
	ActionOrganizationActivated = "organization.activated"
	ActionOrgDeactivated        = "organization.deactivated"
	ActionOrganizationUnlimited = "organization.unlimited"
	ActionPlanCreated           = "plan.created"
	ActionPlanUpdated           = "plan.updated"
	ActionPlanDeleted           = "plan.deleted"
)

type AuditLog struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id"`
	Action         string                 `json:"action"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	Metadata       map[string]interface{} `json:"metadata"`
	IPAddress      string                 `json:"ip_address"`
	UserAgent      string                 `json:"user_agent"`
	CreatedAt      int64                  `json:"created_at"`
}

// Actor identifies who triggered a change. Gateway-driven changes carry the
// "system:gateway" user id.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

const SystemGateway = "system:gateway"

// PlatformScope is the organization id under which catalog changes are
// recorded.
const PlatformScope = "platform"

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

type Logger struct {
	db  *sql.DB
	now func() time.Time
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db, now: time.Now}
}

// Log writes one entry through q, which may be the transaction that carried
// the change itself.
func (l *Logger) Log(ctx context.Context, q database.Querier, orgID, action, resourceType, resourceID string, metadata map[string]interface{}) error {
	actor := ActorFrom(ctx)
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	if q == nil {
		q = l.db
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, "audit_"+uuid.New().String(), orgID, actor.UserID, action, resourceType, resourceID, string(metaJSON), actor.IPAddress, actor.UserAgent, l.now().Unix())
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Record is Log for callers that must not fail because of the trail.
func (l *Logger) Record(ctx context.Context, orgID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if err := l.Log(ctx, nil, orgID, action, resourceType, resourceID, metadata); err != nil {
		log.Error().Err(err).Str("org_id", orgID).Str("action", action).Msg("audit write failed")
	}
}

// List returns the newest entries of one organization.
func (l *Logger) List(ctx context.Context, orgID string, limit int) ([]*AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, organization_id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE organization_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		entry := &AuditLog{}
		var meta string
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.UserID, &entry.Action, &entry.ResourceType, &entry.ResourceID, &meta, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
			entry.Metadata = map[string]interface{}{"raw": meta}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
